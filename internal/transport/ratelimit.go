package transport

import (
	"context"

	"golang.org/x/time/rate"
)

// NewRateLimiter returns a token-bucket limiter allowing rps requests per
// second with the given burst. A non-positive rps disables limiting and
// returns nil.
func NewRateLimiter(rps float64, burst int) RateLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &tokenBucket{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

type tokenBucket struct {
	limiter *rate.Limiter
}

func (b *tokenBucket) Wait(ctx context.Context) error {
	return b.limiter.Wait(ctx)
}
