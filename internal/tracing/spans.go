// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/tombee/switchboard"

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartAction creates a client span for one provider action call.
func StartAction(ctx context.Context, provider, action string) (context.Context, trace.Span) {
	return tracer().Start(ctx, fmt.Sprintf("action: %s.%s", provider, action),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("integration.provider", provider),
			attribute.String("integration.action", action),
			attribute.String("span.type", "integration.action"),
		),
	)
}

// StartRefresh creates a client span for an OAuth2 token refresh.
func StartRefresh(ctx context.Context, provider, connectionID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, fmt.Sprintf("oauth.refresh: %s", provider),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("integration.provider", provider),
			attribute.String("connection.id", connectionID),
			attribute.String("span.type", "oauth.refresh"),
		),
	)
}

// StartDelivery creates a producer span for one outbound webhook delivery.
func StartDelivery(ctx context.Context, webhookID, event string) (context.Context, trace.Span) {
	return tracer().Start(ctx, fmt.Sprintf("webhook.deliver: %s", event),
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("webhook.id", webhookID),
			attribute.String("webhook.event", event),
			attribute.String("span.type", "webhook.delivery"),
		),
	)
}

// End records err on the span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// EndWithStatus ends the span using a success flag and failure message, for
// callers that report failure as a value rather than an error.
func EndWithStatus(span trace.Span, success bool, message string) {
	if !success {
		span.SetStatus(codes.Error, message)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
