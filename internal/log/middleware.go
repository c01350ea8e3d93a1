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

package log

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// HTTPMiddleware logs one line per handled request. Query strings are
// omitted because OAuth callbacks carry authorization codes in them.
func HTTPMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				DurationKey, time.Since(start).Milliseconds(),
				"remote", r.RemoteAddr,
			}
			reqLogger := logger
			if reqID := middleware.GetReqID(r.Context()); reqID != "" {
				reqLogger = WithRequestID(logger, reqID)
			}

			switch {
			case ww.Status() >= 500:
				reqLogger.Error("http request", attrs...)
			case ww.Status() >= 400:
				reqLogger.Warn("http request", attrs...)
			default:
				reqLogger.Debug("http request", attrs...)
			}
		})
	}
}
