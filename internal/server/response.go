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

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/tombee/switchboard/internal/log"
	"github.com/tombee/switchboard/internal/transport"
	sberrors "github.com/tombee/switchboard/pkg/errors"
)

// maxBodyBytes caps request bodies, including inbound webhook payloads.
const maxBodyBytes = 1 << 20

// WriteJSON writes data as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", slog.Any("error", err))
	}
}

// WriteError writes a JSON error response with the given status code and message.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{
		"error": message,
	})
}

// statusOf maps the error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	var (
		notFound   *sberrors.NotFoundError
		validation *sberrors.ValidationError
		auth       *sberrors.AuthError
		cfg        *sberrors.ConfigError
		tErr       *transport.TransportError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &auth):
		return http.StatusUnauthorized
	case errors.As(err, &cfg):
		return http.StatusBadRequest
	case errors.As(err, &tErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeErr writes err with its mapped status. Unclassified errors are logged
// and reported generically.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.WithRequestID(s.logger, middleware.GetReqID(r.Context())).
			Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		WriteError(w, status, "internal error")
		return
	}

	body := map[string]any{"error": err.Error(), "type": sberrors.TypeOf(err)}
	if sberrors.IsRetryable(err) {
		body["retryable"] = true
	}
	if sberrors.IsReauthorize(err) {
		body["reconnect_required"] = true
	}
	var validation *sberrors.ValidationError
	if errors.As(err, &validation) && validation.Suggestion != "" {
		body["suggestion"] = validation.Suggestion
	}
	WriteJSON(w, status, body)
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &sberrors.ValidationError{
			Field:   "body",
			Message: fmt.Sprintf("invalid JSON body: %v", err),
		}
	}
	return nil
}
