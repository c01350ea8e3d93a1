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
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tombee/switchboard/internal/store"
	"github.com/tombee/switchboard/internal/webhook"
)

// handleInbound is POST /webhooks/incoming/{webhookID}. The raw body is
// passed to the gateway untouched so the signature covers the exact bytes.
func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		WriteError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	res, err := s.webhooks.HandleInbound(r.Context(),
		chi.URLParam(r, "webhookID"), r.Header.Get(webhook.SignatureHeader), body)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]any{
		"status":      "triggered",
		"run_id":      res.RunID,
		"workflow_id": res.WorkflowID,
	})
}

// webhookWithSecret exposes the secret once, on creation or rotation.
type webhookWithSecret struct {
	*store.Webhook
	Secret string `json:"secret,omitempty"`
}

func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := s.webhooks.List(r.Context(), store.WebhookFilter{
		Direction: store.Direction(r.URL.Query().Get("direction")),
	})
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if hooks == nil {
		hooks = []*store.Webhook{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"webhooks": hooks})
}

func (s *Server) handleCreateIncoming(w http.ResponseWriter, r *http.Request) {
	var p webhook.IncomingParams
	if err := decodeBody(r, &p); err != nil {
		s.writeErr(w, r, err)
		return
	}
	hook, err := s.webhooks.CreateIncoming(r.Context(), p)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, webhookWithSecret{Webhook: hook, Secret: hook.Secret})
}

func (s *Server) handleCreateOutgoing(w http.ResponseWriter, r *http.Request) {
	var p webhook.OutgoingParams
	if err := decodeBody(r, &p); err != nil {
		s.writeErr(w, r, err)
		return
	}
	hook, err := s.webhooks.CreateOutgoing(r.Context(), p)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, hook)
}

func (s *Server) handleGetWebhook(w http.ResponseWriter, r *http.Request) {
	hook, err := s.webhooks.Get(r.Context(), chi.URLParam(r, "webhookID"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, hook)
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	if err := s.webhooks.Delete(r.Context(), chi.URLParam(r, "webhookID")); err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetWebhookEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hook, err := s.webhooks.SetEnabled(r.Context(), chi.URLParam(r, "webhookID"), enabled)
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, hook)
	}
}

func (s *Server) handleRotateSecret(w http.ResponseWriter, r *http.Request) {
	hook, err := s.webhooks.RotateSecret(r.Context(), chi.URLParam(r, "webhookID"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, webhookWithSecret{Webhook: hook, Secret: hook.Secret})
}

func (s *Server) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	res, err := s.dispatcher.SendTest(r.Context(), chi.URLParam(r, "webhookID"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

type publishRequest struct {
	Event webhook.Event  `json:"event"`
	Data  map[string]any `json:"data"`
}

// handlePublishEvent lets the execution engine report lifecycle events.
// Deliveries run in the background; the response only counts them.
func (s *Server) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if req.Data == nil {
		req.Data = map[string]any{}
	}
	n, err := s.dispatcher.Dispatch(r.Context(), req.Event, req.Data)
	if err != nil {
		if errors.Is(err, webhook.ErrDispatcherClosed) {
			WriteError(w, http.StatusServiceUnavailable, "shutting down")
			return
		}
		s.writeErr(w, r, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]any{"event": req.Event, "deliveries": n})
}

