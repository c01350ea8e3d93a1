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
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tombee/switchboard/internal/credential"
	"github.com/tombee/switchboard/internal/schema"
	sberrors "github.com/tombee/switchboard/pkg/errors"
)

func (s *Server) handleListIntegrations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := schema.Category(q.Get("category"))

	defs := make([]*schema.IntegrationDefinition, 0)
	for _, a := range s.catalog.Search(q.Get("q")) {
		def := a.Definition()
		if category != "" && def.Category != category {
			continue
		}
		defs = append(defs, def)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"integrations": defs})
}

func (s *Server) handleGetIntegration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "integrationID")
	a := s.catalog.Get(id)
	if a == nil {
		s.writeErr(w, r, &sberrors.NotFoundError{Resource: "integration", ID: id})
		return
	}
	WriteJSON(w, http.StatusOK, a.Definition())
}

// handleAuthorize starts an OAuth2 flow. Browsers are redirected to the
// provider; JSON clients receive the URL.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "integrationID")
	if s.catalog.Get(id) == nil {
		s.writeErr(w, r, &sberrors.NotFoundError{Resource: "integration", ID: id})
		return
	}
	q := r.URL.Query()
	redirect := q.Get("redirect_url")
	if redirect != "" && !s.redirectAllowed(redirect) {
		s.writeErr(w, r, &sberrors.ValidationError{
			Field:      "redirect_url",
			Message:    "redirect_url is not an allowed origin",
			Suggestion: "add the origin to server.redirect_origins",
		})
		return
	}
	authURL, err := s.connections.StartOAuth(r.Context(), id, q.Get("name"), redirect)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		WriteJSON(w, http.StatusOK, map[string]string{"authorization_url": authURL})
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleOAuthCallback completes an OAuth2 flow. When the flow was started
// with a redirect_url the user agent is sent there with the outcome.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		msg := providerErr
		if desc := q.Get("error_description"); desc != "" {
			msg += ": " + desc
		}
		s.writeErr(w, r, &sberrors.AuthError{Message: "authorization denied: " + msg})
		return
	}

	res, err := s.connections.CompleteOAuth(r.Context(), q.Get("state"), q.Get("code"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if res.RedirectURL != "" && s.redirectAllowed(res.RedirectURL) {
		if target, err := url.Parse(res.RedirectURL); err == nil {
			values := target.Query()
			values.Set("connection_id", res.Connection.ID)
			values.Set("status", "connected")
			target.RawQuery = values.Encode()
			http.Redirect(w, r, target.String(), http.StatusFound)
			return
		}
	}
	WriteJSON(w, http.StatusCreated, viewOf(res.Connection))
}

// redirectAllowed reports whether raw is a same-host path or points at one
// of the configured redirect origins.
func (s *Server) redirectAllowed(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme == "" && u.Host == "" {
		return strings.HasPrefix(u.Path, "/") && !strings.HasPrefix(raw, "//") && !strings.Contains(raw, "\\")
	}
	origin := strings.ToLower(u.Scheme + "://" + u.Host)
	for _, allowed := range s.cfg.RedirectOrigins {
		if strings.ToLower(strings.TrimRight(allowed, "/")) == origin {
			return true
		}
	}
	return false
}

// connectionView is a connection without its secrets.
type connectionView struct {
	ID            string          `json:"id"`
	IntegrationID string          `json:"integration_id"`
	Name          string          `json:"name"`
	AuthKind      credential.Kind `json:"auth_kind"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
	Refreshable   bool            `json:"refreshable,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	Enabled       bool            `json:"enabled"`
	LastUsedAt    *time.Time      `json:"last_used_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func viewOf(c *credential.Credential) connectionView {
	return connectionView{
		ID:            c.ID,
		IntegrationID: c.IntegrationID,
		Name:          c.Name,
		AuthKind:      c.Credentials.Kind(),
		ExpiresAt:     c.Credentials.ExpiresAt,
		Refreshable:   c.Credentials.RefreshToken != "",
		Metadata:      c.Metadata,
		Enabled:       c.Enabled,
		LastUsedAt:    c.LastUsedAt,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

type createConnectionRequest struct {
	IntegrationID string            `json:"integration_id"`
	Name          string            `json:"name"`
	APIKey        string            `json:"api_key,omitempty"`
	Username      string            `json:"username,omitempty"`
	Password      string            `json:"password,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	var req createConnectionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	a := s.catalog.Get(req.IntegrationID)
	if a == nil {
		s.writeErr(w, r, &sberrors.NotFoundError{Resource: "integration", ID: req.IntegrationID})
		return
	}

	var (
		c   *credential.Credential
		err error
	)
	switch def := a.Definition(); def.AuthType {
	case schema.AuthAPIKey:
		c, err = s.connections.ConnectAPIKey(r.Context(), def.ID, req.Name, req.APIKey, req.Extra)
	case schema.AuthBasicAuth:
		c, err = s.connections.ConnectBasicAuth(r.Context(), def.ID, req.Name, req.Username, req.Password, req.Extra)
	default:
		err = &sberrors.ValidationError{
			Field:      "integration_id",
			Message:    def.Name + " uses " + string(def.AuthType) + " authentication",
			Suggestion: "start an OAuth2 flow at /v1/integrations/" + def.ID + "/authorize",
		}
	}
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, viewOf(c))
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := s.connections.List(r.Context(), r.URL.Query().Get("integration_id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	views := make([]connectionView, 0, len(conns))
	for _, c := range conns {
		views = append(views, viewOf(c))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"connections": views})
}

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	c, err := s.connections.Get(r.Context(), chi.URLParam(r, "connectionID"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, viewOf(c))
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	if err := s.connections.Delete(r.Context(), chi.URLParam(r, "connectionID")); err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetConnectionEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.connections.SetEnabled(r.Context(), chi.URLParam(r, "connectionID"), enabled)
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, viewOf(c))
	}
}

func (s *Server) handleValidateConnection(w http.ResponseWriter, r *http.Request) {
	res, err := s.connections.Validate(r.Context(), chi.URLParam(r, "connectionID"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

type invokeRequest struct {
	Input map[string]any `json:"input"`
}

// handleInvoke runs an action. A failed action is still a 200 with
// success=false; only lookup, disabled and reauthorization failures map to
// error statuses.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			s.writeErr(w, r, err)
			return
		}
	}

	result, err := s.connections.Invoke(r.Context(),
		chi.URLParam(r, "connectionID"), chi.URLParam(r, "actionID"), req.Input)
	if err != nil {
		body := map[string]any{"success": false, "error": result.Error}
		if sberrors.IsReauthorize(err) {
			body["reconnect_required"] = true
		}
		WriteJSON(w, statusOf(err), body)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}
