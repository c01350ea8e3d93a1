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

package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/tombee/switchboard/internal/oauth"
	sberrors "github.com/tombee/switchboard/pkg/errors"
)

// OAuthClients resolves OAuth2 client registrations. Values from the config
// file win; missing fields are looked up under ClientIDKey and
// ClientSecretKey.
type OAuthClients struct {
	resolver *Resolver
	static   oauth.StaticClients
}

// NewOAuthClients creates a client source. static may be nil.
func NewOAuthClients(resolver *Resolver, static oauth.StaticClients) *OAuthClients {
	return &OAuthClients{resolver: resolver, static: static}
}

// Client implements oauth.ClientSource.
func (c *OAuthClients) Client(ctx context.Context, integrationID string) (oauth.Client, error) {
	client := c.static[integrationID]

	var err error
	if client.ID == "" {
		if client.ID, err = c.lookup(ctx, ClientIDKey(integrationID)); err != nil {
			return oauth.Client{}, err
		}
	}
	if client.Secret == "" {
		if client.Secret, err = c.lookup(ctx, ClientSecretKey(integrationID)); err != nil {
			return oauth.Client{}, err
		}
	}
	if client.ID == "" || client.Secret == "" {
		return oauth.Client{}, &sberrors.ConfigError{
			Key:    "providers." + integrationID,
			Reason: "client_id and client_secret are required for OAuth2",
		}
	}
	return client, nil
}

// lookup returns "" for a missing key so the caller reports one error for
// the whole registration.
func (c *OAuthClients) lookup(ctx context.Context, key string) (string, error) {
	if c.resolver == nil {
		return "", nil
	}
	v, err := c.resolver.Get(ctx, key)
	if errors.Is(err, ErrSecretNotFound) {
		return "", nil
	}
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) && len(c.resolver.Backends()) == 0 {
			return "", nil
		}
		return "", fmt.Errorf("resolve %s: %w", key, err)
	}
	return v, nil
}
