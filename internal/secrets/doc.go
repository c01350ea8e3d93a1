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

/*
Package secrets resolves OAuth2 client registrations and other sensitive
settings from a priority-ordered chain of backends.

# Backends

	env      - Environment variables (SWITCHBOARD_SECRET_*, {PROVIDER}_CLIENT_ID)
	keychain - OS keychain (macOS Keychain, Linux Secret Service)

Keys are slash-separated paths:

	providers/slack/client_id
	providers/slack/client_secret

The environment backend is checked first and is read-only. Values stored with
"switchboard secrets set" go to the keychain.

# Usage

	resolver := secrets.NewResolver(secrets.NewEnvBackend(), secrets.NewKeychainBackend())
	clients := secrets.NewOAuthClients(resolver, cfg.Providers.Clients())
	ctrl, err := oauth.NewController(oauth.Config{Clients: clients, ...})
*/
package secrets
