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

package errors

import (
	"fmt"
)

// Error type identifiers returned by ErrorClassifier.ErrorType.
const (
	TypeConfig     = "config"
	TypeAuth       = "auth"
	TypeDelivery   = "delivery"
	TypeValidation = "validation"
	TypeNotFound   = "not_found"
)

// ConfigError represents configuration problems.
// Use this for unknown provider ids, missing client credentials or invalid
// config values. Configuration errors are fatal at call time and never retried.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "providers.slack.client_id")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ConfigError) ErrorType() string { return TypeConfig }

// IsRetryable implements ErrorClassifier.
func (e *ConfigError) IsRetryable() bool { return false }

// AuthError represents an authentication failure: an invalid or expired
// credential, a failed token refresh, or a webhook signature mismatch.
type AuthError struct {
	// Provider is the integration id the credential belongs to (empty for webhooks)
	Provider string

	// Message is the human-readable error description
	Message string

	// Reauthorize is true when the user must reconnect the account.
	// The execution engine short-circuits instead of retrying.
	Reauthorize bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	msg := "authentication failed"
	if e.Provider != "" {
		msg = fmt.Sprintf("%s authentication failed", e.Provider)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Reauthorize {
		msg += " (reconnect required)"
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *AuthError) ErrorType() string { return TypeAuth }

// IsRetryable implements ErrorClassifier.
func (e *AuthError) IsRetryable() bool { return false }

// DeliveryError represents a transient delivery failure: a network error or a
// non-2xx response from a provider or webhook target.
type DeliveryError struct {
	// Target is the URL or provider the request was sent to
	Target string

	// StatusCode is the HTTP status code (zero for network errors)
	StatusCode int

	// Message is the human-readable error description
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("delivery to %s failed [HTTP %d]: %s", e.Target, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("delivery to %s failed: %s", e.Target, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *DeliveryError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *DeliveryError) ErrorType() string { return TypeDelivery }

// IsRetryable implements ErrorClassifier.
func (e *DeliveryError) IsRetryable() bool { return true }

// ValidationError represents user input validation failures.
// Use this for malformed action input or constraint violations.
type ValidationError struct {
	// Field identifies which input field failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ErrorType implements ErrorClassifier.
func (e *ValidationError) ErrorType() string { return TypeValidation }

// IsRetryable implements ErrorClassifier.
func (e *ValidationError) IsRetryable() bool { return false }

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "connection", "webhook", "integration")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrorType implements ErrorClassifier.
func (e *NotFoundError) ErrorType() string { return TypeNotFound }

// IsRetryable implements ErrorClassifier.
func (e *NotFoundError) IsRetryable() bool { return false }
