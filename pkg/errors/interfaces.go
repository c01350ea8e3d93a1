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

// Package errors defines the error taxonomy shared by integrations, the
// OAuth2 controller and the webhook gateway.
package errors

// ErrorClassifier allows errors to self-report their category and
// retryability so callers can route them without string matching.
type ErrorClassifier interface {
	error

	// ErrorType returns a string identifying the error category.
	// Examples: "config", "auth", "delivery", "validation", "not_found"
	ErrorType() string

	// IsRetryable returns true if the operation should be retried.
	IsRetryable() bool
}
