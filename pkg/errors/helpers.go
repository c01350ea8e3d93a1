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
	"errors"
	"fmt"
)

// Wrap creates a new error that wraps the given error with additional context.
// If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf creates a new error that wraps the given error with formatted context.
// If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(message string) error {
	return errors.New(message)
}

// IsReauthorize returns true if err is an AuthError that requires the user
// to reconnect the account.
func IsReauthorize(err error) bool {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Reauthorize
	}
	return false
}

// IsRetryable returns true if any error in the chain classifies itself as
// retryable. Unclassified errors are not retryable.
func IsRetryable(err error) bool {
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.IsRetryable()
	}
	return false
}

// TypeOf returns the classification of err, or "unknown".
func TypeOf(err error) string {
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.ErrorType()
	}
	return "unknown"
}
