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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	sberrors "github.com/tombee/switchboard/pkg/errors"
)

// Exit codes
const (
	ExitSuccess     = 0
	ExitFailed      = 1
	ExitConfigError = 2
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates an error for unusable configuration.
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitConfigError, Message: msg, Cause: cause}
}

// HandleExitError prints err and exits with its code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	os.Exit(writeExitError(os.Stderr, err))
}

func writeExitError(w io.Writer, err error) int {
	fmt.Fprintln(w, RenderError(err.Error()))

	var valErr *sberrors.ValidationError
	if errors.As(err, &valErr) && valErr.Suggestion != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", valErr.Suggestion)
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var cfgErr *sberrors.ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfigError
	}
	return ExitFailed
}
