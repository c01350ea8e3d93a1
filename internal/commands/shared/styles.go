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
	"github.com/charmbracelet/lipgloss"

	"github.com/tombee/switchboard/internal/schema"
)

var (
	StatusOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	StatusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red
	Muted       = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray
	Bold        = lipgloss.NewStyle().Bold(true)
	Header      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))

	// authStyles colors the auth model column of catalog listings.
	authStyles = map[schema.AuthType]lipgloss.Style{
		schema.AuthOAuth2:    lipgloss.NewStyle().Foreground(lipgloss.Color("141")), // purple
		schema.AuthAPIKey:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")), // orange
		schema.AuthBasicAuth: lipgloss.NewStyle().Foreground(lipgloss.Color("45")),  // cyan
	}
)

const (
	SymbolOK    = "✓"
	SymbolError = "✗"
	SymbolInfo  = "•"
)

// RenderOK prefixes msg with a green check mark.
func RenderOK(msg string) string {
	return StatusOK.Render(SymbolOK) + " " + msg
}

// RenderError prefixes msg with a red cross.
func RenderError(msg string) string {
	return StatusError.Render(SymbolError) + " " + msg
}

// RenderLabel renders the key half of a key: value line.
func RenderLabel(label string) string {
	return Muted.Render(label)
}

// RenderAuth renders an auth model padded to width.
func RenderAuth(auth schema.AuthType, width int) string {
	style, ok := authStyles[auth]
	if !ok {
		style = Muted
	}
	return style.Width(width).Render(string(auth))
}

// RenderPresence renders a check mark or cross.
func RenderPresence(ok bool) string {
	if ok {
		return StatusOK.Render(SymbolOK)
	}
	return StatusError.Render(SymbolError)
}
