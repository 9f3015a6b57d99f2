// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Styles colours listing output. Built with [NewStyles], it renders
// plain text when the writer is not a terminal.
type Styles struct {
	Directory lipgloss.Style
	File      lipgloss.Style
	Size      lipgloss.Style
	Time      lipgloss.Style
	Header    lipgloss.Style
	Label     lipgloss.Style
	Faint     lipgloss.Style
	Error     lipgloss.Style
}

// NewStyles returns styles whose colour profile matches w.
func NewStyles(w io.Writer) Styles {
	renderer := lipgloss.NewRenderer(w)
	return Styles{
		Directory: renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		File:      renderer.NewStyle(),
		Size:      renderer.NewStyle().Foreground(lipgloss.Color("10")),
		Time:      renderer.NewStyle().Foreground(lipgloss.Color("8")),
		Header:    renderer.NewStyle().Bold(true).Underline(true),
		Label:     renderer.NewStyle().Bold(true),
		Faint:     renderer.NewStyle().Faint(true),
		Error:     renderer.NewStyle().Foreground(lipgloss.Color("9")),
	}
}
