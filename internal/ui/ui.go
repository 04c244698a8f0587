// Package ui holds the terminal presentation helpers used by the CLI.
// Nothing here reads from the terminal; all output goes to the writer the
// caller passes in.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Success prints a highlighted status line.
func Success(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, render(w, successStyle, "✓ "+fmt.Sprintf(format, args...)))
}

// Error prints a highlighted error line.
func Error(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, render(w, errorStyle, "✗ "+fmt.Sprintf(format, args...)))
}

// Muted prints a dimmed line.
func Muted(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, render(w, mutedStyle, fmt.Sprintf(format, args...)))
}

// List prints one line per item with a numbered accent prefix.
func List(w io.Writer, items []string) {
	for i, item := range items {
		fmt.Fprintf(w, "%s %s\n", render(w, accentStyle, fmt.Sprintf("%2d.", i+1)), item)
	}
}

// render applies style only when w is a terminal, so piped output stays
// plain text.
func render(w io.Writer, style lipgloss.Style, s string) string {
	if !IsTerminal(w) {
		return s
	}
	return style.Render(s)
}
