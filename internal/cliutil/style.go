// Package cliutil provides the styled, non-interactive terminal output
// cmd/memvault's commands share: a lime-green accent palette adapted
// from the teacher's TUI theme (internal/ui/styles.go) to plain,
// line-oriented printing instead of a bubbletea dashboard, plus TTY
// detection so color is skipped when stdout is piped or NO_COLOR is
// set.
package cliutil

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

const (
	colorLime   = "154"
	colorGray   = "245"
	colorRed    = "196"
	colorYellow = "220"
)

// Styles holds the styled renderers a command uses for status lines.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
}

// plain is the zero-color fallback used when output isn't a color-capable TTY.
var plain = Styles{
	Header:  lipgloss.NewStyle(),
	Success: lipgloss.NewStyle(),
	Warning: lipgloss.NewStyle(),
	Error:   lipgloss.NewStyle(),
	Dim:     lipgloss.NewStyle(),
}

var colored = Styles{
	Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorLime)),
	Success: lipgloss.NewStyle().Foreground(lipgloss.Color(colorLime)),
	Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(colorYellow)),
	Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
	Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
}

// For returns the color or plain style set depending on whether w
// supports color: a real TTY and no NO_COLOR override.
func For(w io.Writer) Styles {
	if !IsTTY(w) || noColor() {
		return plain
	}
	return colored
}

// IsTTY reports whether w is a terminal file descriptor.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func noColor() bool {
	_, set := os.LookupEnv("NO_COLOR")
	return set
}
