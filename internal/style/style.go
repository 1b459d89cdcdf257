// Package style renders guardian output for terminals: colored when
// stdout is a TTY and the environment allows it, plain otherwise.
package style

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// IsTerminal returns true if stdout is connected to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor respects NO_COLOR (https://no-color.org/), CLICOLOR,
// and CLICOLOR_FORCE conventions.
func ShouldUseColor() bool {
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if _, exists := os.LookupEnv("CLICOLOR_FORCE"); exists {
		return true
	}
	return IsTerminal()
}

var (
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	criticalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Faint(true)
	headerStyle   = lipgloss.NewStyle().Bold(true)
)

// Level colors a risk or attention level string by severity.
func Level(level string) string {
	if !ShouldUseColor() {
		return level
	}
	switch level {
	case "ok", "none", "healthy":
		return okStyle.Render(level)
	case "warn", "info", "action_needed":
		return warnStyle.Render(level)
	case "critical", "urgent":
		return criticalStyle.Render(level)
	default:
		return level
	}
}

// Header renders a bold section header.
func Header(s string) string {
	if !ShouldUseColor() {
		return s
	}
	return headerStyle.Render(s)
}

// Dim renders secondary detail.
func Dim(s string) string {
	if !ShouldUseColor() {
		return s
	}
	return dimStyle.Render(s)
}
