// Package theme maps control states to display colors for the CLI
// status line.
package theme

import "github.com/charmbracelet/lipgloss"

// Default colors, overridable per state from configuration.
const (
	defaultIdle         = "#22c55e"
	defaultActive       = "#ef4444"
	defaultDisabled     = "#6b7280"
	defaultTranscribing = "#eab308"
	defaultRipple       = "#3b82f6"
)

// Colors holds per-state color overrides. Empty fields keep defaults.
type Colors struct {
	Idle         string
	Active       string
	Disabled     string
	Transcribing string
	Ripple       string
}

// Theme renders state labels with their configured colors. Ripple is
// the accent used for transient feedback (elapsed counter, spinners).
type Theme struct {
	Idle         lipgloss.Style
	Active       lipgloss.Style
	Disabled     lipgloss.Style
	Transcribing lipgloss.Style
	Ripple       lipgloss.Style
}

// Default returns the stock theme.
func Default() Theme {
	return New(Colors{})
}

// New builds a theme from overrides, falling back to defaults for empty
// fields.
func New(c Colors) Theme {
	return Theme{
		Idle:         styleFor(c.Idle, defaultIdle),
		Active:       styleFor(c.Active, defaultActive),
		Disabled:     styleFor(c.Disabled, defaultDisabled),
		Transcribing: styleFor(c.Transcribing, defaultTranscribing),
		Ripple:       styleFor(c.Ripple, defaultRipple),
	}
}

func styleFor(color, fallback string) lipgloss.Style {
	if color == "" {
		color = fallback
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
}
