// Package theme provides the Lip Gloss color palette and reusable styles
// for the heaven console TUI. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Job status colors, as heaven paints its port tiles.
var (
	ColorIdle          = lipgloss.Color("#ffffff")
	ColorFinishSuccess = lipgloss.Color("#00ff00")
	ColorFinishWarning = lipgloss.Color("#ff9933")
	ColorFinishError   = lipgloss.Color("#ff0000")
	ColorBusy          = lipgloss.Color("#33bbff")
	ColorRunningLong   = lipgloss.Color("#bb33ff")
	ColorFatal         = lipgloss.Color("#ff33dd")
	ColorDefault       = lipgloss.Color("#9ca3af")
)

// Bridge state colors.
var (
	ColorAttached     = lipgloss.Color("#22c55e")
	ColorConnecting   = lipgloss.Color("#d97706")
	ColorDisconnected = lipgloss.Color("#dc2626")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorAccent  = lipgloss.Color("#7c3aed")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// Statuses lists heaven's job status names in legend order.
var Statuses = []string{"Idle", "Busy", "RunningLong", "FinishSuccess", "FinishWarning", "FinishError", "Fatal"}

// StatusColor returns the tile color for a heaven job status name.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "Idle":
		return ColorIdle
	case "FinishSuccess":
		return ColorFinishSuccess
	case "FinishWarning":
		return ColorFinishWarning
	case "FinishError":
		return ColorFinishError
	case "Busy":
		return ColorBusy
	case "RunningLong":
		return ColorRunningLong
	case "Fatal":
		return ColorFatal
	default:
		return ColorDefault
	}
}

// StateColor returns the color for a serial bridge state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "attached":
		return ColorAttached
	case "connecting":
		return ColorConnecting
	default:
		return ColorDisconnected
	}
}

// StateGlyph returns a Unicode glyph for a serial bridge state name.
func StateGlyph(state string) string {
	switch state {
	case "attached":
		return "●"
	case "connecting":
		return "◎"
	default:
		return "○"
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright).
			Background(ColorAccent)

	StyleInput = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBg).
			Background(ColorWarning)
)
