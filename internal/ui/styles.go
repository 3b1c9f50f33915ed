// Package ui provides terminal styling for wcl output.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Semantic status colors, adaptive for light/dark terminals.
var (
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#86b300",
		Dark:  "#c2d94c",
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49",
		Dark:  "#ffb454",
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6",
		Dark:  "#59c2ff",
	}
)

// Status styles, consistent across all commands.
var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	TitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

// Status icons.
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
)

// DisableColor forces plain output, for --no-color and non-TTY pipes.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// Pass renders text in the pass (green) style.
func Pass(s string) string { return PassStyle.Render(s) }

// Warn renders text in the warning (yellow) style.
func Warn(s string) string { return WarnStyle.Render(s) }

// Fail renders text in the fail (red) style.
func Fail(s string) string { return FailStyle.Render(s) }

// Muted renders text in the muted (gray) style.
func Muted(s string) string { return MutedStyle.Render(s) }

// Accent renders text in the accent (blue) style.
func Accent(s string) string { return AccentStyle.Render(s) }

// Title renders a bold section header.
func Title(s string) string { return TitleStyle.Render(s) }

// StatusIcon maps a check status to its styled icon.
func StatusIcon(status string) string {
	switch status {
	case "ok":
		return PassStyle.Render(IconPass)
	case "warning":
		return WarnStyle.Render(IconWarn)
	default:
		return FailStyle.Render(IconFail)
	}
}
