package tui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	colorAccent = lipgloss.AdaptiveColor{Light: "#5A3FC0", Dark: "#B4A7FF"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#6B6B6B", Dark: "#8A8A8A"}
	colorError  = lipgloss.AdaptiveColor{Light: "#B00020", Dark: "#FF6B6B"}

	styleTitle    = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	styleCursor   = lipgloss.NewStyle().Bold(true).Reverse(true)
	styleSelected = lipgloss.NewStyle().Foreground(colorAccent)
	styleMuted    = lipgloss.NewStyle().Foreground(colorMuted)
	styleError    = lipgloss.NewStyle().Foreground(colorError)
)

// applyColorProfilePreference sets Lip Gloss's color profile for the TUI.
//
// termenv.EnvColorProfile honors CLICOLOR, which can switch colors off inside a
// terminal that supports them, so only NO_COLOR is respected here.
func applyColorProfilePreference() {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	profile := termenv.ColorProfile()
	colorterm := strings.ToLower(strings.TrimSpace(os.Getenv("COLORTERM")))
	term := strings.ToLower(strings.TrimSpace(os.Getenv("TERM")))
	switch {
	case strings.Contains(colorterm, "truecolor") || strings.Contains(colorterm, "24bit"):
		if profile != termenv.Ascii {
			profile = termenv.TrueColor
		}
	case strings.Contains(term, "256color"):
		if profile == termenv.Ascii || profile == termenv.ANSI {
			profile = termenv.ANSI256
		}
	}
	lipgloss.SetColorProfile(profile)
}

// applyThemePreference pins Lip Gloss's background detection when the user
// asks for it: CANOPY_TUI_THEME=light|dark, then CANOPY_TUI_DARKBG=true|false.
func applyThemePreference() {
	switch themePreference() {
	case "light":
		lipgloss.SetHasDarkBackground(false)
	case "dark":
		lipgloss.SetHasDarkBackground(true)
	}
}

func themePreference() string {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("CANOPY_TUI_THEME"))) {
	case "light":
		return "light"
	case "dark":
		return "dark"
	}
	if v := strings.TrimSpace(os.Getenv("CANOPY_TUI_DARKBG")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			if b {
				return "dark"
			}
			return "light"
		}
	}
	return ""
}

func markdownStyle() string {
	if s := themePreference(); s != "" {
		return s
	}
	if lipgloss.HasDarkBackground() {
		return "dark"
	}
	return "light"
}
