// Package ui provides consistent styling and components for the gesturesd CLI
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/bnema/gesturesd/internal/gesture"
	"github.com/charmbracelet/lipgloss"
)

// Color palette - consistent across the application
var (
	// Primary colors
	ColorPrimary   = lipgloss.Color("39")  // Bright blue
	ColorSecondary = lipgloss.Color("205") // Pink/magenta
	ColorSuccess   = lipgloss.Color("82")  // Green
	ColorWarning   = lipgloss.Color("214") // Orange
	ColorError     = lipgloss.Color("196") // Red
	ColorInfo      = lipgloss.Color("86")  // Cyan

	// Neutral colors
	ColorText   = lipgloss.Color("252") // Light gray
	ColorSubtle = lipgloss.Color("241") // Medium gray
	ColorMuted  = lipgloss.Color("238") // Dark gray

	// Status colors
	ColorAttached = ColorSuccess
	ColorLost     = ColorError
)

// Base styles - building blocks for other styles
var (
	TextStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	SubtleStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	BoldStyle = lipgloss.NewStyle().
			Bold(true)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			Background(ColorMuted).
			Padding(0, 1)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	InfoStyle = lipgloss.NewStyle().
			Foreground(ColorInfo)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary)
)

// Component-specific styles
var (
	AttachedIndicator = lipgloss.NewStyle().
				Foreground(ColorAttached).
				Render("●")

	DetachedIndicator = lipgloss.NewStyle().
				Foreground(ColorLost).
				Render("○")

	ControlKeyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	ControlDescStyle = lipgloss.NewStyle().
				Foreground(ColorText)

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorPrimary)

	TableCellStyle = lipgloss.NewStyle().
			PaddingRight(2)
)

// Icons and indicators
var (
	IconError   = "✗"
	IconWarning = "!"
	IconSpawn   = "$"
	IconInject  = "»"
)

var directionArrows = map[gesture.Direction]string{
	gesture.DirUp:               "↑",
	gesture.DirDown:             "↓",
	gesture.DirLeft:             "←",
	gesture.DirRight:            "→",
	gesture.DirUpLeft:           "↖",
	gesture.DirUpRight:          "↗",
	gesture.DirDownLeft:         "↙",
	gesture.DirDownRight:        "↘",
	gesture.DirIn:               "⇲",
	gesture.DirOut:              "⇱",
	gesture.DirClockwise:        "↻",
	gesture.DirCounterClockwise: "↺",
	gesture.DirAny:              "•",
}

// FormatControl renders a key binding hint
func FormatControl(key, desc string) string {
	return ControlKeyStyle.Render(key) + " - " + ControlDescStyle.Render(desc)
}

// FormatStatus prefixes status with an attached/detached indicator
func FormatStatus(attached bool, status string) string {
	indicator := DetachedIndicator
	if attached {
		indicator = AttachedIndicator
	}
	return indicator + " " + status
}

// FormatDirection renders a direction with its arrow
func FormatDirection(d gesture.Direction) string {
	if d == gesture.DirNone {
		return MutedStyle.Render("·  none")
	}
	return InfoStyle.Render(directionArrows[d] + " " + d.String())
}

// FormatClassification renders one line of the live gesture view
func FormatClassification(c gesture.Classification) string {
	line := fmt.Sprintf("%s %d  %s  |v|=%.2f  %s",
		BoldStyle.Render(c.Kind.String()), c.Fingers, FormatDirection(c.Direction), c.Magnitude, c.Duration.Round(time.Millisecond))
	switch {
	case c.Cancelled:
		line += "  " + WarningStyle.Render("cancelled")
	case c.Implicit:
		line += "  " + WarningStyle.Render("implicit end")
	case c.Terminal():
		line += "  " + SubtleStyle.Render("end")
	}
	return line
}

// FormatDispatch renders a backend call and its outcome
func FormatDispatch(d gesture.Dispatch, err error) string {
	icon := IconInject
	target := "inject " + d.Op.String()
	if d.Kind == gesture.DispatchSpawn {
		icon = IconSpawn
		target = d.Command
	}
	if err != nil {
		return ErrorStyle.Render(IconError+" "+icon+" "+target) + " " + SubtleStyle.Render(err.Error())
	}
	return SuccessStyle.Render(icon) + " " + TextStyle.Render(target) + SubtleStyle.Render(fmt.Sprintf("  binding %d", d.Binding))
}

// CreateSeparator creates a horizontal line separator
func CreateSeparator(width int, char string) string {
	if width <= 0 {
		width = 50 // Default width
	}
	if char == "" {
		char = "─"
	}

	return lipgloss.NewStyle().
		Foreground(ColorSubtle).
		Render(strings.Repeat(char, width))
}
