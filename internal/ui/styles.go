// Package ui renders CLI output, with ANSI colors when the terminal allows.
package ui

import "fmt"

// ANSI256 colors.
const (
	colorAccent = 74  // blue
	colorWarn   = 173 // orange
	colorMuted  = 245 // gray
)

var noColor = !ShouldUseColor()

func paint(color int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// RenderAccent returns s in the accent color. Used for resource and
// parameter names.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderWarn returns s in the warning color.
func RenderWarn(s string) string { return paint(colorWarn, s) }

// RenderMuted returns s in the muted color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
