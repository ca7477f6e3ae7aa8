package ui

import "fmt"

// Style is an ANSI 256-color foreground.
type Style int

// Palette.
const (
	Accent  Style = 74  // blue
	Command Style = 250 // light gray
	Muted   Style = 245 // medium gray
	Error   Style = 203 // red
	Success Style = 114 // green
)

// Render returns s in the style's color, or s unchanged when color is off.
func (st Style) Render(s string, color bool) string {
	if !color || s == "" {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", int(st), s)
}
