package output

import (
	"fmt"
	"io"
)

// Spinner animates a single terminal line while the program waits.
type Spinner struct {
	out    io.Writer
	frames []string
	index  int
	label  string
}

// NewSpinner creates a spinner drawing a braille wave in front of label.
func NewSpinner(out io.Writer, label string) *Spinner {
	return &Spinner{
		out: out,
		frames: []string{
			"⣀⣀", "⣄⣀", "⣤⣀", "⣦⣄", "⣶⣤", "⣿⣦", "⣿⣷", "⣿⣿",
			"⣷⣿", "⣦⣿", "⣤⣷", "⣄⣦", "⣀⣤", "⣀⣄",
		},
		label: label,
	}
}

// Update advances the spinner to the next frame and prints it.
func (s *Spinner) Update() {
	// hide cursor
	fmt.Fprint(s.out, "\033[?25l")
	fmt.Fprintf(s.out, "\r%s %s", s.frames[s.index], s.label)

	s.index = (s.index + 1) % len(s.frames)
}

// Cleanup erases the line and shows the cursor again.
func (s *Spinner) Cleanup() {
	fmt.Fprintf(s.out, "\r%*s\r", len(s.label)+4, "")
	fmt.Fprint(s.out, "\033[?25h")
}
