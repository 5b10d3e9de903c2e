package record

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

const (
	defaultBarWidth = 40
	minBarWidth     = 10
	// room for the elapsed time, byte count and brackets
	statusWidth = 32
)

// terminalMeter is a controller.MeterView that only stores the latest level;
// drawing happens on the command's own ticker so SetLevel never blocks.
type terminalMeter struct {
	out   io.Writer
	tty   bool
	width int
	level atomic.Uint64
	drawn atomic.Bool
}

func newTerminalMeter(out io.Writer) *terminalMeter {
	m := &terminalMeter{out: out, width: defaultBarWidth}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		m.tty = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w-statusWidth >= minBarWidth {
			m.width = min(w-statusWidth, 60)
		}
	}
	return m
}

func (m *terminalMeter) SetLevel(level float64) {
	m.level.Store(math.Float64bits(level))
}

func (m *terminalMeter) Level() float64 {
	return math.Float64frombits(m.level.Load())
}

// Draw redraws the meter line in place. It does nothing when the output is
// not a terminal.
func (m *terminalMeter) Draw(elapsed time.Duration, bytes int64) {
	if !m.tty {
		return
	}
	fmt.Fprintf(m.out, "\r%s", renderLine(m.Level(), elapsed, bytes, m.width))
	m.drawn.Store(true)
}

// Clear erases the meter line.
func (m *terminalMeter) Clear() {
	if m.tty && m.drawn.Load() {
		fmt.Fprintf(m.out, "\r%s\r", strings.Repeat(" ", m.width+statusWidth))
	}
}

func renderLine(level float64, elapsed time.Duration, bytes int64, width int) string {
	level = max(0, min(1, level))
	filled := int(math.Round(level * float64(width)))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	secs := int(elapsed / time.Second)
	return fmt.Sprintf("● %02d:%02d [%s] %s", secs/60, secs%60, bar, formatBytes(bytes))
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
