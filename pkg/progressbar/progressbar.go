// Package progressbar renders an in-place progress bar on stderr.
//
// The bar reuses the bubbles progress component as a pure renderer
// (ViewAs) instead of running a TUI program, because stdout belongs
// to the children and stderr must stay line-oriented for diagnostics.
// $PROGRESS_STYLE selects the visual style: dark_bg (default),
// light_bg, or simple (plain ASCII, no color).
package progressbar

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// EnvVar names the environment variable that selects the style.
const EnvVar = "PROGRESS_STYLE"

const barWidth = 40

// Bar tracks and paints completion. It is owned by the sink and is
// not safe for concurrent use.
type Bar struct {
	out   io.Writer
	total int64 // < 0 when unknown (streaming input)
	done  int64
	style string
	model progress.Model
	label lipgloss.Style
}

// New builds a bar with the style taken from $PROGRESS_STYLE.
// total < 0 means the input size is unknown.
func New(out io.Writer, total int64) *Bar {
	return NewWithStyle(out, total, os.Getenv(EnvVar))
}

// NewWithStyle builds a bar with an explicit style name. An empty
// name consults $PROGRESS_STYLE; unknown names fall back to dark_bg.
func NewWithStyle(out io.Writer, total int64, style string) *Bar {
	if style == "" {
		style = os.Getenv(EnvVar)
	}
	b := &Bar{out: out, total: total, style: style}
	switch style {
	case "light_bg":
		b.model = progress.New(
			progress.WithGradient("#005F87", "#00AF5F"),
			progress.WithWidth(barWidth),
			progress.WithoutPercentage(),
		)
		b.label = lipgloss.NewStyle().Foreground(lipgloss.Color("235"))
	case "simple":
		// rendered by hand, no color
	default:
		b.style = "dark_bg"
		b.model = progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(barWidth),
			progress.WithoutPercentage(),
		)
		b.label = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	}
	return b
}

// Increment records one finished invocation and repaints.
func (b *Bar) Increment() {
	b.done++
	b.render()
}

// Finish clears the bar line so the summary and shell prompt land on
// a clean line.
func (b *Bar) Finish() {
	fmt.Fprint(b.out, "\r\x1b[K")
}

func (b *Bar) render() {
	if b.total < 0 {
		fmt.Fprintf(b.out, "\r\x1b[K%s", b.count())
		return
	}
	frac := 1.0
	if b.total > 0 {
		frac = float64(b.done) / float64(b.total)
	}
	if b.style == "simple" {
		fmt.Fprintf(b.out, "\r\x1b[K[%s] %s", asciiBar(frac), b.count())
		return
	}
	fmt.Fprintf(b.out, "\r\x1b[K%s %s", b.model.ViewAs(frac), b.label.Render(b.count()))
}

func (b *Bar) count() string {
	if b.total < 0 {
		return fmt.Sprintf("%d done", b.done)
	}
	return fmt.Sprintf("%d/%d", b.done, b.total)
}

// asciiBar renders the simple style: '#' for done, '-' for remaining.
func asciiBar(frac float64) string {
	if frac > 1 {
		frac = 1
	}
	filled := int(frac * barWidth)
	return strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled)
}
