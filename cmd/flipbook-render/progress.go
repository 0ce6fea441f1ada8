package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/drummonds/goflipbook/document"
)

var termGetSize = term.GetSize

const defaultWidth = 80

// progressPrinter redraws a single progress line on terminals and prints
// one line per report otherwise
type progressPrinter struct {
	out         io.Writer
	interactive bool
	width       int
	drawn       bool
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	p := &progressPrinter{out: out, width: defaultWidth}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.interactive = true
		if w, _, err := termGetSize(int(f.Fd())); err == nil && w > 0 {
			p.width = w
		}
	}
	return p
}

// Report draws one progress report
func (p *progressPrinter) Report(progress document.Progress) {
	if !p.interactive {
		fmt.Fprintf(p.out, "%3d%% %s\n", progress.Percent, progress.Status)
		return
	}
	fmt.Fprintf(p.out, "\r%s", progressLine(progress, p.width))
	p.drawn = true
}

// Done ends the redrawn line
func (p *progressPrinter) Done() {
	if p.drawn {
		fmt.Fprintln(p.out)
		p.drawn = false
	}
}

// progressLine fits "[####----] 42% status" into width columns. The bar
// shrinks first, then the status is truncated.
func progressLine(progress document.Progress, width int) string {
	if width <= 0 {
		width = defaultWidth
	}
	pct := fmt.Sprintf(" %3d%% ", progress.Percent)
	status := progress.Status

	barWidth := width - len(pct) - len(status) - 3
	if barWidth > 40 {
		barWidth = 40
	}
	if barWidth < 10 {
		barWidth = 10
	}
	room := width - barWidth - len(pct) - 3
	if room < 0 {
		room = 0
	}
	if len(status) > room {
		status = status[:room]
	}

	filled := barWidth * progress.Percent / 100
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled)
	line := "[" + bar + "]" + pct + status
	return line + strings.Repeat(" ", max(0, width-1-len(line)))
}
