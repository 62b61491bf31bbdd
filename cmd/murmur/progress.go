package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"murmur/internal/logging"
	"murmur/internal/protocol"
)

// progressPrinter renders worker progress to a terminal in place, or as
// sampled lines when output is not a TTY.
type progressPrinter struct {
	out     io.Writer
	tty     bool
	sampler *logging.ProgressSampler
	active  bool
}

func newProgressPrinter(out io.Writer, tty bool) *progressPrinter {
	return &progressPrinter{
		out:     out,
		tty:     tty,
		sampler: logging.NewProgressSampler(5),
	}
}

func (p *progressPrinter) Update(event protocol.ProgressEvent) {
	percent := event.Progress * 100
	status := strings.TrimSpace(event.Status)

	if p.tty {
		line := fmt.Sprintf("\r%5.1f%%", percent)
		if status != "" {
			line += "  " + status
		}
		if event.ETA != nil {
			line += "  eta " + formatETA(*event.ETA)
		}
		// Pad to clear leftovers from a longer previous line.
		fmt.Fprintf(p.out, "%-70s", line)
		p.active = true
		return
	}

	if p.sampler.ShouldLog(percent, status) {
		if status == "" {
			status = "working"
		}
		fmt.Fprintf(p.out, "%s %.0f%%\n", status, percent)
	}
}

// Finish terminates an in-place progress line so subsequent output starts on
// a fresh line.
func (p *progressPrinter) Finish() {
	if p.tty && p.active {
		fmt.Fprintln(p.out)
		p.active = false
	}
}

func formatETA(seconds float64) string {
	if seconds < 0 {
		return "?"
	}
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	if d >= time.Hour {
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
