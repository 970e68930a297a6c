package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/wesm/mboxvault/internal/importer"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// CLIProgress reports archive ingest progress to the terminal. Running
// counts are redrawn in place only when the output is a terminal; the
// per-archive result line is always printed.
type CLIProgress struct {
	out       io.Writer
	live      bool
	archive   string
	startTime time.Time
	lastPrint time.Time
}

// NewCLIProgress returns a progress reporter writing to out.
func NewCLIProgress(out io.Writer) *CLIProgress {
	return &CLIProgress{out: out, live: isTerminal(out)}
}

func (p *CLIProgress) OnStart(archive string) {
	p.archive = filepath.Base(archive)
	p.startTime = time.Now()
	p.lastPrint = time.Time{}
}

func (p *CLIProgress) OnProgress(processed, failed int) {
	if !p.live {
		return
	}
	// Throttle output to every 500ms
	if time.Since(p.lastPrint) < 500*time.Millisecond {
		return
	}
	p.lastPrint = time.Now()

	elapsed := time.Since(p.startTime)
	rate := 0.0
	if elapsed.Seconds() >= 1 {
		rate = float64(processed) / elapsed.Seconds()
	}
	fmt.Fprintf(p.out, "\r  %s: %d messages | %d failed | %.0f/s | %s    ",
		p.archive, processed, failed, rate, formatDuration(elapsed))
}

func (p *CLIProgress) OnComplete(s *importer.Summary, err error) {
	if p.live {
		fmt.Fprint(p.out, "\r")
	}
	switch {
	case err != nil && s == nil:
		fmt.Fprintf(p.out, "  %s: FAILED: %v\n", p.archive, err)
	case err != nil:
		fmt.Fprintf(p.out, "  %s: stopped after %d messages: %v\n", p.archive, s.Processed, err)
	default:
		fmt.Fprintf(p.out, "  %s: %d messages, %d stored, %d failed, %d labels written (%s)    \n",
			p.archive, s.Processed, s.Succeeded, s.Failed, s.LabelsWritten, formatDuration(s.Duration))
	}
}

// formatDuration renders d compactly, e.g. "850ms", "12s", "3m05s", "1h02m".
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
