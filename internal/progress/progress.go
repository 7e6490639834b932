// Package progress renders the save/ls progress meter and verbose status
// lines. TTY detection decides whether a live, carriage-return updated
// meter makes sense at all.
package progress

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// IsTTY reports whether f looks like an interactive terminal, the gate
// for printing a live meter at all.
func IsTTY(f interface{ Fd() uintptr }) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Meter renders a "Saving: NN.NN% (x/yk, a/b files) remain kps" line,
// color-highlighted when writing to a real terminal.
type Meter struct {
	Out       io.Writer
	Colorize  bool
	Total     int64
	FileTotal int

	start      time.Time
	lastRemain float64
	haveRemain bool
}

// NewMeter starts a meter for a save expected to move total bytes across
// fileTotal files.
func NewMeter(out io.Writer, colorize bool, total int64, fileTotal int) *Meter {
	return &Meter{Out: out, Colorize: colorize, Total: total, FileTotal: fileTotal, start: time.Now()}
}

// Report renders one progress line for count bytes done across fcount
// files, with \r so the next report overwrites it.
func (m *Meter) Report(count int64, fcount int) {
	elapsed := time.Since(m.start).Seconds()
	pct := 0.0
	if m.Total > 0 {
		pct = float64(count) * 100.0 / float64(m.Total)
	}

	var remainStr, kpsStr string
	if elapsed >= 30 {
		kps := 0.0
		if elapsed > 0 {
			kps = float64(count) / 1024.0 / elapsed
		}
		kpsStr = fmt.Sprintf("%.0fk/s", roundToSigFig(kps))

		remain := 0.0
		if count > 0 {
			remain = elapsed / float64(count) * float64(m.Total-count)
		}
		if m.haveRemain && remain > m.lastRemain && (remain-m.lastRemain)/m.lastRemain < 0.05 {
			remain = m.lastRemain
		} else {
			m.lastRemain = remain
			m.haveRemain = true
		}
		remainStr = formatDuration(remain)
	}

	line := fmt.Sprintf("Saving: %.2f%% (%s/%s, %d/%d files) %s %s\r",
		pct, humanize.Comma(count/1024), humanize.Comma(m.Total/1024), fcount, m.FileTotal, remainStr, kpsStr)
	if m.Colorize {
		line = color.CyanString(line)
	}
	fmt.Fprint(m.Out, line)
}

// Done renders the final "done." line.
func (m *Meter) Done(count int64, fcount int) {
	pct := 100.0
	if m.Total > 0 {
		pct = float64(count) * 100.0 / float64(m.Total)
	}
	fmt.Fprintf(m.Out, "Saving: %.2f%% (%s/%s, %d/%d files), done.    \n",
		pct, humanize.Comma(count/1024), humanize.Comma(m.Total/1024), fcount, m.FileTotal)
}

func roundToSigFig(v float64) float64 {
	if v <= 0 {
		return 0
	}
	fracDigits := int(math.Log10(v))
	mult := math.Pow(10, float64(fracDigits))
	return math.Floor(v/mult) * mult
}

func formatDuration(seconds float64) string {
	total := int(seconds)
	hours, rem := total/3600, total%3600
	mins, secs := rem/60, rem%60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh%dm", hours, mins)
	case mins > 0:
		return fmt.Sprintf("%dm%d", mins, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
