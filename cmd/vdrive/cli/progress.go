// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/bureau-foundation/vdrive/lib/vfs"
)

const (
	progressWidth    = 30
	progressInterval = 100 * time.Millisecond
)

// ProgressBar draws a single updating line on a terminal for a long
// transfer. Off a terminal it draws nothing.
type ProgressBar struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	label   string
	total   int64
	bar     lipgloss.Style
	last    time.Time
	percent float64
	drawn   bool
}

// NewProgressBar returns a bar labelled label that writes to stderr when
// stderr is a terminal. total is the byte count being moved, or 0 when
// unknown.
func NewProgressBar(label string, total int64) *ProgressBar {
	return newProgressBar(os.Stderr, IsTerminal(os.Stderr), label, total)
}

func newProgressBar(w io.Writer, enabled bool, label string, total int64) *ProgressBar {
	return &ProgressBar{
		w:       w,
		enabled: enabled,
		label:   label,
		total:   total,
		bar:     lipgloss.NewRenderer(w).NewStyle().Foreground(lipgloss.Color("10")),
	}
}

// Report returns the callback handed to drive operations, or nil when
// the bar is disabled.
func (p *ProgressBar) Report() vfs.Progress {
	if !p.enabled {
		return nil
	}
	return p.update
}

func (p *ProgressBar) update(percent float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.percent = percent
	now := time.Now()
	if percent < 100 && now.Sub(p.last) < progressInterval {
		return
	}
	p.last = now
	p.draw()
}

func (p *ProgressBar) draw() {
	fmt.Fprintf(p.w, "\r%s", p.render())
	p.drawn = true
}

func (p *ProgressBar) render() string {
	percent := min(max(p.percent, 0), 100)
	filled := int(percent / 100 * progressWidth)
	bar := p.bar.Render(strings.Repeat("█", filled)) + strings.Repeat("░", progressWidth-filled)
	line := fmt.Sprintf("%s %s %5.1f%%", p.label, bar, percent)
	if p.total > 0 {
		done := uint64(float64(p.total) * percent / 100)
		line += fmt.Sprintf("  %s / %s", humanize.IBytes(done), humanize.IBytes(uint64(p.total)))
	}
	return line
}

// Done clears the bar's line.
func (p *ProgressBar) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drawn {
		fmt.Fprint(p.w, "\r\033[K")
		p.drawn = false
	}
}
