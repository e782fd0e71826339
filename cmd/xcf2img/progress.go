package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

// progressBar renders an in-place terminal progress bar. It refreshes at a
// fixed interval and supports concurrent Increment calls from multiple
// worker goroutines.
type progressBar struct {
	w         io.Writer
	total     int64
	processed atomic.Int64
	label     string
	barWidth  int
	start     time.Time
	done      chan struct{}
	mu        sync.Mutex
}

// newProgressBar starts a bar on stderr, or returns nil when stderr is not a
// terminal. All methods accept a nil receiver.
func newProgressBar(label string, total int64) *progressBar {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	barWidth := 30
	if w, _, err := term.GetSize(int(os.Stderr.Fd())); err == nil && w < 80 {
		barWidth = max(10, w-50)
	}
	pb := &progressBar{
		w:        os.Stderr,
		total:    total,
		label:    label,
		barWidth: barWidth,
		start:    time.Now(),
		done:     make(chan struct{}),
	}
	go pb.run()
	return pb
}

// Increment marks one more item as processed. Safe for concurrent use.
func (pb *progressBar) Increment() {
	if pb == nil {
		return
	}
	pb.processed.Add(1)
}

// Finish stops the refresh loop and prints the final bar state with a newline.
func (pb *progressBar) Finish() {
	if pb == nil {
		return
	}
	close(pb.done)
	pb.draw()
	fmt.Fprint(pb.w, "\n")
}

func (pb *progressBar) run() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-pb.done:
			return
		case <-ticker.C:
			pb.draw()
		}
	}
}

func (pb *progressBar) draw() {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	processed := pb.processed.Load()
	var frac float64
	if pb.total > 0 {
		frac = min(1, float64(processed)/float64(pb.total))
	}
	filled := int(float64(pb.barWidth) * frac)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", pb.barWidth-filled)

	fmt.Fprintf(pb.w, "\r%s [%s] %3.0f%%  %d/%d files  %s\033[K",
		pb.label, bar, frac*100, processed, pb.total, formatDuration(time.Since(pb.start)))
}

// formatDuration formats a duration concisely (e.g. "1m23s", "45s", "0s").
func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) - m*60
	return fmt.Sprintf("%dm%02ds", m, s)
}
