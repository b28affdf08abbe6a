package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressReporter reports progress of a fixed number of requests.
type ProgressReporter interface {
	Start(total int64)
	Record(err error)
	Finish()
}

// SimpleProgress renders a single-line bar with success and failure counts.
type SimpleProgress struct {
	mu        sync.Mutex
	total     int64
	succeeded int64
	failed    int64
	lastErr   error
	started   time.Time
	writer    io.Writer
}

// NewProgressReporter creates a new progress reporter that writes to w.
// If w is nil, it defaults to os.Stderr.
func NewProgressReporter(w io.Writer) ProgressReporter {
	if w == nil {
		w = os.Stderr
	}
	return &SimpleProgress{
		writer: w,
	}
}

// Start resets the counters for total requests.
func (p *SimpleProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.succeeded = 0
	p.failed = 0
	p.lastErr = nil
	p.started = time.Now()

	p.render()
}

// Record counts one finished request. A nil error counts as success.
func (p *SimpleProgress) Record(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.failed++
		p.lastErr = err
	} else {
		p.succeeded++
	}
	p.render()
}

// Finish ends the line and prints the last error seen, if any.
func (p *SimpleProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.render()
	fmt.Fprintln(p.writer)
	if p.lastErr != nil {
		fmt.Fprintf(p.writer, "last error: %v\n", p.lastErr)
	}
}

// Counts returns the successes and failures recorded so far.
func (p *SimpleProgress) Counts() (succeeded, failed int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.succeeded, p.failed
}

func (p *SimpleProgress) render() {
	if p.total <= 0 {
		return
	}

	done := p.succeeded + p.failed
	if done > p.total {
		done = p.total
	}
	percent := float64(done) / float64(p.total) * 100
	barWidth := 40
	filled := int(float64(barWidth) * percent / 100)

	bar := strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled)

	rate := 0.0
	if elapsed := time.Since(p.started).Seconds(); elapsed > 0 {
		rate = float64(done) / elapsed
	}

	fmt.Fprintf(p.writer, "\r[%s] %5.1f%% %d/%d ok=%d failed=%d %.1f req/s",
		bar, percent, done, p.total, p.succeeded, p.failed, rate)
}
