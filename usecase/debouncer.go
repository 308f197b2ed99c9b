package usecase

import (
	"strings"
	"sync"
	"time"
)

// DefaultTextDebounce is the quiet period after which buffered fragments
// are flushed as one utterance.
const DefaultTextDebounce = 100 * time.Millisecond

// Debouncer joins streamed text fragments into utterances. Every Add
// restarts the window; when it elapses without another fragment the buffer
// is handed to flush and cleared.
type Debouncer struct {
	window time.Duration
	flush  func(string)

	// deliverMu is held from taking the buffer until flush returns, so
	// utterances reach flush one at a time and in order.
	deliverMu sync.Mutex

	mu    sync.Mutex
	buf   strings.Builder
	timer *time.Timer
	// gen invalidates timers that fired after being replaced.
	gen uint64
}

func NewDebouncer(window time.Duration, flush func(string)) *Debouncer {
	if window <= 0 {
		window = DefaultTextDebounce
	}
	return &Debouncer{window: window, flush: flush}
}

// Add appends a fragment and restarts the window.
func (d *Debouncer) Add(fragment string) {
	if fragment == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.buf.WriteString(fragment)
	d.stopLocked()
	gen := d.gen
	d.timer = time.AfterFunc(d.window, func() { d.fire(gen) })
}

// Flush emits the buffer now, if it is not empty. It waits for a delivery
// already in progress.
func (d *Debouncer) Flush() {
	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()

	d.mu.Lock()
	d.stopLocked()
	text := d.takeLocked()
	d.mu.Unlock()

	if text != "" {
		d.flush(text)
	}
}

// Cancel drops the buffer and any pending timer.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.buf.Reset()
}

// Pending reports whether fragments are waiting to be flushed.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf.Len() > 0
}

func (d *Debouncer) fire(gen uint64) {
	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()

	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	text := d.takeLocked()
	d.mu.Unlock()

	if text != "" {
		d.flush(text)
	}
}

func (d *Debouncer) stopLocked() {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) takeLocked() string {
	text := d.buf.String()
	d.buf.Reset()
	return text
}
