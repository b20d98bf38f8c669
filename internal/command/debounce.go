package command

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid edits to a context into a single committed
// update. Intermediate keystrokes never each produce an event; only the
// settled state (a pause in typing, or an explicit Flush on close/submit)
// is persisted.
type Debouncer struct {
	c     *Commander
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*pendingEdit
	closed  bool
}

type pendingEdit struct {
	title   string
	content string
	timer   *time.Timer
}

// NewDebouncer creates a debouncer committing through the given commander.
func NewDebouncer(c *Commander, delay time.Duration) *Debouncer {
	return &Debouncer{
		c:       c,
		delay:   delay,
		pending: make(map[string]*pendingEdit),
	}
}

// Edit records the latest in-progress state for a context and (re)arms its
// timer. The commit fires after the delay elapses without another Edit.
func (d *Debouncer) Edit(id, title, content string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	if p, ok := d.pending[id]; ok {
		p.title = title
		p.content = content
		p.timer.Reset(d.delay)
		return
	}

	p := &pendingEdit{title: title, content: content}
	p.timer = time.AfterFunc(d.delay, func() { d.fire(id) })
	d.pending[id] = p
}

// fire commits the settled state for one context.
func (d *Debouncer) fire(id string) {
	d.mu.Lock()
	p, ok := d.pending[id]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.pending, id)
	title, content := p.title, p.content
	d.mu.Unlock()

	if _, err := d.c.UpdateContext(context.Background(), id, title, content); err != nil {
		slog.Warn("debounced update failed",
			"component", "command",
			"action", "debounce_commit_failed",
			"context_id", id,
			"error", err,
		)
	}
}

// Flush commits every pending edit immediately. Called on explicit
// close/submit, where the settled state must not wait for the timer.
func (d *Debouncer) Flush(ctx context.Context) error {
	d.mu.Lock()
	edits := make(map[string]*pendingEdit, len(d.pending))
	for id, p := range d.pending {
		p.timer.Stop()
		edits[id] = p
	}
	d.pending = make(map[string]*pendingEdit)
	d.mu.Unlock()

	var lastErr error
	for id, p := range edits {
		if _, err := d.c.UpdateContext(ctx, id, p.title, p.content); err != nil {
			slog.Warn("flush update failed",
				"component", "command",
				"context_id", id,
				"error", err,
			)
			lastErr = err
		}
	}
	return lastErr
}

// Close flushes pending edits and rejects further ones.
func (d *Debouncer) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return d.Flush(context.Background())
}
