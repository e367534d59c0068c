// Package batch accumulates pending calls and flushes them together, on a
// window timer, on reaching the size cap, or on demand.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lumenfn/lumen-go/trace"
	"github.com/lumenfn/lumen-go/wire"
)

// ErrClosed is returned by Enqueue after the coordinator has been closed.
var ErrClosed = errors.New("batch: coordinator closed")

// Outcome is the settled result delivered to one queued caller.
type Outcome struct {
	Value any
	Err   error
}

// Item is one queued call waiting for a flush. The flush path owns resolving
// it exactly once.
type Item struct {
	Call  wire.Call
	Span  *trace.Span
	Start time.Time

	done chan Outcome
}

// NewItem wraps a call for queueing. Start anchors the caller's total-time
// measurement.
func NewItem(call wire.Call, span *trace.Span, start time.Time) *Item {
	return &Item{Call: call, Span: span, Start: start, done: make(chan Outcome, 1)}
}

// Resolve delivers the outcome to the waiting caller. Extra calls are no-ops.
func (it *Item) Resolve(value any, err error) {
	select {
	case it.done <- Outcome{Value: value, Err: err}:
	default:
	}
}

// Wait blocks until the item resolves or ctx is done.
func (it *Item) Wait(ctx context.Context) (any, error) {
	select {
	case out := <-it.done:
		return out.Value, out.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Outcome returns the resolution channel for callers that plumb the result
// somewhere other than their own return path.
func (it *Item) Outcome() <-chan Outcome {
	return it.done
}

// FlushFunc receives a drained queue. It must resolve every item.
type FlushFunc func(items []*Item)

// Coordinator owns the single pending queue of an engine instance. The queue
// is drained atomically under the mutex before any I/O starts, so items
// enqueued during a flush begin a fresh batch.
type Coordinator struct {
	window  time.Duration
	maxSize int
	flush   FlushFunc

	mu      sync.Mutex
	pending []*Item
	timer   *time.Timer
	closed  bool
}

// New creates a coordinator. The flush callback runs outside the lock.
func New(window time.Duration, maxSize int, flush FlushFunc) *Coordinator {
	return &Coordinator{window: window, maxSize: maxSize, flush: flush}
}

// Enqueue adds an item to the pending queue. The first item arms the window
// timer; hitting the size cap flushes immediately without waiting for it.
func (c *Coordinator) Enqueue(it *Item) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending = append(c.pending, it)

	if len(c.pending) >= c.maxSize {
		items := c.drainLocked()
		c.mu.Unlock()
		go c.flush(items)
		return nil
	}

	if c.timer == nil {
		c.timer = time.AfterFunc(c.window, c.Flush)
	}
	c.mu.Unlock()
	return nil
}

// Flush drains the queue and sends it now. A no-op when nothing is pending.
func (c *Coordinator) Flush() {
	c.mu.Lock()
	items := c.drainLocked()
	c.mu.Unlock()

	if len(items) == 0 {
		return
	}
	c.flush(items)
}

// Pending returns the current queue depth.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close stops the timer, refuses further enqueues, and hands back whatever
// was queued so the caller can reject it.
func (c *Coordinator) Close() []*Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.drainLocked()
}

func (c *Coordinator) drainLocked() []*Item {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	items := c.pending
	c.pending = nil
	return items
}
