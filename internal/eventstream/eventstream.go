/*
Copyright 2022. projectsveltos.io. All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package eventstream is the per-user append-only progress log a spawn
// or teardown publishes to and any number of SSE subscribers read from.
// Each subscriber holds its own Cursor into the shared Log rather than a
// per-subscriber queue, so a slow reader never applies backpressure to
// the writer and a late joiner always sees the whole history.
package eventstream

import (
	"context"
	"sync"
)

// Kind is the SSE event type, one of the five spec.md §3.5 names.
type Kind string

const (
	Info     Kind = "info"
	Warning  Kind = "warning"
	Error    Kind = "error"
	Failed   Kind = "failed"
	Complete Kind = "complete"
)

// terminal reports whether a Kind ends the stream: no further events
// follow it, and cursors waiting past it should stop blocking.
func (k Kind) terminal() bool {
	return k == Failed || k == Complete
}

// Event is one entry in a Log.
type Event struct {
	Kind     Kind
	Message  string
	Progress int
}

// Log is an ordered, append-only sequence of Events for one user's lab
// lifecycle. It is safe for concurrent use: Append is called by exactly
// one producer (the lab manager's spawn/delete goroutine for this user),
// while any number of Cursors read concurrently.
type Log struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events []Event
	closed bool
}

// NewLog returns an empty Log ready to accept events.
func NewLog() *Log {
	l := &Log{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Append adds event to the log and wakes any cursor blocked in Next.
// Append never blocks on a reader: it only takes the log's own mutex,
// held just long enough to grow the slice.
func (l *Log) Append(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.events = append(l.events, event)
	if event.Kind.terminal() {
		l.closed = true
	}
	l.cond.Broadcast()
}

// Close marks the log terminal without appending a final event, for the
// case where the lab's state is torn down (e.g. a cancelled spawn)
// without ever reaching a Failed/Complete event of its own. Cursors
// blocked in Next are woken and see end-of-stream.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.cond.Broadcast()
}

// NewCursor returns a fresh reader positioned at the start of the log,
// so a subscriber attaching at any point — before, during, or after the
// spawn — replays the full history before seeing (or having already
// missed) live events.
func (l *Log) NewCursor() *Cursor {
	return &Cursor{log: l}
}

// Cursor is one subscriber's read position into a Log.
type Cursor struct {
	log *Log
	pos int
}

// Next blocks until an event becomes available at the cursor's
// position, the log is closed with nothing left to read, or ctx is
// done. ok is false when the log is closed with nothing further to read,
// or when ctx is done before an event is available; it is true
// otherwise, even for a terminal event (the caller should stop calling
// Next after receiving one).
func (c *Cursor) Next(ctx context.Context) (event Event, ok bool) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.log.mu.Lock()
			c.log.cond.Broadcast()
			c.log.mu.Unlock()
		case <-done:
		}
	}()

	c.log.mu.Lock()
	defer c.log.mu.Unlock()
	for c.pos >= len(c.log.events) {
		if c.log.closed {
			return Event{}, false
		}
		if ctx.Err() != nil {
			return Event{}, false
		}
		c.log.cond.Wait()
	}
	event = c.log.events[c.pos]
	c.pos++
	return event, true
}

// Close releases the cursor. Cursors hold no resources beyond an index
// into the shared log, so Close is a no-op kept for symmetry with the
// subscriber lifecycle (a client disconnect calls it, freeing nothing
// but signaling intent clearly at the call site).
func (c *Cursor) Close() {}
