// Package status carries discrete events from the acquisition loop to
// whatever front end is watching: log lines, a TUI, a plot. Delivery is
// best effort; the sampling loop is never allowed to block on a slow
// consumer, so when the buffer fills the oldest events are dropped first.
package status

import (
	"fmt"
	"sync"
	"time"

	"codeberg.org/voltaic/psuctl/internal/sample"
)

// Kind classifies an event for presentation.
type Kind string

const (
	Info    Kind = "info"
	Success Kind = "success"
	Warning Kind = "warning"
	Error   Kind = "error"
	Data    Kind = "dataPoint"
)

// Cause says why a session ended. Downstream behavior differs per cause: a
// threshold stop alerts, a user stop does not.
type Cause string

const (
	CauseUser      Cause = "user"
	CauseThreshold Cause = "threshold"
	CauseError     Cause = "error"
)

// Event is one item on the bus. Sample is meaningful only for Data events,
// Cause only for terminal ones.
type Event struct {
	Time    time.Time
	Kind    Kind
	Message string
	Sample  sample.Sample
	Cause   Cause
}

// Terminal reports whether this event ends the session.
func (e Event) Terminal() bool {
	return e.Cause != ""
}

// Bus is a bounded fan-in of events with drop-oldest overflow.
type Bus struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func NewBus(size int) *Bus {
	if size < 1 {
		size = 1
	}

	return &Bus{
		ch: make(chan Event, size),
	}
}

// Publish enqueues e without ever blocking. When the buffer is full the
// oldest pending event is discarded to make room. Publishing on a closed
// bus is a no-op.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for {
		select {
		case b.ch <- e:
			return
		default:
		}

		select {
		case <-b.ch:
		default:
		}
	}
}

// Events returns the receive side. It is closed by Close, so consumers can
// simply range over it.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Close ends the stream. Safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	close(b.ch)
}

func (b *Bus) Infof(format string, args ...any) {
	b.Publish(Event{Time: time.Now(), Kind: Info, Message: fmt.Sprintf(format, args...)})
}

func (b *Bus) Successf(format string, args ...any) {
	b.Publish(Event{Time: time.Now(), Kind: Success, Message: fmt.Sprintf(format, args...)})
}

func (b *Bus) Warnf(format string, args ...any) {
	b.Publish(Event{Time: time.Now(), Kind: Warning, Message: fmt.Sprintf(format, args...)})
}

func (b *Bus) Errorf(format string, args ...any) {
	b.Publish(Event{Time: time.Now(), Kind: Error, Message: fmt.Sprintf(format, args...)})
}

// DataPoint publishes one sample for live consumers.
func (b *Bus) DataPoint(s sample.Sample) {
	b.Publish(Event{Time: time.Now(), Kind: Data, Sample: s})
}

// End publishes the terminal event for a session.
func (b *Bus) End(cause Cause, kind Kind, format string, args ...any) {
	b.Publish(Event{
		Time:    time.Now(),
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	})
}
