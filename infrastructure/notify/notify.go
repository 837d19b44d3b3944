// Package notify delivers committed state changes to observers. Delivery is
// fire-and-forget: sinks swallow and log their own failures.
package notify

import (
	"context"
	"sync"
	"time"
)

// Event describes one committed transition.
type Event struct {
	Action     string    `json:"action"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	OldValue   any       `json:"oldValue,omitempty"`
	NewValue   any       `json:"newValue,omitempty"`
	ActorID    string    `json:"actorId"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Sink receives events after their transaction has committed.
type Sink interface {
	Notify(ctx context.Context, ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event)

func (f SinkFunc) Notify(ctx context.Context, ev Event) { f(ctx, ev) }

// Nop discards every event.
var Nop Sink = SinkFunc(func(context.Context, Event) {})

type fanout []Sink

// Fanout delivers each event to every non-nil sink in order.
func Fanout(sinks ...Sink) Sink {
	out := make(fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f fanout) Notify(ctx context.Context, ev Event) {
	for _, s := range f {
		s.Notify(ctx, ev)
	}
}

// Outbox collects events while a write transaction runs. Flush is called only after
// the transaction commits; a rolled back transaction simply drops the outbox.
type Outbox struct {
	events []Event
}

func (o *Outbox) Add(ev Event) {
	o.events = append(o.events, ev)
}

func (o *Outbox) Len() int { return len(o.events) }

// Reset empties the outbox, for transaction bodies that may run more than once.
func (o *Outbox) Reset() { o.events = o.events[:0] }

// Flush hands every collected event to sink and empties the outbox. The request
// context's cancellation is detached so a client disconnect after commit does not
// suppress notifications.
func (o *Outbox) Flush(ctx context.Context, sink Sink) {
	if sink == nil {
		sink = Nop
	}
	ctx = context.WithoutCancel(ctx)
	for _, ev := range o.events {
		sink.Notify(ctx, ev)
	}
	o.events = nil
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Actions returns the recorded action names in order.
func (r *Recorder) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Action)
	}
	return out
}
