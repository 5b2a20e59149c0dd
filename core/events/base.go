package events

import "time"

// Kind is the namespaced identity of an event, e.g. "turn_state.started".
type Kind string

// Event is implemented by every session event. Concrete events embed Base
// and add their payload fields.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Base carries the kind and creation time shared by all events. The
// timestamp is taken once, when the event is constructed.
type Base struct {
	kind      Kind
	timestamp time.Time
}

// NewBase stamps a base for a concrete event constructor.
func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}
