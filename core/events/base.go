package events

import "time"

type Kind string

type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

// NewBaseAt creates a base with an explicit timestamp, for events whose
// producer reports its own clock.
func NewBaseAt(kind Kind, at time.Time) Base {
	if at.IsZero() {
		at = time.Now()
	}
	return Base{kind: kind, timestamp: at}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}
