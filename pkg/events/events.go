// Package events carries the novelty detector's promotion decisions out
// of the engine as a structured, append-only log — the "emits ... novelty
// events" surface spec.md §1 names but leaves unspecified beyond the
// boolean flag and counter in spec §4.7.
package events

import "github.com/google/uuid"

// Kind identifies what a promoted candidate micro-cluster turned out to
// be, per the three-way priority in spec §4.6.e.
type Kind string

const (
	// KindExtension marks a candidate folded into an existing active
	// class's label.
	KindExtension Kind = "extension"
	// KindRevival marks a candidate that took over a sleeping class's
	// label.
	KindRevival Kind = "revival"
	// KindNovel marks a candidate that was assigned a freshly allocated
	// class identifier — a true novelty pattern.
	KindNovel Kind = "novel"
)

// Event records a single novelty-detection promotion.
type Event struct {
	ID    string
	Kind  Kind
	Label int
	T     int
	N     int
}

// New builds an Event with a fresh, stable ID.
func New(kind Kind, label, t, n int) Event {
	return Event{ID: uuid.NewString(), Kind: kind, Label: label, T: t, N: n}
}

// Log is an append-only in-memory sequence of Events, optionally mirrored
// to a subscriber callback for drivers that want to react to individual
// promotions rather than poll the log.
type Log struct {
	events     []Event
	subscriber func(Event)
}

// Subscribe registers a callback invoked synchronously for every Event
// appended after this call. Passing nil clears any existing subscriber.
func (l *Log) Subscribe(fn func(Event)) {
	l.subscriber = fn
}

// Append records e and notifies the subscriber, if any.
func (l *Log) Append(e Event) {
	l.events = append(l.events, e)
	if l.subscriber != nil {
		l.subscriber(e)
	}
}

// All returns every event recorded so far, in arrival order.
func (l *Log) All() []Event {
	return l.events
}
