package aggregate

import "time"

// Memento is an opaque snapshot of an aggregate's state at a given
// version (spec §3). Only the owning aggregate type knows how to decode
// Data — the snapshot cache (pkg/snapshot) stores it as bytes, per spec §9
// design note "Memento as an opaque object".
type Memento struct {
	AggregateID   string
	AggregateType string
	Version       int64
	Data          []byte
	CreatedAt     time.Time
}

// MementoOriginator is implemented by aggregates that can serialize and
// restore their state from a Memento, bypassing full event replay.
type MementoOriginator interface {
	ToMemento() (*Memento, error)

	// FromMemento restores state from a memento. The caller is
	// responsible for then applying any events with Version > the
	// memento's Version via LoadFrom.
	FromMemento(m *Memento) error
}
