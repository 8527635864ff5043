// Package aggregate provides the event-sourcing base every domain
// aggregate embeds: apply-from-history rehydration, pending-event
// accumulation, and the saga/complex-event-sourced extensions spec §4.1
// and §4.2 describe.
//
// Grounded on the teacher's pkg/domain/aggregate.go (AggregateRoot,
// ApplyChange, LoadFromHistory), generalized per spec §9's design note:
// rehydrators are discovered through explicit registration in the
// aggregate's constructor rather than reflection over interface
// implementations.
package aggregate

import (
	"time"

	"github.com/kouweizhong/eventcore/pkg/domain"
)

// Rehydrator applies one event's effect to the aggregate's in-memory
// state. Registered once per event type at construction time.
type Rehydrator func(event domain.VersionedEvent)

// EventSourced is the base type every aggregate embeds. It is not safe for
// concurrent use — spec §5 models one aggregate instance per processing
// round, never shared across goroutines.
type EventSourced struct {
	id            string
	aggregateType string
	version       int64
	pending       []domain.VersionedEvent
	rehydrators   map[string]Rehydrator
}

// NewEventSourced constructs a fresh aggregate instance. Concrete
// aggregates call this from their own constructor and then Register a
// rehydrator for every event type they can apply. Panics if id is empty
// or malformed, per domain.ValidateAggregateID — an aggregate with no
// stable identity cannot be found again, so this is a construction-site
// bug, not a runtime condition to recover from.
func NewEventSourced(id, aggregateType string) *EventSourced {
	if err := domain.ValidateAggregateID(id); err != nil {
		panic(err)
	}
	return &EventSourced{
		id:            id,
		aggregateType: aggregateType,
		rehydrators:   make(map[string]Rehydrator),
	}
}

// ID returns the aggregate's identifier.
func (a *EventSourced) ID() string { return a.id }

// Type returns the aggregate's type name.
func (a *EventSourced) Type() string { return a.aggregateType }

// Version returns the version of the last event applied (from history or
// newly emitted).
func (a *EventSourced) Version() int64 { return a.version }

// SetVersion is called by a MementoOriginator's FromMemento to fast-forward
// past the events the memento already summarizes, without replaying them.
// Callers must not use this to go backwards or skip ahead of an actual
// persisted event.
func (a *EventSourced) SetVersion(v int64) { a.version = v }

// Register associates an event type with the function that applies it.
// Call from the concrete aggregate's constructor. Re-registering the same
// event type overwrites the previous rehydrator.
func (a *EventSourced) Register(eventType string, fn Rehydrator) {
	a.rehydrators[eventType] = fn
}

// PendingEvents returns the events emitted but not yet persisted, in
// insertion order, without clearing them.
func (a *EventSourced) PendingEvents() []domain.VersionedEvent {
	out := make([]domain.VersionedEvent, len(a.pending))
	copy(out, a.pending)
	return out
}

// DrainPending returns the pending events and clears the list. Only the
// event store should call this (spec §4.1).
func (a *EventSourced) DrainPending() []domain.VersionedEvent {
	out := a.pending
	a.pending = nil
	return out
}

// LoadFrom applies historical events in ascending version order, without
// appending to pending. Fails with domain.ErrRehydrationMismatch if any
// event's version isn't exactly the previous applied version + 1.
func (a *EventSourced) LoadFrom(history []domain.VersionedEvent) error {
	for _, evt := range history {
		if evt.Version() != a.version+1 {
			return &domain.VersionGapError{Expected: a.version + 1, Got: evt.Version()}
		}
		a.applyRehydrator(evt)
		a.version = evt.Version()
	}
	return nil
}

// Update stamps a new event with this aggregate's identity and the next
// version, runs it through its rehydrator, appends it to pending, and
// advances the version. correlationID is threaded through from the
// triggering command (spec §4.1, §4.3 step 2).
func (a *EventSourced) Update(payload domain.Stampable, eventType, correlationID string) domain.VersionedEvent {
	payload.Stamp(domain.NewID(), a.id, a.aggregateType, eventType, a.version+1, correlationID, time.Now())
	a.applyRehydrator(payload)
	a.pending = append(a.pending, payload)
	a.version++
	return payload
}

// applyRehydrator looks up and runs the rehydrator for an event's type.
// A missing rehydrator is a programming error (spec §4.1) and panics
// rather than silently corrupting aggregate state.
func (a *EventSourced) applyRehydrator(evt domain.VersionedEvent) {
	fn, ok := a.rehydrators[evt.EventType()]
	if !ok {
		panic(&domain.MissingRehydratorError{AggregateType: a.aggregateType, EventType: evt.EventType()})
	}
	fn(evt)
}

// CommandEmitter is the capability a Saga exposes: in addition to emitting
// events, it accumulates commands to co-publish on save (spec §3 "Saga",
// §9 design note: prefer a capability check over inheritance).
type CommandEmitter interface {
	PendingCommands() []domain.Command
	DrainCommands() []domain.Command
}

// Saga extends EventSourced with a pending-command list.
type Saga struct {
	*EventSourced
	commands []domain.Command
}

// NewSaga constructs a fresh saga aggregate.
func NewSaga(id, aggregateType string) *Saga {
	return &Saga{EventSourced: NewEventSourced(id, aggregateType)}
}

// EnqueueCommand adds a command to be co-published when the saga is saved.
func (s *Saga) EnqueueCommand(cmd domain.Command) {
	s.commands = append(s.commands, cmd)
}

// PendingCommands returns the queued commands without clearing them.
func (s *Saga) PendingCommands() []domain.Command {
	out := make([]domain.Command, len(s.commands))
	copy(out, s.commands)
	return out
}

// DrainCommands returns the queued commands and clears the list. Only the
// event store should call this.
func (s *Saga) DrainCommands() []domain.Command {
	out := s.commands
	s.commands = nil
	return out
}
