// Package eventstore implements the transactional event store spec §4.3
// describes: Find/Get/Save over a per-aggregate-type event stream, with
// optimistic concurrency, snapshot-cache consultation, and an outbox-style
// co-commit of outbound events (and, for sagas, commands) in the same
// transaction as the event rows.
//
// Grounded on the teacher's pkg/store/repository.go (Repository[T] shape:
// generic over the aggregate type, factory + Load/Save) and
// pkg/sqlite/eventstore.go (transaction-scoped optimistic concurrency
// check, functional-option construction), adapted from the teacher's
// aggregate-interface/unique-constraint model to this module's
// rehydrate-from-history model and the spec's snapshot/outbox semantics.
package eventstore

import (
	"github.com/kouweizhong/eventcore/pkg/aggregate"
	"github.com/kouweizhong/eventcore/pkg/bus"
	"github.com/kouweizhong/eventcore/pkg/domain"
	"github.com/kouweizhong/eventcore/pkg/snapshot"
)

// Aggregate is the surface the event store needs from an aggregate type:
// the identity/version accessors and history-replay method every
// aggregate.EventSourced embedder exposes.
type Aggregate interface {
	ID() string
	Type() string
	Version() int64
	DrainPending() []domain.VersionedEvent
	LoadFrom(history []domain.VersionedEvent) error
}

// Backend is the storage-engine capability Store needs: read the
// persisted tail of one aggregate's stream, and atomically append a new
// batch of events for it. Save's publish callback runs inside the same
// unit of work the event insert does, so a publish failure rolls back the
// insert too (spec §4.3 steps 4-7).
type Backend interface {
	LoadEvents(aggregateType, id string, afterVersion int64) ([]domain.VersionedEvent, error)
	Save(aggregateType, id string, expectedVersion int64, events []domain.VersionedEvent, correlationID string, publish func(tx bus.Transaction) error) error
}

// Store is the per-aggregate-type event store (spec §4.3's public
// operations).
type Store[T Aggregate] struct {
	aggregateType string
	factory       func(id string) T
	backend       Backend
	eventBus      bus.TransactionalEventBus
	commandBus    bus.TransactionalCommandBus
	cache         *snapshot.Cache
}

// New constructs a Store for one aggregate type. eventBus must implement
// bus.TransactionalEventBus; commandBus (optional — pass nil if this
// aggregate type never sagas) must implement bus.TransactionalCommandBus
// if given. Either requirement failing is an IncompatibleBus construction
// error (spec §4.3, §7): the check is a capability assertion, not a type
// switch, so any bus implementation that adds the two enrollment methods
// qualifies.
func New[T Aggregate](
	aggregateType string,
	factory func(id string) T,
	backend Backend,
	eventBus bus.EventBus,
	commandBus bus.CommandBus,
	cache *snapshot.Cache,
) (*Store[T], error) {
	teb, ok := eventBus.(bus.TransactionalEventBus)
	if !ok {
		return nil, domain.ErrIncompatibleBus
	}

	var tcb bus.TransactionalCommandBus
	if commandBus != nil {
		tcb, ok = commandBus.(bus.TransactionalCommandBus)
		if !ok {
			return nil, domain.ErrIncompatibleBus
		}
	}

	return &Store[T]{
		aggregateType: aggregateType,
		factory:       factory,
		backend:       backend,
		eventBus:      teb,
		commandBus:    tcb,
		cache:         cache,
	}, nil
}

// Find loads an aggregate, returning the zero value (not an error) if it
// has no persisted events.
func (s *Store[T]) Find(id string) (T, error) {
	var zero T
	agg, found, err := s.load(id)
	if err != nil {
		return zero, err
	}
	if !found {
		return zero, nil
	}
	return agg, nil
}

// Get is Find but fails with domain.ErrNotFound instead of returning a
// zero value.
func (s *Store[T]) Get(id string) (T, error) {
	var zero T
	agg, found, err := s.load(id)
	if err != nil {
		return zero, err
	}
	if !found {
		return zero, domain.ErrNotFound
	}
	return agg, nil
}

func (s *Store[T]) load(id string) (T, bool, error) {
	var zero T
	agg := s.factory(id)

	if s.cache != nil {
		if originator, ok := any(agg).(aggregate.MementoOriginator); ok {
			if m, fresh := s.cache.Get(s.aggregateType, id); m != nil {
				if err := originator.FromMemento(m); err != nil {
					return zero, false, err
				}
				if fresh {
					return agg, true, nil
				}
				tail, err := s.backend.LoadEvents(s.aggregateType, id, m.Version)
				if err != nil {
					return zero, false, err
				}
				if err := agg.LoadFrom(tail); err != nil {
					return zero, false, err
				}
				return agg, true, nil
			}
		}
	}

	history, err := s.backend.LoadEvents(s.aggregateType, id, 0)
	if err != nil {
		return zero, false, err
	}
	if len(history) == 0 {
		return zero, false, nil
	}
	if err := agg.LoadFrom(history); err != nil {
		return zero, false, err
	}
	return agg, true, nil
}

// Save drains agg's pending events and persists them per spec §4.3's
// eight-step algorithm. triggeringMessage supplies the correlation id:
// its own MessageID for a command, or its CorrelationID for an event.
// Returns nil (with no I/O) if there was nothing pending.
func (s *Store[T]) Save(agg T, triggeringMessage domain.Message) error {
	pending := agg.DrainPending()
	if len(pending) == 0 {
		return nil
	}
	correlationID := correlationIDOf(triggeringMessage)
	expectedVersion := pending[0].Version() - 1

	var commandEnvelopes []bus.CommandEnvelope
	if emitter, ok := any(agg).(aggregate.CommandEmitter); ok {
		for _, cmd := range emitter.DrainCommands() {
			commandEnvelopes = append(commandEnvelopes, bus.CommandEnvelope{
				MessageID:     cmd.MessageID(),
				CorrelationID: correlationID,
				Command:       cmd,
			})
		}
	}

	err := s.backend.Save(s.aggregateType, agg.ID(), expectedVersion, pending, correlationID, func(tx bus.Transaction) error {
		for _, evt := range pending {
			envelope := bus.EventEnvelope{MessageID: evt.MessageID(), CorrelationID: correlationID, Event: evt}
			if err := s.eventBus.PublishWithTransaction(tx, envelope); err != nil {
				return err
			}
		}
		for _, ce := range commandEnvelopes {
			if s.commandBus == nil {
				return domain.ErrIncompatibleBus
			}
			if err := s.commandBus.SendWithTransaction(tx, ce); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		if s.cache != nil {
			s.cache.MarkStale(s.aggregateType, agg.ID())
		}
		return err
	}

	if s.cache != nil {
		if originator, ok := any(agg).(aggregate.MementoOriginator); ok {
			if m, mErr := originator.ToMemento(); mErr == nil {
				s.cache.Set(s.aggregateType, agg.ID(), m)
			}
		}
	}
	return nil
}

func correlationIDOf(triggeringMessage domain.Message) string {
	if evt, ok := triggeringMessage.(domain.VersionedEvent); ok {
		return evt.CorrelationID()
	}
	return triggeringMessage.MessageID()
}
