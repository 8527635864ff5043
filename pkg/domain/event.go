package domain

import "time"

// Event is a Message with no target (spec §3: "events carry no target").
type Event interface {
	Message
}

// VersionedEvent is an Event that belongs to an aggregate's ordered stream.
// Invariant (spec §3): for any (SourceID, SourceType) the set of persisted
// versions is exactly {1, ..., N}, no gaps, no duplicates.
type VersionedEvent interface {
	Event
	SourceID() string
	SourceType() string
	EventType() string
	Version() int64
	CorrelationID() string
}

// BaseVersionedEvent is embedded by concrete event payload types. The
// aggregate stamps these fields in Update (pkg/aggregate) before running
// the event through a rehydrator.
type BaseVersionedEvent struct {
	ID_            string
	Source         string
	SourceKind     string
	Kind           string
	Ver            int64
	Correlation    string
	CreatedAt_     time.Time
}

func (e *BaseVersionedEvent) MessageID() string     { return e.ID_ }
func (e *BaseVersionedEvent) OccurredAt() time.Time { return e.CreatedAt_ }
func (e *BaseVersionedEvent) SourceID() string      { return e.Source }
func (e *BaseVersionedEvent) SourceType() string    { return e.SourceKind }
func (e *BaseVersionedEvent) EventType() string     { return e.Kind }
func (e *BaseVersionedEvent) Version() int64        { return e.Ver }
func (e *BaseVersionedEvent) CorrelationID() string { return e.Correlation }

// NewBaseVersionedEvent returns an unstamped event base. Concrete event
// payload types embed *BaseVersionedEvent so the aggregate can stamp
// identity fields into it from Update (pkg/aggregate) without each payload
// type needing its own bookkeeping.
func NewBaseVersionedEvent() *BaseVersionedEvent {
	return &BaseVersionedEvent{}
}

// Stamp sets the identity fields. Called exactly once, by the aggregate
// base while emitting a new event (Update); events applied from history
// (LoadFrom) arrive already stamped and are not stamped again.
func (e *BaseVersionedEvent) Stamp(id, source, sourceType, eventType string, version int64, correlationID string, createdAt time.Time) {
	e.ID_ = id
	e.Source = source
	e.SourceKind = sourceType
	e.Kind = eventType
	e.Ver = version
	e.Correlation = correlationID
	e.CreatedAt_ = createdAt
}

// Stampable is a VersionedEvent whose identity fields can still be set.
// Concrete event payload types get this for free by embedding
// *BaseVersionedEvent. The aggregate base (pkg/aggregate) is the only
// caller that should ever invoke Stamp.
type Stampable interface {
	VersionedEvent
	Stamp(id, source, sourceType, eventType string, version int64, correlationID string, createdAt time.Time)
}

// PersistedEvent is the on-disk shape of a VersionedEvent (spec §6 Events
// table): identity columns plus the opaque serialized Payload.
type PersistedEvent struct {
	AggregateID   string
	AggregateType string
	Version       int64
	Payload       []byte
	EventType     string
	CorrelationID string
	CreatedAt     time.Time
}
