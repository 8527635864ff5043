package aggregate

import (
	"fmt"

	"github.com/kouweizhong/eventcore/pkg/domain"
)

// Bookkeeping event types a ComplexEventSourced aggregate emits on its own
// stream to make foreign-event consumption replayable (spec §4.2).
const (
	EventTypeForeignProcessed = "ForeignEventProcessed"
	EventTypeForeignParked    = "ForeignEventParked"
)

// defaultMaxParked bounds the parked list when the caller doesn't specify
// one (spec §3: "a bounded list of parked foreign events").
const defaultMaxParked = 1000

// ForeignKey identifies one foreign stream-and-event-type this aggregate
// tracks consumption progress for.
type ForeignKey struct {
	SourceType string
	SourceID   string
	EventType  string
}

// ForeignEvent is a foreign aggregate's versioned event as seen by a
// ComplexEventSourced consumer: enough metadata to order and dedupe it,
// plus its opaque serialized body. Arriving already-serialized (rather
// than as a live domain.VersionedEvent) keeps parking trivially
// replayable: a parked ForeignEvent round-trips through the event store
// like any other payload, with no interface-typed field to reconstruct.
type ForeignEvent struct {
	SourceType    string
	SourceID      string
	EventType     string
	Version       int64
	CorrelationID string
	Payload       []byte
}

func (fe ForeignEvent) key() ForeignKey {
	return ForeignKey{SourceType: fe.SourceType, SourceID: fe.SourceID, EventType: fe.EventType}
}

// foreignProcessedPayload is the persisted form of "this (key, version) has
// been applied to domain state". Rehydrating it advances lastProcessed and
// drops any parked copy of the same (key, version).
type foreignProcessedPayload struct {
	*domain.BaseVersionedEvent
	Key              ForeignKey
	ProcessedVersion int64
}

// foreignParkedPayload is the persisted form of "this foreign event arrived
// early". Rehydrating it appends the event back to the parked list.
type foreignParkedPayload struct {
	*domain.BaseVersionedEvent
	Parked ForeignEvent
}

// ComplexEventSourced extends EventSourced with ordered, idempotent
// consumption of events from foreign aggregate streams (spec §4.2).
type ComplexEventSourced struct {
	*EventSourced
	lastProcessed map[ForeignKey]int64
	parked        []ForeignEvent
	maxParked     int
	handlers      map[string]func(ForeignEvent) error
}

// NewComplexEventSourced constructs a fresh complex aggregate. maxParked <=
// 0 uses defaultMaxParked.
func NewComplexEventSourced(id, aggregateType string, maxParked int) *ComplexEventSourced {
	if maxParked <= 0 {
		maxParked = defaultMaxParked
	}
	c := &ComplexEventSourced{
		EventSourced:  NewEventSourced(id, aggregateType),
		lastProcessed: make(map[ForeignKey]int64),
		maxParked:     maxParked,
		handlers:      make(map[string]func(ForeignEvent) error),
	}
	c.Register(EventTypeForeignProcessed, c.applyForeignProcessed)
	c.Register(EventTypeForeignParked, c.applyForeignParked)
	return c
}

// RegisterForeign associates a foreign event type with the function that
// applies its effect to this aggregate's domain state. The function is
// responsible for deserializing Payload into the concrete foreign event
// type it expects.
func (c *ComplexEventSourced) RegisterForeign(eventType string, fn func(ForeignEvent) error) {
	c.handlers[eventType] = fn
}

// LastProcessedVersion reports the last version processed for a foreign
// stream, or 0 if none has been processed yet.
func (c *ComplexEventSourced) LastProcessedVersion(sourceType, sourceID, eventType string) int64 {
	return c.lastProcessed[ForeignKey{SourceType: sourceType, SourceID: sourceID, EventType: eventType}]
}

// ParkedCount reports how many foreign events are currently parked.
func (c *ComplexEventSourced) ParkedCount() int { return len(c.parked) }

// TryProcessForeign applies spec §4.2's algorithm to one foreign event.
// Returns true if it (or, transitively, a previously parked event it
// unblocked) was applied to domain state during this call.
func (c *ComplexEventSourced) TryProcessForeign(fe ForeignEvent, correlationID string) (bool, error) {
	k := fe.key()
	lastV := c.lastProcessed[k]

	if fe.Version <= lastV {
		return false, nil // duplicate, no side effects
	}

	if fe.Version == lastV+1 {
		if err := c.applyToHandler(fe); err != nil {
			return false, err
		}
		c.emitForeignProcessed(k, fe.Version, correlationID)
		if err := c.drainParked(correlationID); err != nil {
			return false, err
		}
		return true, nil
	}

	// Early: park it, unless an identical (key, version) is already parked.
	if c.isParked(k, fe.Version) {
		return false, nil
	}
	c.emitForeignParked(fe, correlationID)
	return false, nil
}

// drainParked repeatedly applies any parked event whose turn has come,
// until none do.
func (c *ComplexEventSourced) drainParked(correlationID string) error {
	for {
		progressed := false
		for _, pe := range c.parked {
			lastV := c.lastProcessed[pe.key()]
			if pe.Version == lastV+1 {
				if err := c.applyToHandler(pe); err != nil {
					return err
				}
				c.emitForeignProcessed(pe.key(), pe.Version, correlationID)
				progressed = true
				break // c.parked mutated by the rehydrator above; restart the scan
			}
		}
		if !progressed {
			return nil
		}
	}
}

func (c *ComplexEventSourced) applyToHandler(fe ForeignEvent) error {
	fn, ok := c.handlers[fe.EventType]
	if !ok {
		return fmt.Errorf("eventcore: no foreign handler registered for event type %q", fe.EventType)
	}
	return fn(fe)
}

func (c *ComplexEventSourced) isParked(k ForeignKey, v int64) bool {
	for _, pe := range c.parked {
		if pe.key() == k && pe.Version == v {
			return true
		}
	}
	return false
}

func (c *ComplexEventSourced) emitForeignProcessed(k ForeignKey, v int64, correlationID string) {
	payload := &foreignProcessedPayload{
		BaseVersionedEvent: domain.NewBaseVersionedEvent(),
		Key:                k,
		ProcessedVersion:   v,
	}
	c.Update(payload, EventTypeForeignProcessed, correlationID)
}

func (c *ComplexEventSourced) emitForeignParked(fe ForeignEvent, correlationID string) {
	if len(c.parked) >= c.maxParked {
		// Bounded per spec §3; drop the oldest to make room rather than
		// grow without limit.
		c.parked = c.parked[1:]
	}
	payload := &foreignParkedPayload{
		BaseVersionedEvent: domain.NewBaseVersionedEvent(),
		Parked:             fe,
	}
	c.Update(payload, EventTypeForeignParked, correlationID)
}

func (c *ComplexEventSourced) applyForeignProcessed(evt domain.VersionedEvent) {
	p := evt.(*foreignProcessedPayload)
	c.lastProcessed[p.Key] = p.ProcessedVersion
	c.removeParked(p.Key, p.ProcessedVersion)
}

func (c *ComplexEventSourced) applyForeignParked(evt domain.VersionedEvent) {
	p := evt.(*foreignParkedPayload)
	c.parked = append(c.parked, p.Parked)
}

func (c *ComplexEventSourced) removeParked(k ForeignKey, v int64) {
	out := c.parked[:0]
	for _, pe := range c.parked {
		if pe.key() != k || pe.Version != v {
			out = append(out, pe)
		}
	}
	c.parked = out
}
