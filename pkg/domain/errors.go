package domain

import (
	"errors"
	"fmt"
)

// Sentinel error kinds, one per row of spec §7's error table. Each is
// distinguishable with errors.Is, as the spec requires ("not type names —
// each must be distinguishable by callers").
var (
	// ErrNotFound is raised by EventStore.Get when the aggregate has no events.
	ErrNotFound = errors.New("eventcore: aggregate not found")

	// ErrConcurrencyConflict is raised by EventStore.Save on a version clash.
	ErrConcurrencyConflict = errors.New("eventcore: concurrency conflict")

	// ErrDuplicateHandler is raised at command-processor registration time.
	ErrDuplicateHandler = errors.New("eventcore: duplicate handler registration")

	// ErrNoHandler is raised when a command has no registered handler.
	ErrNoHandler = errors.New("eventcore: no handler registered for command")

	// ErrSerialization is raised by the serializer contract on any codec failure.
	ErrSerialization = errors.New("eventcore: serialization error")

	// ErrRehydrationMismatch is raised by Aggregate.LoadFrom on a version gap.
	ErrRehydrationMismatch = errors.New("eventcore: rehydration version mismatch")

	// ErrTransientIO marks a database error the retry policies should retry.
	ErrTransientIO = errors.New("eventcore: transient I/O error")

	// ErrIncompatibleBus is raised at event-store construction when a bus
	// cannot enroll writes in the caller's transaction.
	ErrIncompatibleBus = errors.New("eventcore: bus cannot enroll in transaction")
)

// MissingRehydratorError is a fatal programming error: an aggregate applied
// an event type with no registered rehydrator (spec §4.1).
type MissingRehydratorError struct {
	AggregateType string
	EventType     string
}

func (e *MissingRehydratorError) Error() string {
	return fmt.Sprintf("eventcore: no rehydrator registered for event type %q on aggregate %q", e.EventType, e.AggregateType)
}

// VersionGapError details a rehydration mismatch.
type VersionGapError struct {
	Expected int64
	Got      int64
}

func (e *VersionGapError) Error() string {
	return fmt.Sprintf("eventcore: expected version %d, got %d", e.Expected, e.Got)
}

func (e *VersionGapError) Is(target error) bool {
	return target == ErrRehydrationMismatch
}
