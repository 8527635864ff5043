// Package bus defines the event and command bus capabilities the event
// store publishes through, and an in-memory implementation used by tests,
// single-process wiring, and the rebuilder (spec §4.5).
//
// Grounded on the teacher's pkg/messaging/eventbus.go (EventBus interface
// shape) and pkg/nats/eventbus.go (the vendor-backed alternative), adapted
// to spec §4.3's "capability, not a type" requirement: the event store
// checks for a transaction-enrollment method via interface assertion
// rather than requiring a dedicated bus type.
package bus

import (
	"sync"

	"github.com/kouweizhong/eventcore/pkg/domain"
)

// Transaction is an opaque handle to the event store's in-flight unit of
// work. Its concrete type is backend-specific (e.g. *sql.Tx for the SQLite
// event store); buses that don't need real enrollment may ignore it.
type Transaction = any

// EventEnvelope carries one outbound event plus the routing metadata spec
// §4.1/§4.3 thread through: message id, the correlation id inherited from
// the triggering command or event, and a trace id for observability.
type EventEnvelope struct {
	MessageID     string
	CorrelationID string
	TraceID       string
	Event         domain.VersionedEvent
}

// CommandEnvelope carries one outbound command, as produced by a saga's
// pending-command list on save.
type CommandEnvelope struct {
	MessageID     string
	CorrelationID string
	TraceID       string
	Command       domain.Command
}

// EventBus publishes events for the event dispatcher to pick up.
type EventBus interface {
	Publish(envelope EventEnvelope) error
}

// CommandBus sends commands for the command processor to pick up.
type CommandBus interface {
	Send(envelope CommandEnvelope) error
}

// TransactionalEventBus is the capability the event store requires of an
// event bus before it will use it (spec §4.3): the publish must be
// enrollable in the caller's transaction, so a rollback also discards the
// outbound event.
type TransactionalEventBus interface {
	EventBus
	PublishWithTransaction(tx Transaction, envelope EventEnvelope) error
}

// TransactionalCommandBus is the same capability for the command side,
// used when saving a saga's pending commands.
type TransactionalCommandBus interface {
	CommandBus
	SendWithTransaction(tx Transaction, envelope CommandEnvelope) error
}

// InMemoryBus is the single-threaded collector spec §4.5 describes: two
// FIFO queues, no persistence, used by the rebuilder and by handlers that
// want to queue further work within the current processing round. It
// trivially satisfies both transactional interfaces — there is no real
// transaction to enroll in, only an in-process queue that either the
// caller later drains or never does.
type InMemoryBus struct {
	mu              sync.Mutex
	pendingCommands []CommandEnvelope
	pendingEvents   []EventEnvelope
}

// NewInMemoryBus constructs an empty bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{}
}

// Send enqueues a command.
func (b *InMemoryBus) Send(envelope CommandEnvelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pendingCommands = append(b.pendingCommands, envelope)
	return nil
}

// SendWithTransaction ignores tx and behaves like Send.
func (b *InMemoryBus) SendWithTransaction(_ Transaction, envelope CommandEnvelope) error {
	return b.Send(envelope)
}

// Publish enqueues an event.
func (b *InMemoryBus) Publish(envelope EventEnvelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pendingEvents = append(b.pendingEvents, envelope)
	return nil
}

// PublishWithTransaction ignores tx and behaves like Publish.
func (b *InMemoryBus) PublishWithTransaction(_ Transaction, envelope EventEnvelope) error {
	return b.Publish(envelope)
}

// HasNewCommands reports whether any commands are queued.
func (b *InMemoryBus) HasNewCommands() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pendingCommands) > 0
}

// HasNewEvents reports whether any events are queued.
func (b *InMemoryBus) HasNewEvents() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pendingEvents) > 0
}

// DrainCommands returns and clears the queued commands, FIFO order.
// Commands are drained before events within a processing round (spec
// §4.5), so callers should call this before DrainEvents.
func (b *InMemoryBus) DrainCommands() []CommandEnvelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pendingCommands
	b.pendingCommands = nil
	return out
}

// DrainEvents returns and clears the queued events, FIFO order.
func (b *InMemoryBus) DrainEvents() []EventEnvelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pendingEvents
	b.pendingEvents = nil
	return out
}
