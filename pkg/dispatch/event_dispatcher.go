package dispatch

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kouweizhong/eventcore/pkg/bus"
)

const (
	eventRetryAttempts = 3
	eventRetryUnit     = 50 * time.Millisecond
)

// EventHandler reacts to one dispatched event. The envelope carries the
// message id, correlation id, and trace id the dispatcher propagates
// (spec §4.7) alongside the event payload itself.
type EventHandler interface {
	Handle(envelope bus.EventEnvelope) error
}

// EventHandlerFunc adapts a plain function to EventHandler.
type EventHandlerFunc func(bus.EventEnvelope) error

func (f EventHandlerFunc) Handle(envelope bus.EventEnvelope) error { return f(envelope) }

type eventRegistration struct {
	eventType string // "" means registered against the abstract Event type
	handler   EventHandler
}

// EventHandlerRegistry is the shared handler table both dispatcher
// variants read from (spec §4.7: "Two variants ... sharing a registry").
type EventHandlerRegistry struct {
	mu            sync.RWMutex
	registrations []eventRegistration
}

// NewEventHandlerRegistry constructs an empty registry.
func NewEventHandlerRegistry() *EventHandlerRegistry {
	return &EventHandlerRegistry{}
}

// Register adds a handler for one concrete event type, in registration
// order.
func (r *EventHandlerRegistry) Register(eventType string, handler EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registrations = append(r.registrations, eventRegistration{eventType: eventType, handler: handler})
}

// RegisterAny adds a handler invoked for every event regardless of type
// (registered "against the abstract Event type", per spec §4.7).
func (r *EventHandlerRegistry) RegisterAny(handler EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registrations = append(r.registrations, eventRegistration{handler: handler})
}

// handlersFor returns the handlers that apply to eventType, in
// registration order: concrete-type matches and abstract-type
// registrations interleaved exactly as registered.
func (r *EventHandlerRegistry) handlersFor(eventType string) []EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []EventHandler
	for _, reg := range r.registrations {
		if reg.eventType == "" || reg.eventType == eventType {
			out = append(out, reg.handler)
		}
	}
	return out
}

// SyncDispatcher invokes matching handlers in registration order on the
// caller's goroutine, with no retry: any handler error aborts the
// dispatch and propagates immediately (spec §4.7).
type SyncDispatcher struct {
	registry *EventHandlerRegistry
}

// NewSyncDispatcher constructs a synchronous dispatcher over registry.
func NewSyncDispatcher(registry *EventHandlerRegistry) *SyncDispatcher {
	return &SyncDispatcher{registry: registry}
}

// Dispatch delivers one event envelope, stamping a fresh trace id.
func (d *SyncDispatcher) Dispatch(envelope bus.EventEnvelope) error {
	envelope.TraceID = newTraceID()
	for _, handler := range d.registry.handlersFor(envelope.Event.EventType()) {
		if err := handler.Handle(envelope); err != nil {
			return err
		}
	}
	return nil
}

// AsyncDispatcher runs each matching handler on its own goroutine and
// waits for all of them, per handler applying bounded retry that treats a
// ConcurrencyConflict as already-processed success (spec §4.7).
type AsyncDispatcher struct {
	registry *EventHandlerRegistry
	logger   *slog.Logger
}

// NewAsyncDispatcher constructs an asynchronous dispatcher over registry.
// A nil logger falls back to slog.Default().
func NewAsyncDispatcher(registry *EventHandlerRegistry, logger *slog.Logger) *AsyncDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncDispatcher{registry: registry, logger: logger}
}

// Dispatch delivers one event envelope to every matching handler
// concurrently and blocks until all have finished (successfully or not),
// returning the combined error of any handlers that exhausted their
// retries.
func (d *AsyncDispatcher) Dispatch(envelope bus.EventEnvelope) error {
	envelope.TraceID = newTraceID()
	handlers := d.registry.handlersFor(envelope.Event.EventType())
	if len(handlers) == 0 {
		return nil
	}

	errs := make([]error, len(handlers))
	var wg sync.WaitGroup
	wg.Add(len(handlers))
	for i, handler := range handlers {
		go func(i int, handler EventHandler) {
			defer wg.Done()
			errs[i] = retry(eventRetryAttempts, eventRetryUnit, true, func() error {
				return handler.Handle(envelope)
			})
			if errs[i] != nil {
				d.logger.Error("async event handler failed after retries",
					slog.String("event_type", envelope.Event.EventType()),
					slog.String("message_id", envelope.MessageID),
					slog.String("error", errs[i].Error()),
				)
			}
		}(i, handler)
	}
	wg.Wait()

	return errors.Join(errs...)
}
