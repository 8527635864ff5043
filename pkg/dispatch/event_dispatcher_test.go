package dispatch_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kouweizhong/eventcore/pkg/bus"
	"github.com/kouweizhong/eventcore/pkg/dispatch"
	"github.com/kouweizhong/eventcore/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	*domain.BaseVersionedEvent
}

func newTestEvent(eventType string) bus.EventEnvelope {
	e := &testEvent{BaseVersionedEvent: domain.NewBaseVersionedEvent()}
	e.Stamp(domain.NewID(), "agg-1", "Widget", eventType, 1, "corr-1", time.Now())
	return bus.EventEnvelope{MessageID: e.MessageID(), CorrelationID: e.CorrelationID(), Event: e}
}

func TestSyncDispatcherRunsHandlersInRegistrationOrder(t *testing.T) {
	registry := dispatch.NewEventHandlerRegistry()
	var order []string
	registry.Register("Widget.Created", dispatch.EventHandlerFunc(func(bus.EventEnvelope) error {
		order = append(order, "specific-1")
		return nil
	}))
	registry.RegisterAny(dispatch.EventHandlerFunc(func(bus.EventEnvelope) error {
		order = append(order, "any")
		return nil
	}))
	registry.Register("Widget.Created", dispatch.EventHandlerFunc(func(bus.EventEnvelope) error {
		order = append(order, "specific-2")
		return nil
	}))

	d := dispatch.NewSyncDispatcher(registry)
	require.NoError(t, d.Dispatch(newTestEvent("Widget.Created")))
	assert.Equal(t, []string{"specific-1", "any", "specific-2"}, order)
}

func TestSyncDispatcherStopsOnFirstErrorWithoutRetry(t *testing.T) {
	registry := dispatch.NewEventHandlerRegistry()
	var calls int32
	boom := errors.New("boom")
	registry.Register("Widget.Created", dispatch.EventHandlerFunc(func(bus.EventEnvelope) error {
		atomic.AddInt32(&calls, 1)
		return boom
	}))
	var secondRan bool
	registry.Register("Widget.Created", dispatch.EventHandlerFunc(func(bus.EventEnvelope) error {
		secondRan = true
		return nil
	}))

	d := dispatch.NewSyncDispatcher(registry)
	err := d.Dispatch(newTestEvent("Widget.Created"))
	require.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.False(t, secondRan)
}

func TestSyncDispatcherIgnoresNonMatchingEventType(t *testing.T) {
	registry := dispatch.NewEventHandlerRegistry()
	var ran bool
	registry.Register("Widget.Deleted", dispatch.EventHandlerFunc(func(bus.EventEnvelope) error {
		ran = true
		return nil
	}))

	d := dispatch.NewSyncDispatcher(registry)
	require.NoError(t, d.Dispatch(newTestEvent("Widget.Created")))
	assert.False(t, ran)
}

func TestAsyncDispatcherRunsMatchingHandlersConcurrently(t *testing.T) {
	registry := dispatch.NewEventHandlerRegistry()
	var wg sync.WaitGroup
	wg.Add(2)
	registry.Register("Widget.Created", dispatch.EventHandlerFunc(func(bus.EventEnvelope) error {
		defer wg.Done()
		return nil
	}))
	registry.RegisterAny(dispatch.EventHandlerFunc(func(bus.EventEnvelope) error {
		defer wg.Done()
		return nil
	}))

	d := dispatch.NewAsyncDispatcher(registry, nil)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	require.NoError(t, d.Dispatch(newTestEvent("Widget.Created")))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handlers did not both run")
	}
}

func TestAsyncDispatcherRetriesFailingHandler(t *testing.T) {
	registry := dispatch.NewEventHandlerRegistry()
	var attempts int32
	registry.Register("Widget.Created", dispatch.EventHandlerFunc(func(bus.EventEnvelope) error {
		n := atomic.AddInt32(&attempts, 1)
		if n < 2 {
			return errors.New("transient")
		}
		return nil
	}))

	d := dispatch.NewAsyncDispatcher(registry, nil)
	require.NoError(t, d.Dispatch(newTestEvent("Widget.Created")))
	assert.EqualValues(t, 2, atomic.LoadInt32(&attempts))
}

func TestAsyncDispatcherTreatsConcurrencyConflictAsSuccess(t *testing.T) {
	registry := dispatch.NewEventHandlerRegistry()
	var attempts int32
	registry.Register("Widget.Created", dispatch.EventHandlerFunc(func(bus.EventEnvelope) error {
		atomic.AddInt32(&attempts, 1)
		return domain.ErrConcurrencyConflict
	}))

	d := dispatch.NewAsyncDispatcher(registry, nil)
	require.NoError(t, d.Dispatch(newTestEvent("Widget.Created")))
	assert.EqualValues(t, 1, atomic.LoadInt32(&attempts))
}

func TestAsyncDispatcherJoinsErrorsFromMultipleHandlers(t *testing.T) {
	registry := dispatch.NewEventHandlerRegistry()
	boomA := errors.New("boom-a")
	boomB := errors.New("boom-b")
	registry.Register("Widget.Created", dispatch.EventHandlerFunc(func(bus.EventEnvelope) error { return boomA }))
	registry.Register("Widget.Created", dispatch.EventHandlerFunc(func(bus.EventEnvelope) error { return boomB }))

	d := dispatch.NewAsyncDispatcher(registry, nil)
	err := d.Dispatch(newTestEvent("Widget.Created"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boomA)
	assert.ErrorIs(t, err, boomB)
}
