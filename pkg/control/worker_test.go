package control_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kouweizhong/eventcore/pkg/control"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartStopTransitionsStatus(t *testing.T) {
	w := control.New(nil, nil, nil)
	assert.Equal(t, control.StatusStopped, w.Status())

	require.NoError(t, w.Start(context.Background()))
	assert.Equal(t, control.StatusRunning, w.Status())

	require.NoError(t, w.Stop(context.Background()))
	assert.Equal(t, control.StatusStopped, w.Status())
}

func TestStartIsIdempotent(t *testing.T) {
	w := control.New(nil, nil, nil)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))
	assert.Equal(t, control.StatusRunning, w.Status())
}

func TestRebuildEventStoreRunsRegisteredFunc(t *testing.T) {
	var ran bool
	w := control.New(nil, func(context.Context) error {
		ran = true
		return nil
	}, nil)

	require.NoError(t, w.RebuildEventStore(context.Background()))
	assert.True(t, ran)
}

func TestRebuildReadModelFailsWithoutRegisteredFunc(t *testing.T) {
	w := control.New(nil, nil, nil)
	err := w.RebuildReadModel(context.Background())
	require.Error(t, err)
}

func TestRebuildPropagatesFunctionError(t *testing.T) {
	boom := errors.New("boom")
	w := control.New(nil, func(context.Context) error { return boom }, nil)

	err := w.RebuildEventStore(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestConcurrentRebuildsAreRejected(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	w := control.New(nil, func(context.Context) error {
		close(started)
		<-release
		return nil
	}, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = w.RebuildEventStore(context.Background())
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("rebuild did not start")
	}

	err := w.RebuildEventStore(context.Background())
	require.Error(t, err)

	close(release)
	wg.Wait()
}
