package audit_test

import (
	"testing"
	"time"

	"github.com/kouweizhong/eventcore/pkg/audit"
	"github.com/kouweizhong/eventcore/pkg/domain"
	"github.com/kouweizhong/eventcore/pkg/sqlstore"
	"github.com/stretchr/testify/require"
)

type testCommand struct {
	domain.BaseCommand
}

type testEvent struct {
	*domain.BaseVersionedEvent
}

func newCommand(id string) testCommand {
	return testCommand{BaseCommand: domain.NewBaseCommand(id, "agg-1", "Widget.Create")}
}

func newEvent(sourceID string, version int64) testEvent {
	e := &testEvent{BaseVersionedEvent: domain.NewBaseVersionedEvent()}
	e.Stamp(domain.NewID(), sourceID, "Widget", "Widget.Created", version, "corr-1", time.Now())
	return testEvent{e.BaseVersionedEvent}
}

func runLogSuite(t *testing.T, newLog func(t *testing.T) audit.Log) {
	t.Run("CommandDuplicateIsKeyedByID", func(t *testing.T) {
		log := newLog(t)
		cmd := newCommand("C1")

		dup, err := log.IsDuplicate(cmd)
		require.NoError(t, err)
		require.False(t, dup)

		require.NoError(t, log.Save(cmd, audit.Metadata{CorrelationID: "C1"}))

		dup, err = log.IsDuplicate(cmd)
		require.NoError(t, err)
		require.True(t, dup)

		dup, err = log.IsDuplicate(newCommand("C2"))
		require.NoError(t, err)
		require.False(t, dup)
	})

	t.Run("EventDuplicateIsKeyedBySourceTypeSourceIDVersion", func(t *testing.T) {
		log := newLog(t)
		evt := newEvent("agg-1", 1)

		require.NoError(t, log.Save(evt, audit.Metadata{CorrelationID: "corr-1"}))

		dup, err := log.IsDuplicate(evt)
		require.NoError(t, err)
		require.True(t, dup)

		dup, err = log.IsDuplicate(newEvent("agg-1", 2))
		require.NoError(t, err)
		require.False(t, dup)

		dup, err = log.IsDuplicate(newEvent("agg-2", 1))
		require.NoError(t, err)
		require.False(t, dup)
	})

	t.Run("SaveIsIdempotent", func(t *testing.T) {
		log := newLog(t)
		cmd := newCommand("C1")
		require.NoError(t, log.Save(cmd, audit.Metadata{}))
		require.NoError(t, log.Save(cmd, audit.Metadata{}))
	})

	t.Run("TruncateClearsEntries", func(t *testing.T) {
		log := newLog(t)
		cmd := newCommand("C1")
		require.NoError(t, log.Save(cmd, audit.Metadata{}))
		require.NoError(t, log.Truncate())

		dup, err := log.IsDuplicate(cmd)
		require.NoError(t, err)
		require.False(t, dup)
	})
}

func TestMemoryLog(t *testing.T) {
	runLogSuite(t, func(t *testing.T) audit.Log {
		return audit.NewMemoryLog()
	})
}

func TestSQLiteLog(t *testing.T) {
	runLogSuite(t, func(t *testing.T) audit.Log {
		log, err := audit.OpenSQLiteLog(sqlstore.Options{DSN: ":memory:", WALMode: false})
		require.NoError(t, err)
		t.Cleanup(func() { log.Close() })
		return log
	})
}
