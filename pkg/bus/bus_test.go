package bus_test

import (
	"testing"

	"github.com/kouweizhong/eventcore/pkg/bus"
	"github.com/stretchr/testify/require"
)

func TestInMemoryBusSatisfiesTransactionalCapabilities(t *testing.T) {
	b := bus.NewInMemoryBus()
	var _ bus.TransactionalEventBus = b
	var _ bus.TransactionalCommandBus = b
}

func TestInMemoryBusFIFOAndDrain(t *testing.T) {
	b := bus.NewInMemoryBus()
	require.False(t, b.HasNewCommands())
	require.False(t, b.HasNewEvents())

	require.NoError(t, b.Send(bus.CommandEnvelope{MessageID: "c1"}))
	require.NoError(t, b.Send(bus.CommandEnvelope{MessageID: "c2"}))
	require.NoError(t, b.Publish(bus.EventEnvelope{MessageID: "e1"}))

	require.True(t, b.HasNewCommands())
	require.True(t, b.HasNewEvents())

	cmds := b.DrainCommands()
	require.Len(t, cmds, 2)
	require.Equal(t, "c1", cmds[0].MessageID)
	require.Equal(t, "c2", cmds[1].MessageID)
	require.False(t, b.HasNewCommands())

	events := b.DrainEvents()
	require.Len(t, events, 1)
	require.False(t, b.HasNewEvents())
}

func TestInMemoryBusTransactionVariantsIgnoreTx(t *testing.T) {
	b := bus.NewInMemoryBus()
	require.NoError(t, b.SendWithTransaction(nil, bus.CommandEnvelope{MessageID: "c1"}))
	require.NoError(t, b.PublishWithTransaction(nil, bus.EventEnvelope{MessageID: "e1"}))
	require.Len(t, b.DrainCommands(), 1)
	require.Len(t, b.DrainEvents(), 1)
}
