package snapshot_test

import (
	"testing"
	"time"

	"github.com/kouweizhong/eventcore/pkg/aggregate"
	"github.com/kouweizhong/eventcore/pkg/snapshot"
	"github.com/stretchr/testify/require"
)

func TestGetMissingIsNotFresh(t *testing.T) {
	c := snapshot.NewCache()
	m, fresh := c.Get("Items", "id-1")
	require.Nil(t, m)
	require.False(t, fresh)
}

func TestSetThenGetIsFresh(t *testing.T) {
	c := snapshot.NewCache()
	m := &aggregate.Memento{AggregateID: "id-1", AggregateType: "Items", Version: 3}
	c.Set("Items", "id-1", m)

	got, fresh := c.Get("Items", "id-1")
	require.True(t, fresh)
	require.Equal(t, m, got)
}

func TestMarkStaleForcesTailRead(t *testing.T) {
	c := snapshot.NewCache()
	m := &aggregate.Memento{AggregateID: "id-1", AggregateType: "Items", Version: 3}
	c.Set("Items", "id-1", m)
	c.MarkStale("Items", "id-1")

	got, fresh := c.Get("Items", "id-1")
	require.False(t, fresh)
	require.Equal(t, m, got) // memento itself is retained, just not "fresh"
}

func TestFreshnessWindowExpires(t *testing.T) {
	c := snapshot.NewCache(snapshot.WithFreshnessWindow(10 * time.Millisecond))
	c.Set("Items", "id-1", &aggregate.Memento{AggregateID: "id-1", AggregateType: "Items"})

	_, fresh := c.Get("Items", "id-1")
	require.True(t, fresh)

	time.Sleep(20 * time.Millisecond)
	_, fresh = c.Get("Items", "id-1")
	require.False(t, fresh)
}

func TestEntriesAreKeyedByTypeAndID(t *testing.T) {
	c := snapshot.NewCache()
	c.Set("Items", "id-1", &aggregate.Memento{Version: 1})
	c.Set("Orders", "id-1", &aggregate.Memento{Version: 2})

	items, _ := c.Get("Items", "id-1")
	orders, _ := c.Get("Orders", "id-1")
	require.Equal(t, int64(1), items.Version)
	require.Equal(t, int64(2), orders.Version)
}
