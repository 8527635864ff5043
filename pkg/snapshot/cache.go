// Package snapshot provides the in-process snapshot (memento) cache the
// event store consults before falling back to a full or tail event read
// (spec §4.4).
//
// Grounded on the teacher's pkg/store/snapshot.go (SnapshotStore,
// IntervalSnapshotStrategy, Snapshotable), narrowed to the cache-only
// surface spec §4.4 describes: a keyed (aggregateType, id) -> (memento,
// lastRefreshAt) map with Get/Set/MarkStale, durable persistence being
// out of scope here (that lives in pkg/eventstore).
package snapshot

import (
	"sync"
	"time"

	"github.com/kouweizhong/eventcore/pkg/aggregate"
)

// DefaultFreshnessWindow is the "fresh within 1 second" window spec §4.4
// and §9 describe, chosen empirically in the source and made configurable
// here per spec §9's Open Question resolution.
const DefaultFreshnessWindow = time.Second

type key struct {
	aggregateType string
	id            string
}

type entry struct {
	memento       *aggregate.Memento
	lastRefreshAt time.Time // zero value means "never" (MarkStale)
}

// Cache is the ISnapshotCache spec §4.4 describes. Safe for concurrent
// use: per spec §5, it is the only process-wide mutable state besides the
// tracer queue and the handler registries, and the event store's version
// check at commit is what makes a loosely-consistent cache safe to share.
type Cache struct {
	mu              sync.Mutex
	entries         map[key]*entry
	freshnessWindow time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithFreshnessWindow overrides DefaultFreshnessWindow.
func WithFreshnessWindow(d time.Duration) Option {
	return func(c *Cache) { c.freshnessWindow = d }
}

// NewCache constructs an empty cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		entries:         make(map[key]*entry),
		freshnessWindow: DefaultFreshnessWindow,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached memento for (aggregateType, id) and whether it is
// fresh (refreshed within the freshness window). An absent entry returns
// (nil, false). A stale entry returns its memento with fresh == false; the
// caller must then read the event tail after the memento's version.
func (c *Cache) Get(aggregateType, id string) (m *aggregate.Memento, fresh bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key{aggregateType, id}]
	if !ok || e.memento == nil {
		return nil, false
	}
	if e.lastRefreshAt.IsZero() || time.Since(e.lastRefreshAt) > c.freshnessWindow {
		return e.memento, false
	}
	return e.memento, true
}

// Set stores a memento and marks it refreshed at the current wall-clock
// time (spec §4.3 step 8: refresh happens only after a successful commit).
func (c *Cache) Set(aggregateType, id string, m *aggregate.Memento) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key{aggregateType, id}] = &entry{memento: m, lastRefreshAt: time.Now()}
}

// MarkStale sets an entry's lastRefreshAt to "never" without discarding
// the memento itself, so the next Find does not trust the memento alone
// and reads the event tail after it (spec §4.3 step 7, §5 scenario
// "snapshot staleness").
func (c *Cache) MarkStale(aggregateType, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key{aggregateType, id}]
	if !ok {
		return
	}
	e.lastRefreshAt = time.Time{}
}

// Clear discards every cached memento, per spec §4.9 step 2's "truncate
// ... Snapshots" applied to this cache's in-process stand-in for that
// table.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[key]*entry)
}
