package eventstore

import (
	"sync"

	"github.com/kouweizhong/eventcore/pkg/bus"
	"github.com/kouweizhong/eventcore/pkg/domain"
)

// MemoryBackend is a Backend implementation with no persistence, for
// tests and the rebuilder's scratch pass. Its "transaction" is simply the
// backend's own mutex: publish runs, and only on success are the events
// appended, which is observably equivalent to a rollback on publish
// failure.
type MemoryBackend struct {
	mu     sync.Mutex
	events map[string][]domain.VersionedEvent
}

// NewMemoryBackend constructs an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{events: make(map[string][]domain.VersionedEvent)}
}

func streamKey(aggregateType, id string) string { return aggregateType + "/" + id }

// LoadEvents returns events with Version > afterVersion, ascending.
func (b *MemoryBackend) LoadEvents(aggregateType, id string, afterVersion int64) ([]domain.VersionedEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	all := b.events[streamKey(aggregateType, id)]
	var out []domain.VersionedEvent
	for _, e := range all {
		if e.Version() > afterVersion {
			out = append(out, e)
		}
	}
	return out, nil
}

// Save checks the version-chain invariant, runs publish, and only then
// appends the new events to the in-memory stream.
func (b *MemoryBackend) Save(aggregateType, id string, expectedVersion int64, events []domain.VersionedEvent, correlationID string, publish func(bus.Transaction) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	k := streamKey(aggregateType, id)
	existing := b.events[k]
	var lastVersion int64
	if n := len(existing); n > 0 {
		lastVersion = existing[n-1].Version()
	}
	if lastVersion != expectedVersion {
		return domain.ErrConcurrencyConflict
	}

	if err := publish(struct{}{}); err != nil {
		return err
	}

	b.events[k] = append(existing, events...)
	return nil
}

// Truncate discards every persisted event, per spec §4.9 step 2.
func (b *MemoryBackend) Truncate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = make(map[string][]domain.VersionedEvent)
	return nil
}
