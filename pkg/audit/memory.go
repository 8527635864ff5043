package audit

import (
	"sync"

	"github.com/kouweizhong/eventcore/pkg/domain"
)

// MemoryLog is an in-process Log, used by tests and by the rebuilder
// whenever it's pointed at an in-memory event store rather than SQLite.
type MemoryLog struct {
	mu      sync.RWMutex
	entries map[key]Metadata
}

// NewMemoryLog constructs an empty log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{entries: make(map[key]Metadata)}
}

func (l *MemoryLog) IsDuplicate(message domain.Message) (bool, error) {
	k, err := keyFor(message)
	if err != nil {
		return false, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[k]
	return ok, nil
}

func (l *MemoryLog) Save(message domain.Message, metadata Metadata) error {
	k, err := keyFor(message)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.entries[k]; exists {
		return nil
	}
	l.entries[k] = metadata
	return nil
}

func (l *MemoryLog) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[key]Metadata)
	return nil
}
