// Package audit implements the durable message audit log spec §4.8
// describes: a table of processed-message keys the rebuilder consults to
// suppress double-application when replaying.
//
// Grounded on the teacher's pkg/store/sqlite/migrate layout for the
// SQLite-backed variant and pkg/eventsourcing's registry style for the
// in-memory one; there is no teacher equivalent of an audit log itself
// since the teacher repo has no rebuilder, so the duplicate-key shape
// below is derived directly from spec §4.8's definition.
package audit

import (
	"fmt"
	"time"

	"github.com/kouweizhong/eventcore/pkg/domain"
)

// Metadata is the bookkeeping Save records alongside a message's identity
// key: enough to answer "when was this processed, and as part of which
// causal chain" without needing the full payload back.
type Metadata struct {
	CorrelationID string
	TraceID       string
	ProcessedAt   time.Time
}

// Log is the MessageAuditLog contract spec §4.8 names.
type Log interface {
	// IsDuplicate reports whether message's key has already been saved.
	IsDuplicate(message domain.Message) (bool, error)

	// Save records message's key and metadata. Saving an already-present
	// key is a no-op, not an error — the rebuilder may call Save for a
	// message it also just confirmed is not a duplicate, and sagas may
	// redeliver.
	Save(message domain.Message, metadata Metadata) error

	// Truncate clears every recorded key and resets any identity/sequence
	// counter, per spec §4.9 step 7 ("truncate the source audit table and
	// reseed its identity").
	Truncate() error
}

// key is the duplicate-detection identity spec §4.8 defines: for a
// command, its own Id; for an event, (SourceType, SourceId, Version).
// Any other Message shape (a plain Event with no version, which this
// module does not itself produce) has no key: keyFor returns an error,
// so IsDuplicate and Save fail for it.
type key struct {
	kind       string
	commandID  string
	sourceType string
	sourceID   string
	version    int64
}

func keyFor(message domain.Message) (key, error) {
	switch m := message.(type) {
	case domain.VersionedEvent:
		return key{kind: "event", sourceType: m.SourceType(), sourceID: m.SourceID(), version: m.Version()}, nil
	case domain.Command:
		return key{kind: "command", commandID: m.MessageID()}, nil
	default:
		return key{}, fmt.Errorf("eventcore: audit log cannot key message of type %T", message)
	}
}
