package dispatch

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	traceMu sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// newTraceID returns a monotonic, sortable, human-readable trace id (spec
// §4.7: "a human-readable trace id") for one dispatch call.
func newTraceID() string {
	traceMu.Lock()
	defer traceMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
