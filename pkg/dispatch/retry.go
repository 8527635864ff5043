package dispatch

import (
	"errors"
	"time"

	"github.com/kouweizhong/eventcore/pkg/domain"
)

// retry runs fn up to attempts times. Before attempt N>1 it sleeps
// N*unit, per spec §4.6/§4.7's linear backoff. If treatConflictAsSuccess
// is set and fn fails with domain.ErrConcurrencyConflict, that counts as
// success (the async event dispatcher's "already processed" rule) rather
// than another attempt. Returns the last error if every attempt fails.
func retry(attempts int, unit time.Duration, treatConflictAsSuccess bool, fn func() error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			time.Sleep(time.Duration(attempt) * unit)
		}
		err = fn()
		if err == nil {
			return nil
		}
		if treatConflictAsSuccess && errors.Is(err, domain.ErrConcurrencyConflict) {
			return nil
		}
	}
	return err
}
