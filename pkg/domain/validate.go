package domain

import (
	"fmt"

	"github.com/asaskevich/govalidator"
)

// ValidateAggregateID checks that an aggregate identifier is present and,
// when it looks UUID-shaped, well formed. Aggregate IDs are not required to
// be UUIDs (spec §3 only requires them stable), so a non-UUID string is
// accepted as long as it is non-empty; this only rejects the common bug of
// a malformed UUID string sneaking in from a caller that generates one.
func ValidateAggregateID(id string) error {
	if id == "" {
		return fmt.Errorf("eventcore: aggregate id must not be empty")
	}
	if looksLikeUUID(id) && !govalidator.IsUUID(id) {
		return fmt.Errorf("eventcore: aggregate id %q looks like a UUID but is malformed", id)
	}
	return nil
}

// looksLikeUUID is a cheap length/hyphen heuristic so plain opaque IDs
// (slugs, ULIDs, etc) are not forced through UUID validation.
func looksLikeUUID(id string) bool {
	return len(id) == 36 && id[8] == '-' && id[13] == '-' && id[18] == '-' && id[23] == '-'
}

// ValidateNonEmpty is a small helper used by NewBaseCommand to reject an
// empty target ID or command type.
func ValidateNonEmpty(field, value string) error {
	if govalidator.IsNull(value) {
		return fmt.Errorf("eventcore: %s must not be empty", field)
	}
	return nil
}
