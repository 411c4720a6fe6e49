package types

import (
	"time"

	"github.com/google/uuid"
)

// NewRulesetID generates a UUIDv7 ruleset identifier.
// Time-ordered IDs ensure sequential inserts cluster in B-tree pages.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRulesetID() RulesetID {
	return RulesetID(uuid.Must(uuid.NewV7()).String())
}

// ParseRulesetID validates and converts a string to RulesetID.
// Rejects malformed UUIDs to prevent invalid IDs from entering the catalog.
func ParseRulesetID(s string) (RulesetID, error) {
	_, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return RulesetID(s), nil
}

// RulesetIDTime extracts the timestamp embedded in a UUIDv7 ID.
// Enables time-based queries without a database lookup.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func RulesetIDTime(id RulesetID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
