// Package types provides domain models shared across reshape components.
//
// Zero-dependency design: types.go and errors.go use only the standard
// library so the transform engine can be embedded without pulling in the
// catalog or CLI stacks. ID utilities in ids.go import uuid but are isolated
// for selective inclusion.
package types

import "time"

// RulesetID represents a UUIDv7 ruleset identifier.
// String alias enables type safety while maintaining JSON string serialization.
// UUIDv7 time-ordering ensures sequential IDs cluster in B-tree indexes.
type RulesetID string

// Ruleset is a named rule file stored in the catalog.
// The YAML body is kept verbatim; Checksum is the SHA256 of Body and guards
// against silent modification between save and load.
type Ruleset struct {
	ID        RulesetID `db:"ruleset_id"`
	Name      string    `db:"name"`
	Revision  int       `db:"revision"`
	Body      string    `db:"body"`
	Checksum  string    `db:"checksum"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Resource limits enforced at the catalog boundary.
const (
	// MaxRulesetNameLength bounds catalog names to keep them usable as CLI
	// arguments and index keys.
	MaxRulesetNameLength = 128

	// MaxRulesetBodySize caps stored rule files. 1MB accommodates any
	// realistic mapping set; larger bodies indicate generated or corrupted
	// input.
	MaxRulesetBodySize = 1024 * 1024
)
