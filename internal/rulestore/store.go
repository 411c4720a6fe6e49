// internal/rulestore/store.go
package rulestore

import (
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/reshapehq/reshape/internal/core/db"
	"github.com/reshapehq/reshape/internal/rules"
	"github.com/reshapehq/reshape/internal/types"
)

/*
 * Ruleset catalog.
 *
 * Persists named rule files so transforms can reference rules by name
 * instead of a file path. Each ruleset carries a UUIDv7 id, a revision
 * counter bumped on every save, the verbatim YAML body, and a SHA256
 * checksum of the body verified again on load.
 *
 * Save validates the body (parse + static validation) before writing;
 * the catalog never holds a rule file that validate would reject.
 */

// ErrInvalidRuleset wraps static validation failure on save.
type ErrInvalidRuleset struct {
	Diagnostics []*rules.RuleError
}

// Error implements the error interface.
func (e *ErrInvalidRuleset) Error() string {
	return fmt.Sprintf("ruleset failed validation with %d diagnostics", len(e.Diagnostics))
}

// Store provides catalog access over a database connection.
type Store struct {
	queries *db.Queries
}

// New wraps a query set in a Store.
func New(queries *db.Queries) *Store {
	return &Store{queries: queries}
}

// Save inserts a new ruleset or bumps the revision of an existing one.
// The body must parse and validate cleanly.
func (s *Store) Save(name, body string) (*types.Ruleset, error) {
	if len(name) == 0 || len(name) > types.MaxRulesetNameLength {
		return nil, types.ErrRulesetNameTooLong
	}
	if len(body) > types.MaxRulesetBodySize {
		return nil, types.ErrRulesetBodyTooLarge
	}

	rule, perr := rules.ParseRuleFile(body)
	if perr != nil {
		return nil, &ErrInvalidRuleset{Diagnostics: []*rules.RuleError{perr}}
	}
	if diagnostics := rules.ValidateWithSource(rule, body); len(diagnostics) > 0 {
		return nil, &ErrInvalidRuleset{Diagnostics: diagnostics}
	}

	checksum := bodyChecksum(body)
	now := time.Now().UTC()

	existing, err := s.Get(name)
	switch {
	case err == nil:
		revision := existing.Revision + 1
		if _, err := s.queries.Exec("update-ruleset", revision, body, checksum, now, name); err != nil {
			return nil, fmt.Errorf("failed to update ruleset: %w", err)
		}
		existing.Revision = revision
		existing.Body = body
		existing.Checksum = checksum
		existing.UpdatedAt = now
		return existing, nil
	case errors.Is(err, types.ErrRulesetNotFound):
		ruleset := &types.Ruleset{
			ID:        types.NewRulesetID(),
			Name:      name,
			Revision:  1,
			Body:      body,
			Checksum:  checksum,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := s.queries.Exec("insert-ruleset",
			string(ruleset.ID), ruleset.Name, ruleset.Revision, ruleset.Body,
			ruleset.Checksum, ruleset.CreatedAt, ruleset.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to insert ruleset: %w", err)
		}
		return ruleset, nil
	default:
		return nil, err
	}
}

// Get fetches a ruleset by name and verifies its checksum.
func (s *Store) Get(name string) (*types.Ruleset, error) {
	var ruleset types.Ruleset
	if err := s.queries.Get("get-ruleset-by-name", &ruleset, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrRulesetNotFound
		}
		return nil, fmt.Errorf("failed to fetch ruleset: %w", err)
	}
	if err := verifyChecksum(&ruleset); err != nil {
		return nil, err
	}
	return &ruleset, nil
}

// GetByID fetches a ruleset by id and verifies its checksum.
func (s *Store) GetByID(id types.RulesetID) (*types.Ruleset, error) {
	var ruleset types.Ruleset
	if err := s.queries.Get("get-ruleset-by-id", &ruleset, string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrRulesetNotFound
		}
		return nil, fmt.Errorf("failed to fetch ruleset: %w", err)
	}
	if err := verifyChecksum(&ruleset); err != nil {
		return nil, err
	}
	return &ruleset, nil
}

// List returns all rulesets ordered by name.
func (s *Store) List() ([]types.Ruleset, error) {
	var rulesets []types.Ruleset
	if err := s.queries.Select("list-rulesets", &rulesets); err != nil {
		return nil, fmt.Errorf("failed to list rulesets: %w", err)
	}
	return rulesets, nil
}

// Delete removes a ruleset by name.
func (s *Store) Delete(name string) error {
	result, err := s.queries.Exec("delete-ruleset", name)
	if err != nil {
		return fmt.Errorf("failed to delete ruleset: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete ruleset: %w", err)
	}
	if affected == 0 {
		return types.ErrRulesetNotFound
	}
	return nil
}

func bodyChecksum(body string) string {
	hash := sha256.Sum256([]byte(body))
	return fmt.Sprintf("%x", hash)
}

func verifyChecksum(ruleset *types.Ruleset) error {
	if bodyChecksum(ruleset.Body) != ruleset.Checksum {
		return fmt.Errorf("checksum mismatch for ruleset %s", ruleset.Name)
	}
	return nil
}
