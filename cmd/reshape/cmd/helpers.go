package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/reshapehq/reshape/internal/core/db"
	"github.com/reshapehq/reshape/internal/rules"
	"github.com/reshapehq/reshape/internal/rulestore"
)

// loadRuleSource reads the rule YAML from a file (-r) or from the catalog
// (--ruleset). Exactly one of the two must be given.
func loadRuleSource(rulesPath, rulesetName string) (string, error) {
	switch {
	case rulesPath != "" && rulesetName != "":
		fmt.Fprintln(os.Stderr, "only one of --rules and --ruleset may be given")
		return "", exitWith(1, "")
	case rulesPath != "":
		data, err := os.ReadFile(rulesPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read rules: %v\n", err)
			return "", exitWith(1, "")
		}
		return string(data), nil
	case rulesetName != "":
		store, closer, err := openStore()
		if err != nil {
			return "", err
		}
		defer closer()
		ruleset, serr := store.Get(rulesetName)
		if serr != nil {
			fmt.Fprintf(os.Stderr, "failed to load ruleset: %v\n", serr)
			return "", exitWith(1, "")
		}
		return ruleset.Body, nil
	default:
		fmt.Fprintln(os.Stderr, "one of --rules and --ruleset is required")
		return "", exitWith(1, "")
	}
}

// parseRules loads and parses rule YAML, applying the optional format
// override.
func parseRules(rulesPath, rulesetName, formatOverride string) (*rules.RuleFile, string, error) {
	source, err := loadRuleSource(rulesPath, rulesetName)
	if err != nil {
		return nil, "", err
	}

	rule, perr := rules.ParseRuleFile(source)
	if perr != nil {
		fmt.Fprintf(os.Stderr, "failed to parse rules: %v\n", perr)
		return nil, "", exitWith(1, "")
	}

	if formatOverride != "" {
		if formatOverride != "csv" && formatOverride != "json" {
			fmt.Fprintln(os.Stderr, "--format must be csv or json")
			return nil, "", exitWith(1, "")
		}
		// The parsed rule may be shared through the loader cache; copy
		// before overriding the input format.
		overridden := *rule
		overridden.Input.Format = rules.InputFormat(formatOverride)
		rule = &overridden
	}

	return rule, source, nil
}

func loadInput(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read input: %v\n", err)
		return "", exitWith(1, "")
	}
	return string(data), nil
}

func loadContext(path string) (any, error) {
	if path == "" && cliConfig != nil {
		path = cliConfig.ContextFile
	}
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read context: %v\n", err)
		return nil, exitWith(1, "")
	}
	value, jerr := rules.DecodeJSONValue(string(data))
	if jerr != nil {
		fmt.Fprintf(os.Stderr, "failed to parse context JSON: %v\n", jerr)
		return nil, exitWith(1, "")
	}
	return value, nil
}

// writeOutput writes to the -o path (creating parent directories) or to
// stdout when the path is empty.
func writeOutput(path, content string) error {
	if path == "" {
		fmt.Println(content)
		return nil
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create output directory: %v\n", err)
			return exitWith(1, "")
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write output: %v\n", err)
		return exitWith(1, "")
	}
	return nil
}

// openStore opens the ruleset catalog from --db-url, running migrations on
// the fly for SQLite so first use needs no separate migrate step.
func openStore() (*rulestore.Store, func(), error) {
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "--db-url required")
		return nil, nil, exitWith(1, "")
	}

	database, err := db.Open(dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open catalog: %v\n", err)
		return nil, nil, exitWith(1, "")
	}

	if err := db.MigrateUp(database); err != nil {
		database.Close()
		fmt.Fprintf(os.Stderr, "failed to migrate catalog: %v\n", err)
		return nil, nil, exitWith(1, "")
	}

	queries, err := db.LoadQueries(database)
	if err != nil {
		database.Close()
		fmt.Fprintf(os.Stderr, "failed to load queries: %v\n", err)
		return nil, nil, exitWith(1, "")
	}

	return rulestore.New(queries), func() { database.Close() }, nil
}
