package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reshapehq/reshape/internal/rulestore"
)

var rulesetCmd = &cobra.Command{
	Use:   "ruleset",
	Short: "Manage the ruleset catalog",
}

var rulesetSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save or update a named ruleset",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesetSave,
}

var rulesetGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print a stored ruleset's YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesetGet,
}

var rulesetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rulesets",
	Args:  cobra.NoArgs,
	RunE:  runRulesetList,
}

var rulesetRmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Remove a stored ruleset",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesetRm,
}

var rulesetSaveRules string

func init() {
	rootCmd.AddCommand(rulesetCmd)
	rulesetCmd.AddCommand(rulesetSaveCmd, rulesetGetCmd, rulesetListCmd, rulesetRmCmd)
	rulesetSaveCmd.Flags().StringVarP(&rulesetSaveRules, "rules", "r", "", "rule file path")
	rulesetSaveCmd.MarkFlagRequired("rules")
}

func runRulesetSave(cmd *cobra.Command, args []string) error {
	body, err := os.ReadFile(rulesetSaveRules)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read rules: %v\n", err)
		return exitWith(1, "")
	}

	store, closer, serr := openStore()
	if serr != nil {
		return serr
	}
	defer closer()

	ruleset, saveErr := store.Save(args[0], string(body))
	if saveErr != nil {
		if invalid, ok := saveErr.(*rulestore.ErrInvalidRuleset); ok {
			emitValidationErrors(invalid.Diagnostics, "text")
			return exitWith(2, "")
		}
		fmt.Fprintf(os.Stderr, "failed to save ruleset: %v\n", saveErr)
		return exitWith(1, "")
	}

	fmt.Printf("saved %s revision %d (%s)\n", ruleset.Name, ruleset.Revision, ruleset.ID)
	return nil
}

func runRulesetGet(cmd *cobra.Command, args []string) error {
	store, closer, err := openStore()
	if err != nil {
		return err
	}
	defer closer()

	ruleset, serr := store.Get(args[0])
	if serr != nil {
		fmt.Fprintf(os.Stderr, "failed to load ruleset: %v\n", serr)
		return exitWith(1, "")
	}

	fmt.Print(ruleset.Body)
	return nil
}

func runRulesetList(cmd *cobra.Command, args []string) error {
	store, closer, err := openStore()
	if err != nil {
		return err
	}
	defer closer()

	rulesets, serr := store.List()
	if serr != nil {
		fmt.Fprintf(os.Stderr, "failed to list rulesets: %v\n", serr)
		return exitWith(1, "")
	}

	for _, ruleset := range rulesets {
		fmt.Printf("%s\trev %d\t%s\t%s\n", ruleset.Name, ruleset.Revision, ruleset.ID, ruleset.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runRulesetRm(cmd *cobra.Command, args []string) error {
	store, closer, err := openStore()
	if err != nil {
		return err
	}
	defer closer()

	if serr := store.Delete(args[0]); serr != nil {
		fmt.Fprintf(os.Stderr, "failed to remove ruleset: %v\n", serr)
		return exitWith(1, "")
	}
	return nil
}
