package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reshapehq/reshape/internal/core/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending catalog migrations",
	RunE:  runMigrate,
}

var migrateStatus bool

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "show migration status instead of applying")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "--db-url required")
		return exitWith(1, "")
	}

	database, err := db.Open(dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open catalog: %v\n", err)
		return exitWith(1, "")
	}
	defer database.Close()

	if migrateStatus {
		statuses, serr := db.MigrateStatus(database)
		if serr != nil {
			fmt.Fprintf(os.Stderr, "failed to read migration status: %v\n", serr)
			return exitWith(1, "")
		}
		for _, status := range statuses {
			state := "pending"
			if status.Applied {
				state = "applied"
			}
			fmt.Printf("%s\t%s\n", status.ID, state)
		}
		return nil
	}

	if merr := db.MigrateUp(database); merr != nil {
		fmt.Fprintf(os.Stderr, "failed to migrate catalog: %v\n", merr)
		return exitWith(1, "")
	}
	return nil
}
