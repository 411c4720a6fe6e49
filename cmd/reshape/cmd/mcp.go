package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reshapehq/reshape/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve validate/preflight/transform/generate as MCP tools over stdio",
	RunE:  runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	if err := mcp.Serve(Version); err != nil {
		fmt.Fprintf(os.Stderr, "mcp server failed: %v\n", err)
		return exitWith(1, "")
	}
	return nil
}
