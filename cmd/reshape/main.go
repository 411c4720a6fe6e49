package main

import (
	"os"

	"github.com/reshapehq/reshape/cmd/reshape/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
