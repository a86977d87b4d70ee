// Command gridsync edits a remote table in the terminal and inspects the
// journals it records.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/gridsync/internal/cli"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	root := cli.NewRootCommand()
	root.Version = Version

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
