// Package version carries build metadata injected with -ldflags -X.
package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	Version   = "0.1.0-dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// Full renders version, commit and build time on one line.
func Full() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildTime)
}

// AddCommand registers a `version` subcommand on root.
func AddCommand(root *cobra.Command) {
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", root.Name(), Full())
		},
	})
}
