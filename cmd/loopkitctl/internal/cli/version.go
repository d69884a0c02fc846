package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set via -ldflags "-X .../cli.version=..." at release build
// time; it stays "dev" in ordinary builds.
var version = "dev"

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the loopkitctl version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}
