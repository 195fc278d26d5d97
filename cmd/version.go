// File: cmd/version.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vistral/deskpilot/internal/mcp"
)

// Stamped at build time via -ldflags "-X github.com/vistral/deskpilot/cmd.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "deskpilot %s (commit %s, built %s)\n", version, commit, date)
	},
}

func init() {
	mcp.Version = version
	rootCmd.AddCommand(versionCmd)
}
