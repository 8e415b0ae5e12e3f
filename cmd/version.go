package cmd

import (
	"fmt"

	"github.com/crytic/routerguard/version"
	"github.com/spf13/cobra"
)

// versionCmd represents the version command that displays build information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and build information",
	Long: `Print detailed version and build information for routerguard.

This includes the semantic version, the git commit the binary was built from and the Go version
used to compile it.`,
	Run: func(cmd *cobra.Command, args []string) {
		info := version.GetInfo()
		fmt.Fprint(cmd.OutOrStdout(), info.String())
	},
}

func init() {
	rootCmd.Version = version.GetInfo().Short()
	rootCmd.AddCommand(versionCmd)
}
