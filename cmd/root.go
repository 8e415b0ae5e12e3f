package cmd

import (
	"context"
	"os"

	"github.com/crytic/routerguard/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// cmdLogger is the logger used by every command. It logs to stdout until the project configuration is read, after
// which it is replaced by a sub-logger of logging.GlobalLogger.
var cmdLogger = logging.NewLogger(zerolog.InfoLevel)

var rootCmd = &cobra.Command{
	Use:   "routerguard",
	Short: "A deployment gate for Solidity router proxies",
	Long: `routerguard checks Solidity router proxies before they are deployed.

It generates routers from their modules, validates that a router's branch table
dispatches every module selector to the module's deployed address, and verifies
that storage namespace structs only ever grow by appending members.`,
}

func init() {
	cmdLogger.AddWriter(os.Stdout, logging.UNSTRUCTURED, true)

	// Flags shared by every command that reads a project
	rootCmd.PersistentFlags().String("config", "", "path to config file (default is "+DefaultProjectConfigFilename+")")
	rootCmd.PersistentFlags().String("build-info", "", "directory holding the build-info files of the project")
	rootCmd.PersistentFlags().String("deployment", "", "path to the deployment record of the project")
	rootCmd.PersistentFlags().Bool("json", false, "print reports as JSON to stdout")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored console output")
}

// ExecuteContext runs the root command. Commands stop early once ctx is done.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
