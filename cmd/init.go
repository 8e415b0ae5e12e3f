package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/crytic/routerguard/analysis/dependencies"
	"github.com/crytic/routerguard/configs"
	"github.com/crytic/routerguard/logging/colors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// initCmd represents the command provider for init
var initCmd = &cobra.Command{
	Use:               "init",
	Short:             "Initializes a project configuration",
	Long:              `Initializes a project configuration`,
	Args:              cmdValidateNoArgs,
	ValidArgsFunction: cmdValidInitArgs,
	RunE:              cmdRunInit,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	// Add flags to init command
	initCmd.Flags().String("out", "", "output path for the new project configuration file (.json, .yaml or .yml)")
	initCmd.Flags().StringSlice("module", []string{}, "fully-qualified name of a module of the router (requires --router)")
	initCmd.Flags().String("router", "", "fully-qualified name of the router to configure")
	initCmd.Flags().Bool("force", false, "overwrite an existing configuration file")

	// Add the init command and its associated flags to the root command
	rootCmd.AddCommand(initCmd)
}

// cmdValidInitArgs will return which flags are valid for dynamic completion for the init command
func cmdValidInitArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	// Gather a list of flags that are available to be used in the current command but have not been used yet
	var unusedFlags []string
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if !flag.Changed {
			unusedFlags = append(unusedFlags, "--"+flag.Name)
		}
	})
	return unusedFlags, cobra.ShellCompDirectiveNoFileComp
}

// updateProjectConfigWithInitFlags will update the given projectConfig with any CLI arguments that were provided to
// the init command
func updateProjectConfigWithInitFlags(cmd *cobra.Command, projectConfig *configs.ProjectConfig) error {
	if err := updateProjectConfigWithFlags(cmd, projectConfig); err != nil {
		return err
	}

	routerName, err := cmd.Flags().GetString("router")
	if err != nil {
		return err
	}
	modules, err := cmd.Flags().GetStringSlice("module")
	if err != nil {
		return err
	}
	if routerName == "" {
		if len(modules) > 0 {
			return fmt.Errorf("--module requires --router")
		}
		return nil
	}
	if !dependencies.IsFullyQualifiedName(routerName) {
		return fmt.Errorf("router name %q must be fully-qualified, e.g. contracts/Router.sol:Router", routerName)
	}

	sourcePath, contractName := dependencies.ParseFullyQualifiedName(routerName)
	projectConfig.Routers = append(projectConfig.Routers, configs.RouterConfig{
		Name:       contractName,
		SourcePath: sourcePath,
		Modules:    modules,
	})
	return nil
}

// cmdRunInit executes the init CLI command and updates the project configuration with any flags
func cmdRunInit(cmd *cobra.Command, args []string) error {
	// If we weren't provided an output path (flag was not used), we use our working directory
	outputPath, err := cmd.Flags().GetString("out")
	if err != nil {
		cmdLogger.Error("Failed to run the init command", err)
		return err
	}
	if outputPath == "" {
		outputPath = DefaultProjectConfigFilename
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		cmdLogger.Error("Failed to run the init command", err)
		return err
	}

	// Update the default project configuration given whatever flags were set using the CLI
	projectConfig := configs.GetDefaultProjectConfig()
	if err = updateProjectConfigWithInitFlags(cmd, projectConfig); err != nil {
		cmdLogger.Error("Failed to run the init command", err)
		return err
	}
	if err = projectConfig.Validate(); err != nil {
		cmdLogger.Error("Failed to run the init command", err)
		return err
	}

	if _, err = os.Stat(outputPath); err == nil && !force {
		// Prompt user for overwrite confirmation
		fmt.Fprint(cmd.OutOrStdout(), "The file already exists. Overwrite? (y/n): ")
		var response string
		if _, err := fmt.Fscan(cmd.InOrStdin(), &response); err != nil {
			cmdLogger.Error("Failed to scan input", err)
			return err
		}
		if !strings.EqualFold(response, "y") {
			fmt.Fprintln(cmd.OutOrStdout(), "Operation canceled.")
			return nil
		}
	}

	// Write our project configuration
	if err = projectConfig.WriteToFile(outputPath); err != nil {
		cmdLogger.Error("Failed to run the init command", err)
		return err
	}
	cmdLogger.Info("Project configuration successfully output to: ", colors.Bold, resolvePath(outputPath), colors.Reset)
	return nil
}
