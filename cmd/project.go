package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/crytic/routerguard/compilation"
	"github.com/crytic/routerguard/compilation/types"
	"github.com/crytic/routerguard/configs"
	"github.com/crytic/routerguard/deployment"
	"github.com/crytic/routerguard/logging"
	"github.com/crytic/routerguard/logging/colors"
	"github.com/crytic/routerguard/utils"
	"github.com/spf13/cobra"
)

// project is everything a command needs to analyze a build: the configuration and the loaded build-info files.
type project struct {
	config      *configs.ProjectConfig
	compilation *types.Compilation
	// jsonOutput indicates reports should be printed as JSON to stdout instead of logged
	jsonOutput bool
	// logFile is the structured log file, if a log directory is configured
	logFile io.Closer
}

// Close releases the resources held by the project.
func (p *project) Close() {
	if p.logFile != nil {
		_ = p.logFile.Close()
	}
}

// loadProjectConfig navigates through the following possibilities:
// #1: We will search for either a custom config file (via --config) or the default (routerguard.json).
// If we find it, read it. If we can't read it, throw an error.
// #2: If a custom file was provided (--config was used), and we can't find the file, throw an error.
// #3: If routerguard.json can't be found, use the default project configuration.
// Flags given on the command line override the values read from the file.
func loadProjectConfig(cmd *cobra.Command) (*configs.ProjectConfig, error) {
	var projectConfig *configs.ProjectConfig

	// Check to see if --config flag was used and store the value of --config flag
	configFlagUsed := cmd.Flags().Changed("config")
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if !configFlagUsed {
		configPath = DefaultProjectConfigFilename
	}

	// Check to see if the file exists at configPath
	_, existenceError := os.Stat(configPath)
	switch {
	case existenceError == nil:
		// Possibility #1: File was found
		cmdLogger.Info("Reading the configuration file at: ", colors.Bold, configPath, colors.Reset)
		projectConfig, err = configs.ReadProjectConfigFromFile(configPath)
		if err != nil {
			return nil, err
		}
	case configFlagUsed:
		// Possibility #2: The --config flag was used, and we couldn't find the file
		return nil, existenceError
	default:
		// Possibility #3: --config flag was not used and routerguard.json was not found
		cmdLogger.Warn(fmt.Sprintf("Unable to find the config file at %v, will use the default project configuration instead", configPath))
		projectConfig = configs.GetDefaultProjectConfig()
	}

	if err = updateProjectConfigWithFlags(cmd, projectConfig); err != nil {
		return nil, err
	}
	if err = projectConfig.Validate(); err != nil {
		return nil, err
	}
	return projectConfig, nil
}

// updateProjectConfigWithFlags overrides the configuration with the persistent flags that were set.
func updateProjectConfigWithFlags(cmd *cobra.Command, projectConfig *configs.ProjectConfig) error {
	var err error
	if cmd.Flags().Changed("build-info") {
		projectConfig.BuildInfoDirectory, err = cmd.Flags().GetString("build-info")
		if err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("deployment") {
		projectConfig.DeploymentFile, err = cmd.Flags().GetString("deployment")
		if err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("no-color") {
		projectConfig.Logging.NoColor, err = cmd.Flags().GetBool("no-color")
		if err != nil {
			return err
		}
	}
	return nil
}

// setupLogging replaces the global logger with one configured by the project. Console output goes to stdout, unless
// JSON reports are requested, in which case it goes to stderr so stdout stays parseable. Returns the structured log
// file, if one was created.
func setupLogging(projectConfig *configs.ProjectConfig, jsonOutput bool) (io.Closer, error) {
	var console io.Writer = os.Stdout
	if jsonOutput {
		console = os.Stderr
	}

	logging.GlobalLogger = logging.NewLogger(projectConfig.Logging.Level)
	logging.GlobalLogger.AddWriter(console, logging.UNSTRUCTURED, !projectConfig.Logging.NoColor)

	var logFile *os.File
	if projectConfig.Logging.LogDirectory != "" {
		var err error
		logFile, err = utils.CreateFile(projectConfig.Logging.LogDirectory, LogFileName)
		if err != nil {
			return nil, err
		}
		logging.GlobalLogger.AddWriter(logFile, logging.STRUCTURED, false)
	}

	cmdLogger = logging.GlobalLogger.NewSubLogger("module", logging.CLI_SERVICE)
	if logFile == nil {
		return nil, nil
	}
	return logFile, nil
}

// openProject reads the project configuration, sets up logging, and loads the build-info files of the project.
func openProject(cmd *cobra.Command) (*project, error) {
	projectConfig, err := loadProjectConfig(cmd)
	if err != nil {
		return nil, err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}
	logFile, err := setupLogging(projectConfig, jsonOutput)
	if err != nil {
		return nil, err
	}

	p := &project{config: projectConfig, jsonOutput: jsonOutput, logFile: logFile}
	p.compilation, err = compilation.LoadBuildInfoDirectory(projectConfig.BuildInfoDirectory)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err = compilation.CheckCompilerVersion(p.compilation, projectConfig.MinimumCompilerVersion); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// loadDeploymentRecord reads the deployment record of the project. A missing record is an empty one, so routers can
// be checked before anything was deployed.
func (p *project) loadDeploymentRecord() (*deployment.Record, error) {
	path := p.config.DeploymentFile
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cmdLogger.Warn("No deployment record found at ", colors.Bold, path, colors.Reset, ", every module is treated as not deployed")
		return deployment.NewRecord(), nil
	}
	return deployment.LoadRecord(path)
}

// resolvePath makes a configured path absolute for messages.
func resolvePath(path string) string {
	if absolutePath, err := filepath.Abs(path); err == nil {
		return absolutePath
	}
	return path
}
