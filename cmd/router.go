package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/crytic/routerguard/analysis/router"
	"github.com/crytic/routerguard/analysis/selectors"
	"github.com/crytic/routerguard/cmd/exitcodes"
	"github.com/crytic/routerguard/compilation/types"
	"github.com/crytic/routerguard/configs"
	"github.com/crytic/routerguard/logging/colors"
	"github.com/crytic/routerguard/utils"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// routerCmd groups the router commands
var routerCmd = &cobra.Command{
	Use:   "router",
	Short: "Generates and validates router contracts",
	Long:  `Generates and validates router contracts`,
}

// routerGenerateCmd represents the command provider for router generation
var routerGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generates router sources from their modules",
	Long: `Generates the Solidity source of every configured router (or the one given with --router)
from the selectors of its modules and their deployed addresses`,
	Args:          cmdValidateNoArgs,
	RunE:          cmdRunRouterGenerate,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// routerValidateCmd represents the command provider for router validation
var routerValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validates router branch tables against their modules",
	Long: `Validates that the branch table of every configured router (or the one given with --router)
dispatches each module selector, and only those, to the deployed address of the module`,
	Args:          cmdValidateNoArgs,
	RunE:          cmdRunRouterValidate,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	for _, cmd := range []*cobra.Command{routerGenerateCmd, routerValidateCmd} {
		cmd.Flags().StringSlice("router", []string{}, "name(s) of the configured router(s) to process (default is every router)")
		routerCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(routerCmd)
}

// RouterReport is the outcome of validating a single router.
type RouterReport struct {
	Router string                   `json:"router"`
	Errors []router.ValidationError `json:"errors"`
}

// selectRouters returns the configured routers named by the --router flag, or every router if it was not used.
func selectRouters(cmd *cobra.Command, projectConfig *configs.ProjectConfig) ([]configs.RouterConfig, error) {
	names, err := cmd.Flags().GetStringSlice("router")
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		if len(projectConfig.Routers) == 0 {
			return nil, errors.New("no routers are configured")
		}
		return projectConfig.Routers, nil
	}

	routers := make([]configs.RouterConfig, 0, len(names))
	for _, name := range names {
		routerConfig, ok := projectConfig.Router(name)
		if !ok {
			return nil, errors.Errorf("router %s is not configured", name)
		}
		routers = append(routers, routerConfig)
	}
	return routers, nil
}

// findModules resolves the selectors of every module of a router.
func findModules(routerConfig configs.RouterConfig, compilation *types.Compilation) ([]router.Module, error) {
	modules := make([]router.Module, 0, len(routerConfig.Modules))
	for _, name := range routerConfig.Modules {
		if _, ok := compilation.Contracts[name]; !ok {
			return nil, errors.Errorf("module %s of router %s is not part of the build", name, routerConfig.Name)
		}
		modules = append(modules, router.Module{
			FullyQualifiedName: name,
			Selectors:          selectors.FindModuleSelectors(name, compilation),
		})
	}
	return modules, nil
}

// validateRouters validates routers in parallel. Reports are returned in the order of routers.
func validateRouters(ctx context.Context, routers []configs.RouterConfig, compilation *types.Compilation, addresses router.AddressBook) ([]RouterReport, error) {
	reports := make([]RouterReport, len(routers))
	g, ctx := errgroup.WithContext(ctx)
	for i, routerConfig := range routers {
		i, routerConfig := i, routerConfig
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			name := routerConfig.FullyQualifiedName()
			parsed, ok := router.ParseRouter(name, compilation.SourceUnits)
			if !ok {
				return errors.Errorf("router %s is not part of the build", name)
			}
			modules, err := findModules(routerConfig, compilation)
			if err != nil {
				return err
			}
			reports[i] = RouterReport{Router: name, Errors: router.Validate(parsed, modules, addresses)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// generateRouters renders the source of each router. Sources are returned in the order of routers.
func generateRouters(routers []configs.RouterConfig, compilation *types.Compilation, addresses router.AddressBook) ([]string, error) {
	sources := make([]string, 0, len(routers))
	for _, routerConfig := range routers {
		modules, err := findModules(routerConfig, compilation)
		if err != nil {
			return nil, err
		}
		source, err := router.GenerateRouter(routerConfig.Name, modules, addresses)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, nil
}

// cmdRunRouterValidate executes the router validate CLI command
func cmdRunRouterValidate(cmd *cobra.Command, args []string) error {
	p, err := openProject(cmd)
	if err != nil {
		cmdLogger.Error("Failed to run the router validate command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
	defer p.Close()

	routers, err := selectRouters(cmd, p.config)
	if err != nil {
		cmdLogger.Error("Failed to run the router validate command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
	record, err := p.loadDeploymentRecord()
	if err != nil {
		cmdLogger.Error("Failed to run the router validate command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
	for _, stale := range record.StaleModules(p.compilation) {
		cmdLogger.Warn("Module ", colors.Bold, stale.FullyQualifiedName, colors.Reset,
			" changed since it was deployed and needs to be redeployed")
	}

	reports, err := validateRouters(cmd.Context(), routers, p.compilation, record)
	if err != nil {
		cmdLogger.Error("Failed to run the router validate command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}

	if p.jsonOutput {
		if err = writeJSONReport(cmd.OutOrStdout(), reports); err != nil {
			return err
		}
	} else {
		logRouterReports(reports)
	}

	for _, report := range reports {
		if err = router.NewContractValidationError(report.Router, report.Errors); err != nil {
			return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeValidationFailed)
		}
	}
	return nil
}

// cmdRunRouterGenerate executes the router generate CLI command
func cmdRunRouterGenerate(cmd *cobra.Command, args []string) error {
	p, err := openProject(cmd)
	if err != nil {
		cmdLogger.Error("Failed to run the router generate command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
	defer p.Close()

	routers, err := selectRouters(cmd, p.config)
	if err != nil {
		cmdLogger.Error("Failed to run the router generate command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
	record, err := p.loadDeploymentRecord()
	if err != nil {
		cmdLogger.Error("Failed to run the router generate command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}

	sources, err := generateRouters(routers, p.compilation, record)
	if err != nil {
		var validationErr *router.ContractValidationError
		if errors.As(err, &validationErr) {
			logRouterReports([]RouterReport{{Router: validationErr.Contract, Errors: validationErr.Errors}})
			return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeValidationFailed)
		}
		cmdLogger.Error("Failed to run the router generate command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}

	for i, routerConfig := range routers {
		outputPath := routerConfig.Output()
		if err = utils.MakeDirectory(filepath.Dir(outputPath)); err != nil {
			cmdLogger.Error("Failed to run the router generate command", err)
			return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
		}
		if err = os.WriteFile(outputPath, []byte(sources[i]), 0644); err != nil {
			cmdLogger.Error("Failed to run the router generate command", err)
			return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
		}
		cmdLogger.Info("Router ", colors.Bold, routerConfig.Name, colors.Reset, " written to: ", colors.Bold, resolvePath(outputPath), colors.Reset)
	}
	return nil
}

// cmdValidateNoArgs makes sure that there are no positional arguments provided to a command
func cmdValidateNoArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		err = errors.Errorf("%s does not accept any positional arguments, only flags and their associated values", cmd.Name())
		cmdLogger.Error("Failed to validate args to the "+cmd.Name()+" command", err)
		return err
	}
	return nil
}
