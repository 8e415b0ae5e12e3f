package cmd

import (
	"github.com/crytic/routerguard/analysis/storage"
	"github.com/crytic/routerguard/cmd/exitcodes"
	"github.com/crytic/routerguard/compilation"
	"github.com/crytic/routerguard/compilation/types"
	"github.com/crytic/routerguard/configs"
	"github.com/crytic/routerguard/deployment"
	"github.com/crytic/routerguard/logging/colors"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// storageCmd groups the storage layout commands
var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Checks and snapshots storage namespace layouts",
	Long:  `Checks and snapshots storage namespace layouts`,
}

// storageCheckCmd represents the command provider for the storage layout gate
var storageCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Compares storage namespace structs against a baseline",
	Long: `Compares the storage namespace structs of the current build against the latest layout snapshot
(or the build-info directory given with --previous) and fails on changes other than appends`,
	Args:          cmdValidateNoArgs,
	RunE:          cmdRunStorageCheck,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// storageSnapshotCmd represents the command provider for saving layout snapshots
var storageSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Saves the storage namespace structs of the current build",
	Long: `Saves the storage namespace structs of the current build as the new baseline for storage check,
typically right after a deployment`,
	Args:          cmdValidateNoArgs,
	RunE:          cmdRunStorageSnapshot,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// storageHistoryCmd represents the command provider for listing layout snapshots
var storageHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Lists the saved layout snapshots",
	Long: `Lists the layout snapshots saved under every layout key (or the one given with --key), oldest first`,
	Args:          cmdValidateNoArgs,
	RunE:          cmdRunStorageHistory,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	for _, cmd := range []*cobra.Command{storageCheckCmd, storageSnapshotCmd} {
		cmd.Flags().String("key", "", "layout key snapshots are compared and saved under (default is the configured snapshot key)")
		storageCmd.AddCommand(cmd)
	}
	storageCheckCmd.Flags().String("previous", "", "build-info directory of the previous build to compare against instead of a snapshot")
	storageCheckCmd.Flags().Bool("allow-modifications", false, "accept in-place storage member changes")
	storageCheckCmd.Flags().Bool("allow-removals", false, "accept removed storage members and structs")
	storageHistoryCmd.Flags().String("key", "", "layout key to list snapshots of (default is every key)")
	storageCmd.AddCommand(storageHistoryCmd)
	rootCmd.AddCommand(storageCmd)
}

// buildStorageMap returns the storage struct map of the configured namespaces in a compilation.
func buildStorageMap(compilation *types.Compilation, storageConfig configs.StorageConfig) ([]storage.StorageNamespaceEntry, error) {
	contracts, missing := storage.FindNamespaceContracts(compilation.SourceUnits, storageConfig.Namespaces)
	if len(missing) > 0 {
		return nil, errors.Errorf("storage namespace(s) not found in the build: %v", missing)
	}
	return storage.BuildContractsStructMap(contracts)
}

// snapshotKey returns the layout key given with --key, or the configured one.
func snapshotKey(cmd *cobra.Command, storageConfig configs.StorageConfig) (string, error) {
	key, err := cmd.Flags().GetString("key")
	if err != nil {
		return "", err
	}
	if key == "" {
		key = storageConfig.SnapshotKey
	}
	if key == "" {
		key = configs.DefaultSnapshotKey
	}
	return key, nil
}

// storagePolicy returns the configured policy, overridden by the flags that were set.
func storagePolicy(cmd *cobra.Command, storageConfig configs.StorageConfig) (storage.Policy, error) {
	policy := storage.Policy{
		AllowModifications: storageConfig.AllowModifications,
		AllowRemovals:      storageConfig.AllowRemovals,
	}
	var err error
	if cmd.Flags().Changed("allow-modifications") {
		if policy.AllowModifications, err = cmd.Flags().GetBool("allow-modifications"); err != nil {
			return policy, err
		}
	}
	if cmd.Flags().Changed("allow-removals") {
		if policy.AllowRemovals, err = cmd.Flags().GetBool("allow-removals"); err != nil {
			return policy, err
		}
	}
	return policy, nil
}

// checkStorage compares the current storage struct map against a baseline and gates the diff by policy. The
// returned error is a *storage.StorageMutationError when the policy rejects the diff.
func checkStorage(baselineName string, baseline []storage.StorageNamespaceEntry, current []storage.StorageNamespaceEntry, policy storage.Policy) (StorageReport, error) {
	diff := storage.CompareStorageStructs(baseline, current)
	err := storage.Verify(diff, policy)
	return StorageReport{Baseline: baselineName, Diff: diff, Passed: err == nil}, err
}

// loadBaseline returns the storage struct map to compare against: the one of the --previous build-info directory if
// given, otherwise the latest snapshot under key. ok is false when there is no snapshot yet.
func loadBaseline(cmd *cobra.Command, p *project, key string) (name string, entries []storage.StorageNamespaceEntry, ok bool, err error) {
	previous, err := cmd.Flags().GetString("previous")
	if err != nil {
		return "", nil, false, err
	}
	if previous != "" {
		previousCompilation, err := compilation.LoadBuildInfoDirectory(previous)
		if err != nil {
			return "", nil, false, err
		}
		entries, err = buildStorageMap(previousCompilation, p.config.Storage)
		if err != nil {
			return "", nil, false, err
		}
		return previous, entries, true, nil
	}

	store, err := deployment.OpenLayoutStore(p.config.Storage.LayoutStore)
	if err != nil {
		return "", nil, false, err
	}
	defer store.Close()
	snapshot, ok, err := store.Latest(key)
	if err != nil || !ok {
		return "", nil, false, err
	}
	name = "snapshot " + key + " (" + snapshot.CreatedAt.Format("2006-01-02 15:04:05") + ")"
	return name, snapshot.Entries, true, nil
}

// cmdRunStorageCheck executes the storage check CLI command
func cmdRunStorageCheck(cmd *cobra.Command, args []string) error {
	p, err := openProject(cmd)
	if err != nil {
		cmdLogger.Error("Failed to run the storage check command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
	defer p.Close()

	key, err := snapshotKey(cmd, p.config.Storage)
	if err != nil {
		return err
	}
	policy, err := storagePolicy(cmd, p.config.Storage)
	if err != nil {
		return err
	}
	current, err := buildStorageMap(p.compilation, p.config.Storage)
	if err != nil {
		cmdLogger.Error("Failed to run the storage check command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
	baselineName, baseline, ok, err := loadBaseline(cmd, p, key)
	if err != nil {
		cmdLogger.Error("Failed to run the storage check command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
	if !ok {
		cmdLogger.Warn("No layout snapshot found under ", colors.Bold, key, colors.Reset,
			", nothing to compare against. Run `routerguard storage snapshot` after deploying")
		return nil
	}

	report, err := checkStorage(baselineName, baseline, current, policy)
	if p.jsonOutput {
		if jsonErr := writeJSONReport(cmd.OutOrStdout(), report); jsonErr != nil {
			return jsonErr
		}
	} else {
		logStorageReport(report)
	}
	if err != nil {
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeValidationFailed)
	}
	return nil
}

// cmdRunStorageSnapshot executes the storage snapshot CLI command
func cmdRunStorageSnapshot(cmd *cobra.Command, args []string) error {
	p, err := openProject(cmd)
	if err != nil {
		cmdLogger.Error("Failed to run the storage snapshot command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
	defer p.Close()

	key, err := snapshotKey(cmd, p.config.Storage)
	if err != nil {
		return err
	}
	entries, err := buildStorageMap(p.compilation, p.config.Storage)
	if err != nil {
		cmdLogger.Error("Failed to run the storage snapshot command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}

	store, err := deployment.OpenLayoutStore(p.config.Storage.LayoutStore)
	if err != nil {
		cmdLogger.Error("Failed to run the storage snapshot command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
	defer store.Close()
	snapshot, err := store.Save(key, entries)
	if err != nil {
		cmdLogger.Error("Failed to run the storage snapshot command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}

	if p.jsonOutput {
		return writeJSONReport(cmd.OutOrStdout(), snapshot)
	}
	cmdLogger.Info("Saved layout snapshot ", colors.Bold, snapshot.ID, colors.Reset, " of ", len(entries),
		" struct(s) under ", colors.Bold, key, colors.Reset)
	return nil
}

// loadHistory returns the snapshots of the given keys, or of every key in the store if keys is empty.
func loadHistory(store *deployment.LayoutStore, keys []string) (map[string][]deployment.LayoutSnapshot, error) {
	if len(keys) == 0 {
		var err error
		if keys, err = store.Keys(); err != nil {
			return nil, err
		}
	}
	history := make(map[string][]deployment.LayoutSnapshot, len(keys))
	for _, key := range keys {
		snapshots, err := store.History(key)
		if err != nil {
			return nil, err
		}
		history[key] = snapshots
	}
	return history, nil
}

// cmdRunStorageHistory executes the storage history CLI command
func cmdRunStorageHistory(cmd *cobra.Command, args []string) error {
	p, err := openProject(cmd)
	if err != nil {
		cmdLogger.Error("Failed to run the storage history command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
	defer p.Close()

	key, err := cmd.Flags().GetString("key")
	if err != nil {
		return err
	}
	keys := make([]string, 0, 1)
	if key != "" {
		keys = append(keys, key)
	}

	store, err := deployment.OpenLayoutStore(p.config.Storage.LayoutStore)
	if err != nil {
		cmdLogger.Error("Failed to run the storage history command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
	defer store.Close()
	history, err := loadHistory(store, keys)
	if err != nil {
		cmdLogger.Error("Failed to run the storage history command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}

	if p.jsonOutput {
		return writeJSONReport(cmd.OutOrStdout(), history)
	}
	logStorageHistory(history)
	return nil
}
