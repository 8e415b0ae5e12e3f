package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crytic/routerguard/analysis/storage"
	"github.com/crytic/routerguard/cmd/exitcodes"
	"github.com/crytic/routerguard/compilation"
	"github.com/crytic/routerguard/compilation/types"
	"github.com/crytic/routerguard/configs"
	"github.com/crytic/routerguard/deployment"
	"github.com/crytic/routerguard/utils/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	ownerModuleName   = "contracts/modules/OwnerModule.sol:OwnerModule"
	upgradeModuleName = "contracts/modules/UpgradeModule.sol:UpgradeModule"
	namespaceName     = "contracts/storage/OwnerNamespace.sol:OwnerNamespace"
	ownerAddress      = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	upgradeAddress    = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
)

// projectSources returns the source units of a small router project. The router's branch table dispatches cases.
func projectSources(cases []testutils.RouterCase, namespaceMembers ...testutils.ASTNode) []testutils.ASTNode {
	return []testutils.ASTNode{
		testutils.SourceUnit(1, "contracts/modules/OwnerModule.sol",
			testutils.Contract(10, "OwnerModule", nil,
				testutils.Function(11, "owner", "8da5cb5b"),
				testutils.Function(12, "nominateNewOwner", "1627540c"),
			),
		),
		testutils.SourceUnit(2, "contracts/modules/UpgradeModule.sol",
			testutils.Contract(20, "UpgradeModule", nil,
				testutils.Function(21, "upgradeTo", "3659cfe6"),
			),
		),
		testutils.SourceUnit(3, "contracts/Router.sol",
			testutils.Contract(30, "Router", nil,
				testutils.AddressConstant(31, "_OWNER_MODULE", ownerAddress),
				testutils.AddressConstant(32, "_UPGRADE_MODULE", upgradeAddress),
				testutils.RouterForward(33, cases...),
			),
		),
		testutils.SourceUnit(4, "contracts/storage/OwnerNamespace.sol",
			testutils.Contract(40, "OwnerNamespace", nil,
				testutils.Struct(41, "OwnerNamespace.OwnerStorage", namespaceMembers...),
			),
		),
	}
}

func validCases() []testutils.RouterCase {
	return []testutils.RouterCase{
		{Selector: "0x1627540c", Constant: "_OWNER_MODULE"},
		{Selector: "0x3659cfe6", Constant: "_UPGRADE_MODULE"},
		{Selector: "0x8da5cb5b", Constant: "_OWNER_MODULE"},
	}
}

func ownerMembers() []testutils.ASTNode {
	return []testutils.ASTNode{
		testutils.Member(42, "owner", "address"),
		testutils.Member(43, "nominatedOwner", "address"),
	}
}

// writeProject writes the build-info, deployment record and config of a router project to a temporary directory
// and returns the config path.
func writeProject(t *testing.T, cases []testutils.RouterCase, namespaceMembers ...testutils.ASTNode) string {
	dir := t.TempDir()
	buildInfoDirectory := filepath.Join(dir, "artifacts", "build-info")
	testutils.WriteBuildInfo(t, buildInfoDirectory, "build", "0.8.17", projectSources(cases, namespaceMembers...)...)

	record := deployment.NewRecord()
	record.SetDeployment(ownerModuleName, deployment.ContractDeployment{DeployedAddress: ownerAddress, IsModule: true, ContractName: "OwnerModule"})
	record.SetDeployment(upgradeModuleName, deployment.ContractDeployment{DeployedAddress: upgradeAddress, IsModule: true, ContractName: "UpgradeModule"})
	deploymentFile := filepath.Join(dir, "deployments", "deployment.json")
	require.NoError(t, record.WriteToFile(deploymentFile))

	projectConfig := configs.GetDefaultProjectConfig()
	projectConfig.BuildInfoDirectory = buildInfoDirectory
	projectConfig.DeploymentFile = deploymentFile
	projectConfig.Routers = []configs.RouterConfig{{
		Name:       "Router",
		SourcePath: "contracts/Router.sol",
		Modules:    []string{ownerModuleName, upgradeModuleName},
		OutputPath: filepath.Join(dir, "generated", "Router.sol"),
	}}
	projectConfig.Storage.Namespaces = []string{namespaceName}
	projectConfig.Storage.LayoutStore = filepath.Join(dir, ".routerguard", "layouts.db")
	configPath := filepath.Join(dir, "routerguard.json")
	require.NoError(t, projectConfig.WriteToFile(configPath))
	return configPath
}

// runCommand executes the root command with args and returns its stdout and exit code.
func runCommand(t *testing.T, args ...string) (string, int) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	_, exitCode := exitcodes.GetInnerErrorAndExitCode(ExecuteContext(context.Background()))
	return out.String(), exitCode
}

func loadProject(t *testing.T, configPath string) (*configs.ProjectConfig, *types.Compilation, *deployment.Record) {
	projectConfig, err := configs.ReadProjectConfigFromFile(configPath)
	require.NoError(t, err)
	build, err := compilation.LoadBuildInfoDirectory(projectConfig.BuildInfoDirectory)
	require.NoError(t, err)
	record, err := deployment.LoadRecord(projectConfig.DeploymentFile)
	require.NoError(t, err)
	return projectConfig, build, record
}

// TestValidateRouters verifies routers are validated concurrently against the build and the deployment record.
func TestValidateRouters(t *testing.T) {
	defer goleak.VerifyNone(t)

	projectConfig, build, record := loadProject(t, writeProject(t, validCases(), ownerMembers()...))
	reports, err := validateRouters(context.Background(), projectConfig.Routers, build, record)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "contracts/Router.sol:Router", reports[0].Router)
	assert.Empty(t, reports[0].Errors)

	// Drop the nominateNewOwner arm
	projectConfig, build, record = loadProject(t, writeProject(t, validCases()[1:], ownerMembers()...))
	reports, err = validateRouters(context.Background(), projectConfig.Routers, build, record)
	require.NoError(t, err)
	require.Len(t, reports[0].Errors, 1)
	assert.True(t, reports[0].Errors[0].MissingInRouter)
	assert.Equal(t, "Selector for OwnerModule.nominateNewOwner not found in router", reports[0].Errors[0].Msg)

	// Routers outside the build fail the whole run
	routers := append(projectConfig.Routers, configs.RouterConfig{
		Name:       "AccountRouter",
		SourcePath: "contracts/AccountRouter.sol",
		Modules:    []string{ownerModuleName},
	})
	_, err = validateRouters(context.Background(), routers, build, record)
	assert.ErrorContains(t, err, "AccountRouter")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = validateRouters(ctx, projectConfig.Routers, build, record)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestGenerateRouters verifies generated routers dispatch to every module of the deployment record.
func TestGenerateRouters(t *testing.T) {
	projectConfig, build, record := loadProject(t, writeProject(t, validCases(), ownerMembers()...))
	sources, err := generateRouters(projectConfig.Routers, build, record)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Contains(t, sources[0], "contract Router")
	assert.Contains(t, sources[0], "_OWNER_MODULE = "+ownerAddress)
	assert.Contains(t, sources[0], "_UPGRADE_MODULE = "+upgradeAddress)
	assert.Contains(t, sources[0], "case 0x3659cfe6 { result := _UPGRADE_MODULE }")

	// Modules missing from the record cannot be dispatched to
	_, err = generateRouters(projectConfig.Routers, build, deployment.NewRecord())
	assert.Error(t, err)
}

// TestCheckStorage verifies storage diffs are gated by the policy.
func TestCheckStorage(t *testing.T) {
	_, build, _ := loadProject(t, writeProject(t, validCases(), ownerMembers()...))
	storageConfig := configs.StorageConfig{Namespaces: []string{namespaceName}}
	baseline, err := buildStorageMap(build, storageConfig)
	require.NoError(t, err)

	// Appending a member is always safe
	_, grown, _ := loadProject(t, writeProject(t, validCases(), append(ownerMembers(), testutils.Member(44, "lastUpgrade", "uint256"))...))
	current, err := buildStorageMap(grown, storageConfig)
	require.NoError(t, err)
	report, err := checkStorage("baseline", baseline, current, storage.Policy{})
	require.NoError(t, err)
	assert.True(t, report.Passed)
	assert.Len(t, report.Diff.Appends, 1)

	// Renaming a member is rejected unless modifications are allowed
	_, renamed, _ := loadProject(t, writeProject(t, validCases(), testutils.Member(42, "admin", "address"), testutils.Member(43, "nominatedOwner", "address")))
	current, err = buildStorageMap(renamed, storageConfig)
	require.NoError(t, err)
	report, err = checkStorage("baseline", baseline, current, storage.Policy{})
	var mutationErr *storage.StorageMutationError
	require.ErrorAs(t, err, &mutationErr)
	assert.False(t, report.Passed)
	assert.Len(t, mutationErr.Modifications, 1)

	report, err = checkStorage("baseline", baseline, current, storage.Policy{AllowModifications: true})
	assert.NoError(t, err)
	assert.True(t, report.Passed)

	_, err = buildStorageMap(build, configs.StorageConfig{Namespaces: []string{"contracts/Missing.sol:Missing"}})
	assert.ErrorContains(t, err, "contracts/Missing.sol:Missing")
}

// TestRouterValidateCommand runs router validate end to end and verifies the JSON report and exit codes.
func TestRouterValidateCommand(t *testing.T) {
	out, exitCode := runCommand(t, "router", "validate", "--config", writeProject(t, validCases(), ownerMembers()...), "--json")
	assert.Equal(t, exitcodes.ExitCodeSuccess, exitCode)
	var reports []RouterReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	assert.Empty(t, reports[0].Errors)

	// Bind upgradeTo to the owner module
	cases := validCases()
	cases[1].Constant = "_OWNER_MODULE"
	out, exitCode = runCommand(t, "router", "validate", "--config", writeProject(t, cases, ownerMembers()...), "--json")
	assert.Equal(t, exitcodes.ExitCodeValidationFailed, exitCode)
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.NotEmpty(t, reports[0].Errors)
	for _, err := range reports[0].Errors {
		assert.True(t, strings.Contains(err.Msg, "upgradeTo") || strings.Contains(err.Msg, "0x3659cfe6"), err.Msg)
	}

	_, exitCode = runCommand(t, "router", "validate", "--config", filepath.Join(t.TempDir(), "missing.json"))
	assert.Equal(t, exitcodes.ExitCodeHandledError, exitCode)
}

// TestStorageCommands runs storage snapshot and storage check end to end.
func TestStorageCommands(t *testing.T) {
	configPath := writeProject(t, validCases(), ownerMembers()...)

	// Nothing to compare against before the first snapshot
	_, exitCode := runCommand(t, "storage", "check", "--config", configPath, "--json")
	assert.Equal(t, exitcodes.ExitCodeSuccess, exitCode)

	out, exitCode := runCommand(t, "storage", "snapshot", "--config", configPath, "--json")
	require.Equal(t, exitcodes.ExitCodeSuccess, exitCode)
	var snapshot deployment.LayoutSnapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snapshot))
	assert.Equal(t, configs.DefaultSnapshotKey, snapshot.Key)
	require.Len(t, snapshot.Entries, 1)
	assert.Len(t, snapshot.Entries[0].Struct.Members, 2)

	out, exitCode = runCommand(t, "storage", "check", "--config", configPath, "--json")
	assert.Equal(t, exitcodes.ExitCodeSuccess, exitCode)
	var report StorageReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Passed)
	assert.True(t, report.Diff.IsEmpty())

	out, exitCode = runCommand(t, "storage", "history", "--config", configPath, "--json")
	require.Equal(t, exitcodes.ExitCodeSuccess, exitCode)
	var history map[string][]deployment.LayoutSnapshot
	require.NoError(t, json.Unmarshal([]byte(out), &history))
	require.Len(t, history, 1)
	require.Len(t, history[configs.DefaultSnapshotKey], 1)
	assert.Equal(t, snapshot.ID, history[configs.DefaultSnapshotKey][0].ID)
}

// TestLoadHistory verifies snapshots are listed per key, for every key or only the requested ones.
func TestLoadHistory(t *testing.T) {
	store, err := deployment.OpenLayoutStore(filepath.Join(t.TempDir(), "layouts.db"))
	require.NoError(t, err)
	defer store.Close()

	_, build, _ := loadProject(t, writeProject(t, validCases(), ownerMembers()...))
	entries, err := buildStorageMap(build, configs.StorageConfig{Namespaces: []string{namespaceName}})
	require.NoError(t, err)
	for _, key := range []string{"mainnet", "sepolia", "mainnet"} {
		_, err = store.Save(key, entries)
		require.NoError(t, err)
	}

	history, err := loadHistory(store, nil)
	require.NoError(t, err)
	assert.Len(t, history["mainnet"], 2)
	assert.Len(t, history["sepolia"], 1)

	history, err = loadHistory(store, []string{"sepolia", "unknown"})
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Len(t, history["sepolia"], 1)
	assert.Empty(t, history["unknown"])
}

// TestInitCommand verifies init writes a default configuration with the router given on the command line.
func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	testutils.ExecuteInDirectory(t, dir, func() {
		_, exitCode := runCommand(t, "init", "--router", "contracts/Router.sol:Router",
			"--module", ownerModuleName, "--module", upgradeModuleName, "--force")
		require.Equal(t, exitcodes.ExitCodeSuccess, exitCode)

		projectConfig, err := configs.ReadProjectConfigFromFile(DefaultProjectConfigFilename)
		require.NoError(t, err)
		require.Len(t, projectConfig.Routers, 1)
		assert.Equal(t, "Router", projectConfig.Routers[0].Name)
		assert.Equal(t, "contracts/Router.sol", projectConfig.Routers[0].SourcePath)
		assert.Equal(t, []string{ownerModuleName, upgradeModuleName}, projectConfig.Routers[0].Modules)
		assert.Equal(t, configs.GetDefaultProjectConfig().Storage, projectConfig.Storage)
	})
}
