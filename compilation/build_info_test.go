package compilation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/crytic/routerguard/compilation/types"
	"github.com/crytic/routerguard/utils/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ownerSource(functions ...testutils.ASTNode) testutils.ASTNode {
	return testutils.SourceUnit(1, "contracts/Owner.sol", testutils.Contract(10, "Owner", nil, functions...))
}

func moduleSource() testutils.ASTNode {
	return testutils.SourceUnit(2, "contracts/Module.sol",
		testutils.Import("contracts/Owner.sol", 1),
		testutils.Contract(20, "Module", []testutils.ASTNode{testutils.Base("Owner", 10)},
			testutils.Function(21, "upgradeTo", "3659cfe6"),
		),
	)
}

// TestLoadBuildInfoDirectory verifies every build-info file of a directory is merged into one compilation.
func TestLoadBuildInfoDirectory(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteBuildInfo(t, dir, "a", "0.8.17", ownerSource(testutils.Function(11, "owner", "8da5cb5b")))
	testutils.WriteBuildInfo(t, dir, "b", "0.8.19", moduleSource())

	compilation, err := LoadBuildInfoDirectory(dir)
	require.NoError(t, err)
	require.Len(t, compilation.SourceUnits, 2)
	assert.Equal(t, "contracts/Module.sol", compilation.SourceUnits[0].AbsolutePath)
	assert.Equal(t, "contracts/Owner.sol", compilation.SourceUnits[1].AbsolutePath)
	assert.Contains(t, compilation.Contracts, "contracts/Owner.sol:Owner")
	assert.Contains(t, compilation.Contracts, "contracts/Module.sol:Module")

	// The oldest compiler decides
	assert.Equal(t, "0.8.17", compilation.CompilerVersion.String())
	assert.True(t, compilation.SupportsASTSelectors())
}

// TestLoadBuildInfoDirectoryReplacesSources verifies a source present in several build-info files resolves to the
// last file in lexicographic order.
func TestLoadBuildInfoDirectoryReplacesSources(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteBuildInfo(t, dir, "1-old", "0.8.17", ownerSource())
	testutils.WriteBuildInfo(t, dir, "2-new", "0.8.17", ownerSource(testutils.Function(11, "owner", "8da5cb5b")))

	compilation, err := LoadBuildInfoDirectory(dir)
	require.NoError(t, err)
	require.Len(t, compilation.SourceUnits, 1)
	contract := compilation.SourceUnits[0].Nodes[0].(*types.ContractDefinition)
	assert.Len(t, contract.Nodes, 1)
}

// TestLoadBuildInfoDirectoryErrors verifies missing and malformed build-info files are reported.
func TestLoadBuildInfoDirectoryErrors(t *testing.T) {
	_, err := LoadBuildInfoDirectory(t.TempDir())
	assert.ErrorContains(t, err, "no build-info files")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0644))
	_, err = LoadBuildInfoDirectory(dir)
	assert.ErrorContains(t, err, "broken.json")

	dir = t.TempDir()
	testutils.WriteBuildInfo(t, dir, "bad-version", "not-a-version", ownerSource())
	_, err = LoadBuildInfoDirectory(dir)
	assert.Error(t, err)
}

// TestCheckCompilerVersion verifies the compiler version gate.
func TestCheckCompilerVersion(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteBuildInfo(t, dir, "a", "0.7.6", ownerSource())
	compilation, err := LoadBuildInfoDirectory(dir)
	require.NoError(t, err)

	assert.NoError(t, CheckCompilerVersion(compilation, ""))
	assert.NoError(t, CheckCompilerVersion(compilation, ">=0.6.0"))
	assert.ErrorContains(t, CheckCompilerVersion(compilation, ">=0.8.0"), "0.7.6")
	assert.Error(t, CheckCompilerVersion(compilation, "not a constraint"))

	// Unknown compiler versions always pass
	assert.NoError(t, CheckCompilerVersion(types.NewCompilation(), ">=0.8.0"))
}
