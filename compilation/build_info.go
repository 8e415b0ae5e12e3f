package compilation

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/Masterminds/semver"
	"github.com/crytic/routerguard/compilation/types"
	"github.com/crytic/routerguard/logging"
	"github.com/crytic/routerguard/logging/colors"
	"github.com/pkg/errors"
)

// BuildInfoGlob is the file pattern of build-info files inside a build-info directory.
const BuildInfoGlob = "*.json"

// LoadBuildInfoDirectory loads and merges every build-info file in the provided directory. Files are merged in
// lexicographic order, so a source present in several build-info files resolves to the last one.
// Returns an error if the directory holds no build-info file or any of them cannot be parsed.
func LoadBuildInfoDirectory(directory string) (*types.Compilation, error) {
	matches, err := filepath.Glob(filepath.Join(directory, BuildInfoGlob))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(matches) == 0 {
		return nil, errors.Errorf("no build-info files found in %s, was the project compiled?", directory)
	}
	sort.Strings(matches)

	logger := logging.GlobalLogger.NewSubLogger("module", logging.COMPILATION_SERVICE)
	compilation := types.NewCompilation()
	for _, match := range matches {
		buildInfo, err := ReadBuildInfoFile(match)
		if err != nil {
			return nil, err
		}
		if err = MergeBuildInfo(compilation, buildInfo); err != nil {
			return nil, errors.Wrapf(err, "could not merge build-info file %s", match)
		}
		logger.Debug("Loaded build-info ", colors.Bold, filepath.Base(match), colors.Reset, " (solc ", buildInfo.SolcVersion, ")")
	}

	logger.Info("Loaded ", colors.Bold, len(compilation.SourceUnits), colors.Reset, " source units from ",
		len(matches), " build-info file(s)")
	return compilation, nil
}

// ReadBuildInfoFile reads a single build-info file from disk.
func ReadBuildInfoFile(path string) (*types.BuildInfo, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var buildInfo types.BuildInfo
	if err = json.Unmarshal(b, &buildInfo); err != nil {
		return nil, errors.Wrapf(err, "could not parse build-info file %s", path)
	}
	return &buildInfo, nil
}

// MergeBuildInfo decodes the ASTs and contracts of a build-info structure and adds them to the compilation.
func MergeBuildInfo(compilation *types.Compilation, buildInfo *types.BuildInfo) error {
	// Track the oldest compiler so selector support is decided conservatively
	if buildInfo.SolcVersion != "" {
		version, err := semver.NewVersion(buildInfo.SolcVersion)
		if err != nil {
			return errors.Wrapf(err, "could not parse compiler version %q", buildInfo.SolcVersion)
		}
		if compilation.CompilerVersion == nil || version.LessThan(compilation.CompilerVersion) {
			compilation.CompilerVersion = version
		}
	}

	for sourceName, source := range buildInfo.Output.Sources {
		if len(source.AST) == 0 {
			return errors.Errorf("could not parse AST from source %s, AST field could not be found", sourceName)
		}
		sourceUnit, err := types.ParseSourceUnit(source.AST)
		if err != nil {
			return errors.Wrapf(err, "could not parse AST of source %s", sourceName)
		}
		if sourceUnit.AbsolutePath == "" {
			sourceUnit.AbsolutePath = sourceName
		}
		compilation.AddSourceUnit(sourceUnit)
	}

	for sourceName, contracts := range buildInfo.Output.Contracts {
		for contractName, contract := range contracts {
			compiledContract := types.CompiledContract{
				SourcePath: sourceName,
				Name:       contractName,
			}
			if len(contract.Abi) > 0 {
				contractAbi, err := types.ParseABIFromInterface(contract.Abi)
				if err != nil {
					return errors.Wrapf(err, "could not parse ABI of %s:%s", sourceName, contractName)
				}
				compiledContract.Abi = *contractAbi
			}

			// Unlinked bytecode keeps library placeholders, which are not hex. The bytecode is only used for
			// metadata comparison, so it is left empty in that case.
			if runtimeBytecode, err := types.DecodeBytecode(contract.Evm.DeployedBytecode.Object); err == nil {
				compiledContract.RuntimeBytecode = runtimeBytecode
			}
			compilation.Contracts[compiledContract.FullyQualifiedName()] = compiledContract
		}
	}
	return nil
}

// CheckCompilerVersion verifies the compilation was produced by a compiler satisfying the provided semver
// constraint. An empty constraint or an unknown compiler version always passes.
func CheckCompilerVersion(compilation *types.Compilation, constraint string) error {
	if constraint == "" || compilation.CompilerVersion == nil {
		return nil
	}
	constraints, err := semver.NewConstraint(constraint)
	if err != nil {
		return errors.Wrapf(err, "invalid compiler version constraint %q", constraint)
	}
	if !constraints.Check(compilation.CompilerVersion) {
		return errors.Errorf("compiler version %s does not satisfy %q", compilation.CompilerVersion, constraint)
	}
	return nil
}
