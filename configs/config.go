package configs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/crytic/routerguard/analysis/dependencies"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// ProjectConfig describes the configuration of a routerguard project.
type ProjectConfig struct {
	// BuildInfoDirectory is the directory holding the Hardhat build-info files of the project.
	BuildInfoDirectory string `json:"buildInfoDirectory" yaml:"buildInfoDirectory"`

	// MinimumCompilerVersion is a semver constraint each build-info compiler version must satisfy. An empty string
	// disables the check.
	MinimumCompilerVersion string `json:"minimumCompilerVersion" yaml:"minimumCompilerVersion"`

	// DeploymentFile is the path to the deployment record of the project.
	DeploymentFile string `json:"deploymentFile" yaml:"deploymentFile"`

	// Routers describes every router contract of the project.
	Routers []RouterConfig `json:"routers" yaml:"routers"`

	// Storage describes the storage namespace check.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Logging describes the logging configuration.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// RouterConfig describes a single router contract and the modules it dispatches to.
type RouterConfig struct {
	// Name is the contract name of the router.
	Name string `json:"name" yaml:"name"`

	// SourcePath is the source path of the router contract. Together with Name it forms the fully-qualified name the
	// router is looked up by in the build.
	SourcePath string `json:"sourcePath" yaml:"sourcePath"`

	// Modules are the fully-qualified names of the modules the router dispatches to, in dispatch order.
	Modules []string `json:"modules" yaml:"modules"`

	// OutputPath is where `router generate` writes the router source. Empty means SourcePath.
	OutputPath string `json:"outputPath,omitempty" yaml:"outputPath,omitempty"`
}

// StorageConfig describes the storage namespace check.
type StorageConfig struct {
	// Namespaces are the fully-qualified names of the storage namespace contracts. An empty list means every contract
	// declaring a struct in the build.
	Namespaces []string `json:"namespaces" yaml:"namespaces"`

	// LayoutStore is the path of the database storage layout snapshots are kept in.
	LayoutStore string `json:"layoutStore" yaml:"layoutStore"`

	// SnapshotKey is the key layout snapshots are saved and compared under, typically a network name.
	SnapshotKey string `json:"snapshotKey" yaml:"snapshotKey"`

	// AllowModifications accepts in-place storage member changes.
	AllowModifications bool `json:"allowModifications" yaml:"allowModifications"`

	// AllowRemovals accepts removed storage members and structs.
	AllowRemovals bool `json:"allowRemovals" yaml:"allowRemovals"`
}

// LoggingConfig describes the configuration options used for logging
type LoggingConfig struct {
	// Level describes whether logs of certain severity levels (eg info, warning, etc.) will be emitted or discarded.
	Level zerolog.Level `json:"level" yaml:"level"`

	// LogDirectory describes the directory where structured log _files_ will be outputted. If the string is empty, then
	// no log files are kept
	LogDirectory string `json:"logDirectory" yaml:"logDirectory"`

	// NoColor disables colored console output
	NoColor bool `json:"noColor" yaml:"noColor"`
}

// FullyQualifiedName returns the fully-qualified name of the router contract.
func (r RouterConfig) FullyQualifiedName() string {
	return dependencies.FullyQualifiedName(r.SourcePath, r.Name)
}

// Output returns the path the generated router source is written to.
func (r RouterConfig) Output() string {
	if r.OutputPath != "" {
		return r.OutputPath
	}
	return r.SourcePath
}

// Router returns the router config with the provided name.
func (p *ProjectConfig) Router(name string) (RouterConfig, bool) {
	for _, router := range p.Routers {
		if router.Name == name {
			return router, true
		}
	}
	return RouterConfig{}, false
}

// isYAMLFile indicates whether path should be serialized as YAML rather than JSON.
func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// ReadProjectConfigFromFile reads a ProjectConfig from a provided file path. Files with a .yaml or .yml extension
// are parsed as YAML, every other file as JSON. Fields missing from the file keep their default values.
// Returns the ProjectConfig if it succeeds, or an error if one occurs.
func ReadProjectConfigFromFile(path string) (*ProjectConfig, error) {
	// Read our project configuration file data
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// Parse the project configuration over the defaults
	projectConfig := GetDefaultProjectConfig()
	if isYAMLFile(path) {
		err = yaml.Unmarshal(b, projectConfig)
	} else {
		err = json.Unmarshal(b, projectConfig)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse config file %s", path)
	}

	return projectConfig, nil
}

// WriteToFile writes the ProjectConfig to a provided file path, as YAML or JSON depending on the file extension.
// Returns an error if one occurs.
func (p *ProjectConfig) WriteToFile(path string) error {
	// Serialize the configuration
	var (
		b   []byte
		err error
	)
	if isYAMLFile(path) {
		b, err = yaml.Marshal(p)
	} else {
		b, err = json.MarshalIndent(p, "", "\t")
	}
	if err != nil {
		return errors.WithStack(err)
	}

	// Save it to the provided output path and return the result
	err = os.WriteFile(path, b, 0644)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// Validate validates that the ProjectConfig meets certain requirements.
// Returns an error if one occurs.
func (p *ProjectConfig) Validate() error {
	// Verify the build-info directory is set
	if p.BuildInfoDirectory == "" {
		return errors.Errorf("build-info directory cannot be empty")
	}

	// Verify the compiler constraint parses
	if p.MinimumCompilerVersion != "" {
		if _, err := semver.NewConstraint(p.MinimumCompilerVersion); err != nil {
			return errors.Errorf("invalid minimum compiler version %q", p.MinimumCompilerVersion)
		}
	}

	// Verify every router is named, unique, and refers to well-formed modules
	seen := make(map[string]bool)
	for i, router := range p.Routers {
		if router.Name == "" {
			return errors.Errorf("router at index %d must have a name", i)
		}
		if seen[router.Name] {
			return errors.Errorf("router %s is configured more than once", router.Name)
		}
		seen[router.Name] = true
		if router.SourcePath == "" {
			return errors.Errorf("router %s must have a source path", router.Name)
		}
		if len(router.Modules) == 0 {
			return errors.Errorf("router %s must have one or more modules", router.Name)
		}
		for _, module := range router.Modules {
			if !dependencies.IsFullyQualifiedName(module) {
				return errors.Errorf("router %s has a malformed module name %q, expected <sourcePath>:<contractName>", router.Name, module)
			}
		}
	}

	// Verify storage namespaces are well-formed
	for _, namespace := range p.Storage.Namespaces {
		if !dependencies.IsFullyQualifiedName(namespace) {
			return errors.Errorf("malformed storage namespace name %q, expected <sourcePath>:<contractName>", namespace)
		}
	}
	if p.Storage.LayoutStore == "" {
		return errors.Errorf("layout store path cannot be empty")
	}
	return nil
}
