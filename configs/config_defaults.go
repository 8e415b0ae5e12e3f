package configs

import "github.com/rs/zerolog"

// DefaultConfigFile is the file name `init` writes and every command reads when no --config flag is given.
const DefaultConfigFile = "routerguard.json"

// DefaultSnapshotKey is the layout key snapshots are saved under when none is configured.
const DefaultSnapshotKey = "default"

// GetDefaultProjectConfig obtains a default configuration for a project.
func GetDefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		BuildInfoDirectory:     "artifacts/build-info",
		MinimumCompilerVersion: ">=0.8.0",
		DeploymentFile:         "deployments/deployment.json",
		Routers:                []RouterConfig{},
		Storage: StorageConfig{
			Namespaces:         []string{},
			LayoutStore:        ".routerguard/layouts.db",
			SnapshotKey:        DefaultSnapshotKey,
			AllowModifications: false,
			AllowRemovals:      false,
		},
		Logging: LoggingConfig{
			Level:        zerolog.InfoLevel,
			LogDirectory: "",
			NoColor:      false,
		},
	}
}
