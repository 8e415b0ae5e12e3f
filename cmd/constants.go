package cmd

import "github.com/crytic/routerguard/configs"

// DefaultProjectConfigFilename describes the default config filename for a given project folder.
const DefaultProjectConfigFilename = configs.DefaultConfigFile

// LogFileName is the name of the structured log file written to the configured log directory.
const LogFileName = "routerguard.log"
