package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestInfo verifies revision settings are reflected in the version strings.
func TestInfo(t *testing.T) {
	info := Info{Version: "1.2.3", GoVersion: "go1.23.3"}
	assert.Equal(t, "1.2.3", info.Short())
	assert.Equal(t, "routerguard version 1.2.3\n  Go version: go1.23.3\n", info.String())

	info = withSettings(info, []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.modified", Value: "true"},
		{Key: "GOOS", Value: "linux"},
	})
	assert.Equal(t, "1.2.3+0123456-dirty", info.Short())
	assert.Contains(t, info.String(), "  Commit:     0123456-dirty\n")
}
