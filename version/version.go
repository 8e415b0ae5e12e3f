// Package version reports the routerguard version, along with the VCS revision the binary was built from.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Version is the semantic version of routerguard. It can be overridden with -ldflags at build time.
var Version = "0.3.0"

// Info describes a routerguard build.
type Info struct {
	Version   string
	Revision  string
	Dirty     bool
	GoVersion string
}

// GetInfo returns the version of this build. The revision is read from the VCS settings embedded by the Go
// toolchain and is empty when the binary was built outside of a repository.
func GetInfo() Info {
	info := Info{Version: Version, GoVersion: runtime.Version()}
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		info = withSettings(info, buildInfo.Settings)
	}
	return info
}

// withSettings fills the revision fields of info from build settings.
func withSettings(info Info, settings []debug.BuildSetting) Info {
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			info.Revision = setting.Value
		case "vcs.modified":
			info.Dirty = setting.Value == "true"
		}
	}
	return info
}

// revision returns the abbreviated revision, suffixed with -dirty for modified trees.
func (i Info) revision() string {
	rev := i.Revision
	if len(rev) > 7 {
		rev = rev[:7]
	}
	if i.Dirty {
		rev += "-dirty"
	}
	return rev
}

// String returns the multi-line output of the version command.
func (i Info) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "routerguard version %s\n", i.Version)
	if i.Revision != "" {
		fmt.Fprintf(&sb, "  Commit:     %s\n", i.revision())
	}
	fmt.Fprintf(&sb, "  Go version: %s\n", i.GoVersion)
	return sb.String()
}

// Short returns the single-line version used for --version.
func (i Info) Short() string {
	if i.Revision == "" {
		return i.Version
	}
	return i.Version + "+" + i.revision()
}
