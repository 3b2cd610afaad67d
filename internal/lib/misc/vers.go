package misc

import (
	"fmt"
	"runtime/debug"
	"slices"
)

// Version is replaced at build time during release builds.
// If not defined, just the git rev is returned.
var Version string

func GetVersionInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "The version information could not be determined"
	}
	var vcsRev = "(unknown)"
	if fnd := slices.IndexFunc(info.Settings, func(v debug.BuildSetting) bool { return v.Key == "vcs.revision" }); fnd != -1 {
		vcsRev = info.Settings[fnd].Value
		if len(vcsRev) > 7 {
			vcsRev = vcsRev[0:7]
		}
		if slices.ContainsFunc(info.Settings, func(v debug.BuildSetting) bool { return v.Key == "vcs.modified" && v.Value == "true" }) {
			vcsRev += "-dirty"
		}
	}
	if Version != "" {
		return fmt.Sprintf("%s [%s]", Version, vcsRev)
	}
	return vcsRev
}
