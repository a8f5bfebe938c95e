// Package misc provides program identity helpers shared by logging,
// reporting and command line layers.
package misc

import (
	"runtime/debug"
)

const appName = "slx"

// GetAppName returns short program name used for log, report and temporary
// file naming.
func GetAppName() string {
	return appName
}

// GetVersion returns module version recorded in build information or
// "unknown" when program was built outside of module context.
func GetVersion() string {
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" {
		return bi.Main.Version
	}
	return "unknown"
}

// GetGitHash returns VCS revision recorded in build information.
func GetGitHash() string {
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}
