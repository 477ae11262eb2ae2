// Package version carries build metadata. The variables are set through
// -ldflags at release time.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	CLIName    = "intentfi"
	CLIVersion = "0.3.0"
	Commit     = "unknown"
	BuildDate  = "unknown"
)

// Long falls back to the VCS stamp in the build info when ldflags left the
// commit or date unset.
func Long() string {
	commit, built := Commit, BuildDate
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch {
			case s.Key == "vcs.revision" && commit == "unknown":
				commit = s.Value
			case s.Key == "vcs.time" && built == "unknown":
				built = s.Value
			}
		}
	}
	return fmt.Sprintf("%s (commit: %s, built: %s, %s)", CLIVersion, commit, built, runtime.Version())
}

// UserAgent is sent on outbound HTTP calls to integration services.
func UserAgent() string {
	return fmt.Sprintf("%s/%s", CLIName, CLIVersion)
}
