package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/flowbaker/autoflow/internal/version.Version=..."
var (
	Version   = "dev"
	GitCommit = ""
	BuildDate = ""
)

type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func Get() Info {
	return Info{
		Version:   GetVersion(),
		GitCommit: commit(),
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// GetVersion prefers the linker provided version, then the module version
// recorded by `go install`.
func GetVersion() string {
	if Version != "" && Version != "dev" {
		return Version
	}

	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}

	return "dev"
}

func GetShortVersion() string {
	if sha := commit(); len(sha) >= 7 {
		return fmt.Sprintf("%s-%s", GetVersion(), sha[:7])
	}

	return GetVersion()
}

// commit falls back to the vcs.revision build setting for local builds.
func commit() string {
	if GitCommit != "" {
		return GitCommit
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}

	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			return setting.Value
		}
	}

	return ""
}
