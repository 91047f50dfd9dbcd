// Package version reports build metadata for the Oempro email provider.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

const (
	product = "email-provider-oempro"
	unset   = "unknown"
)

// Set through -ldflags "-X go.miloapis.com/email-provider-oempro/pkg/version.Version=...".
var (
	Version   = "dev"
	GitCommit = unset
	BuildDate = unset
)

// Info is the build metadata printed by the version command.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Compiler  string `json:"compiler"`
	Platform  string `json:"platform"`
}

// Get returns the build metadata. Commit and date fall back to the VCS
// stamp embedded by the go tool when no ldflags were given.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Compiler:  runtime.Compiler,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = withVCS(info, bi.Settings)
	}
	return info
}

func withVCS(info Info, settings []debug.BuildSetting) Info {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == unset {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildDate == unset {
				info.BuildDate = s.Value
			}
		}
	}
	return info
}

// UserAgent identifies the manager to the Oempro API.
func UserAgent() string {
	return product + "/" + Version
}

func (i Info) String() string {
	return fmt.Sprintf("Version: %s\nGit Commit: %s\nBuild Date: %s\nGo Version: %s\nCompiler: %s\nPlatform: %s",
		i.Version, i.GitCommit, i.BuildDate, i.GoVersion, i.Compiler, i.Platform)
}
