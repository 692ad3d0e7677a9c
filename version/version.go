// Package version reports the tokenkeeper build and the User-Agent derived from it.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Set at build time with -ldflags "-X github.com/kbukum/tokenkeeper/version.Version=...".
var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

// Product is the name sent in the User-Agent header.
const Product = "tokenkeeper"

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
	Dirty     bool   `json:"dirty,omitempty"`
}

// Get returns the build information, filling gaps from the embedded VCS stamp.
func Get() Info {
	info := Info{Version: Version, GitCommit: GitCommit, BuildTime: BuildTime}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
	if len(info.GitCommit) > 7 {
		info.GitCommit = info.GitCommit[:7]
	}
	return info
}

// String renders "1.2.0 (abc1234, built 2026-01-01T00:00:00Z)".
func (i Info) String() string {
	var extra []string
	if i.GitCommit != "" {
		commit := i.GitCommit
		if i.Dirty {
			commit += "-dirty"
		}
		extra = append(extra, commit)
	}
	if i.BuildTime != "" {
		extra = append(extra, "built "+i.BuildTime)
	}
	if len(extra) == 0 {
		return i.Version
	}
	return fmt.Sprintf("%s (%s)", i.Version, strings.Join(extra, ", "))
}

// UserAgent returns "tokenkeeper/{version}".
func UserAgent() string {
	return Product + "/" + strings.TrimPrefix(Version, "v")
}
