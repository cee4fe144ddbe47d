// Package buildinfo reports which tessera build is running.
//
// Release builds set the variables with ldflags:
//
//	go build -ldflags "-X github.com/matzehuels/tessera/pkg/buildinfo.Version=v1.0.0 \
//	    -X github.com/matzehuels/tessera/pkg/buildinfo.Commit=$(git rev-parse HEAD) \
//	    -X github.com/matzehuels/tessera/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Builds from "go install" leave them unset; [Read] then falls back to the
// module version and VCS stamp embedded by the toolchain.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info describes a build.
type Info struct {
	Version   string
	Commit    string
	Date      string
	GoVersion string
	Platform  string
}

// Read returns the build information, filling values missing from ldflags
// from the binary's embedded build info.
func Read() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = fill(info, bi)
	}
	return info
}

func fill(info Info, bi *debug.BuildInfo) Info {
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "none" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "unknown" {
				info.Date = s.Value
			}
		}
	}
	return info
}

// String returns the build information, one field per line.
func String() string {
	i := Read()
	return fmt.Sprintf("version: %s\ncommit: %s\nbuilt: %s\ngo: %s %s", i.Version, i.Commit, i.Date, i.GoVersion, i.Platform)
}

// Template returns the cobra version template.
func Template() string {
	i := Read()
	return fmt.Sprintf("{{.Name}} %s (%s, %s)\n%s %s\n", i.Version, short(i.Commit), i.Date, i.GoVersion, i.Platform)
}

func short(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}
