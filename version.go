package main

import (
	"runtime/debug"
	"strings"
)

// Set with -ldflags "-X main.buildVersion=... -X main.buildCommit=...".
var (
	buildVersion = "dev"
	buildCommit  = "unknown"
)

type buildInfo struct {
	version string
	commit  string
	dirty   bool
}

func versionString() string {
	return currentBuild().String()
}

// currentBuild prefers link-time values and fills the gaps from the
// metadata `go build` / `go install` stamp into the binary.
func currentBuild() buildInfo {
	b := buildInfo{version: buildVersion, commit: buildCommit}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	return b.merge(info)
}

func (b buildInfo) merge(info *debug.BuildInfo) buildInfo {
	if isDevVersion(b.version) && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if abbrevCommit(b.commit) == "" {
				b.commit = s.Value
			}
		case "vcs.modified":
			b.dirty = s.Value == "true"
		}
	}
	return b
}

// String renders a release as its tag and anything else as dev-<sha>.
func (b buildInfo) String() string {
	if !isDevVersion(b.version) {
		return strings.TrimSpace(b.version)
	}
	v := "dev"
	if c := abbrevCommit(b.commit); c != "" {
		v += "-" + c
	}
	if b.dirty {
		v += "-dirty"
	}
	return v
}

func isDevVersion(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == "dev"
}

func abbrevCommit(commit string) string {
	c := strings.TrimSpace(commit)
	if c == "unknown" {
		return ""
	}
	return c[:min(len(c), 7)]
}
