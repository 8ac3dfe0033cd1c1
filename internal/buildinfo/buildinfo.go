// Package buildinfo reports the version of the running binary.
package buildinfo

import (
	"runtime/debug"
	"strings"
)

const name = "gitsvn"

// Version returns the module version or "dev" when unset.
func Version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return "dev"
	}
	version := info.Main.Version
	if version == "" || version == "(devel)" {
		return "dev"
	}
	return version
}

// setting returns a build setting recorded at compile time, e.g. -tags or
// vcs.revision.
func setting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

// String describes the binary as "gitsvn <version> (<details>)", where the
// details list the VCS revision and build tags when known.
func String() string {
	var details []string
	if rev := setting("vcs.revision"); rev != "" {
		if len(rev) > 12 {
			rev = rev[:12]
		}
		if setting("vcs.modified") == "true" {
			rev += "+dirty"
		}
		details = append(details, "rev "+rev)
	}
	if tags := setting("-tags"); tags != "" {
		details = append(details, "tags: "+tags)
	}
	s := name + " " + Version()
	if len(details) > 0 {
		s += " (" + strings.Join(details, ", ") + ")"
	}
	return s
}
