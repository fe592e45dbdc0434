package buildinfo

import (
	"runtime/debug"
)

// version is set at link time with -ldflags "-X ...buildinfo.version=v1.2.3"
var version string

// Version returns the build version or revision for the running binary.
func Version() string {
	if version != "" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && setting.Value != "" {
				return setting.Value
			}
		}
	}
	return "dev"
}
