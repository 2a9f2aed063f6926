/*
Package debug exposes build metadata of the running binary.
*/
package debug

import (
	"runtime/debug"
	"strings"
)

/*
BuildInfo returns version of the main module and the version control
settings recorded by the toolchain as space separated key=value pairs.
Empty string is returned when the binary carries no build info.
*/
func BuildInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var data []string
	if v := info.Main.Version; v != "" && v != "(devel)" {
		data = append(data, "version="+v)
	}
	for _, s := range info.Settings {
		if strings.HasPrefix(s.Key, "vcs.") {
			data = append(data, s.Key+"="+s.Value)
		}
	}
	return strings.Join(data, " ")
}
