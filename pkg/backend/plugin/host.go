package plugin

import (
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"golang.org/x/mod/modfile"
)

// UnitModulePath is the module path of generated go.mod files.
const UnitModulePath = "artifact.local/units"

// forwarded build settings; a plugin built without them fails to link
var forwardedSettings = []string{"-race", "-msan", "-asan", "-trimpath", "-tags", "-gcflags", "-asmflags"}

// HostBuildFlags returns the go build flags the host binary was built with
// that a plugin must repeat.
func HostBuildFlags(info *debug.BuildInfo) []string {
	if info == nil {
		return nil
	}
	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}

	var flags []string
	for _, key := range forwardedSettings {
		v, ok := settings[key]
		if !ok || v == "" || v == "false" {
			continue
		}
		if v == "true" {
			flags = append(flags, key)
			continue
		}
		flags = append(flags, key+"="+v)
	}
	return flags
}

// GoMod renders a go.mod that requires every module the host was built
// with, honouring replacements, so units see the same package versions.
func GoMod(info *debug.BuildInfo) ([]byte, error) {
	f := &modfile.File{}
	if err := f.AddModuleStmt(UnitModulePath); err != nil {
		return nil, err
	}
	if info != nil {
		if v := goLanguageVersion(strings.TrimPrefix(info.GoVersion, "go")); v != "" {
			if err := f.AddGoStmt(v); err != nil {
				return nil, err
			}
		}
		for _, dep := range info.Deps {
			if dep.Path == "" || dep.Version == "" || dep.Version == "(devel)" {
				continue
			}
			if err := f.AddRequire(dep.Path, dep.Version); err != nil {
				return nil, err
			}
			if r := dep.Replace; r != nil {
				if err := f.AddReplace(dep.Path, dep.Version, r.Path, replaceVersion(r)); err != nil {
					return nil, err
				}
			}
		}
	}
	f.Cleanup()
	return f.Format()
}

func writeGoMod(dir string, info *debug.BuildInfo) error {
	data, err := GoMod(info)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "go.mod"), data, 0o644)
}

func replaceVersion(r *debug.Module) string {
	if modfile.IsDirectoryPath(r.Path) {
		return ""
	}
	return r.Version
}

// goLanguageVersion trims toolchain suffixes such as "1.22.3-X:boringcrypto"
// down to something the go directive accepts.
func goLanguageVersion(v string) string {
	if i := strings.IndexAny(v, "-+ "); i >= 0 {
		v = v[:i]
	}
	return v
}
