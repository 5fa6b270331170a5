package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"testing"

	"artifact/pkg/backend"
	aerrors "artifact/pkg/errors"
	"artifact/pkg/generate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/mod/modfile"
)

func TestUnitPackageIsMain(t *testing.T) {
	assert.Equal(t, "main", New(backend.Options{}).UnitPackage("scripts"))
}

func TestCanImport(t *testing.T) {
	b := New(backend.Options{})
	assert.True(t, b.CanImport("fmt"))
	assert.True(t, b.CanImport("html/template"))
	assert.False(t, b.CanImport("github.com/acme/widgets"))

	shared := New(backend.Options{ShareHostModules: true})
	shared.hostOnce.Do(func() {})
	shared.host = &debug.BuildInfo{
		Main: debug.Module{Path: "example.com/host"},
		Deps: []*debug.Module{{Path: "github.com/acme/widgets"}},
	}
	assert.True(t, shared.CanImport("example.com/host/pkg/cache"))
	assert.True(t, shared.CanImport("github.com/acme/widgets/gear"))
	assert.False(t, shared.CanImport("github.com/acme/widgetsx"))
	assert.True(t, shared.CanImport("strings"))
}

func TestOutputPath(t *testing.T) {
	job := &backend.Job{
		Name:       "ArtifactScript3",
		SourcePath: "/tmp/artifact/src/demo/ArtifactScript3.go",
		OutputRoot: "/tmp/artifact/bin",
	}
	got := OutputPath(job)
	assert.Equal(t, "/tmp/artifact/bin/demo", filepath.Dir(got))
	assert.True(t, strings.HasPrefix(filepath.Base(got), "ArtifactScript3."))
	assert.True(t, strings.HasSuffix(got, ".so"))
}

func TestHostBuildFlags(t *testing.T) {
	info := &debug.BuildInfo{Settings: []debug.BuildSetting{
		{Key: "-race", Value: "true"},
		{Key: "-trimpath", Value: "false"},
		{Key: "-tags", Value: "netgo,osusergo"},
		{Key: "-ldflags", Value: "-s -w"},
		{Key: "GOOS", Value: "linux"},
	}}
	assert.Equal(t, []string{"-race", "-tags=netgo,osusergo"}, HostBuildFlags(info))
	assert.Nil(t, HostBuildFlags(nil))
}

func TestGoMod(t *testing.T) {
	info := &debug.BuildInfo{
		GoVersion: "go1.22.3",
		Deps: []*debug.Module{
			{Path: "github.com/dlclark/regexp2", Version: "v1.11.5"},
			{Path: "example.com/local", Version: "v0.0.0", Replace: &debug.Module{Path: "../local"}},
			{Path: "example.com/devel", Version: "(devel)"},
		},
	}
	data, err := GoMod(info)
	require.NoError(t, err)

	f, err := modfile.Parse("go.mod", data, nil)
	require.NoError(t, err)
	assert.Equal(t, UnitModulePath, f.Module.Mod.Path)
	assert.Equal(t, "1.22.3", f.Go.Version)
	require.Len(t, f.Require, 2)
	assert.Equal(t, "github.com/dlclark/regexp2", f.Require[0].Mod.Path)
	require.Len(t, f.Replace, 1)
	assert.Equal(t, "../local", f.Replace[0].New.Path)
}

func TestGoModWithoutBuildInfo(t *testing.T) {
	data, err := GoMod(nil)
	require.NoError(t, err)
	assert.Contains(t, string(data), "module "+UnitModulePath)
}

func TestIsLinkageError(t *testing.T) {
	assert.True(t, IsLinkageError(errors.New(`plugin.Open("x.so"): plugin was built with a different version of package fmt`)))
	assert.False(t, IsLinkageError(errors.New("plugin.Open: realpath failed")))
	assert.False(t, IsLinkageError(nil))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := New(backend.Options{}).Load(context.Background(), &backend.Artifact{
		Package: "main", Name: "F", Path: filepath.Join(t.TempDir(), "missing.so"),
	})
	var le *aerrors.LoadError
	require.ErrorAs(t, err, &le)
	assert.False(t, le.Fatal)
}

// Building plugins needs cgo and a go toolchain; opt in explicitly.
func TestBuildAndLoad(t *testing.T) {
	if os.Getenv("ARTIFACT_PLUGIN_TESTS") != "1" {
		t.Skip("set ARTIFACT_PLUGIN_TESTS=1 to build real plugins")
	}

	root := t.TempDir()
	dir := filepath.Join(root, "src", "demo")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "ArtifactScriptPlugin1.go")
	unit := generate.Generate(generate.Unit{Package: "main", Name: "ArtifactScriptPlugin1", Body: `return get("x").(int) * 2`})
	require.NoError(t, os.WriteFile(path, []byte(unit), 0o644))

	info, _ := debug.ReadBuildInfo()
	job := &backend.Job{
		Package:    "main",
		Name:       "ArtifactScriptPlugin1",
		SourcePath: path,
		SourceRoot: root,
		OutputRoot: filepath.Join(root, "bin"),
		Classpath:  backend.Classpath{Roots: []string{root}, BuildInfo: info},
	}

	b := New(backend.Options{})
	a, err := b.Compile(context.Background(), job)
	require.NoError(t, err)
	f, err := b.Load(context.Background(), a)
	require.NoError(t, err)

	got, err := f(func(string) any { return 21 }, func(string, any) {}, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}
