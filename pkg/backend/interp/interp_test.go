package interp

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"artifact/pkg/backend"
	"artifact/pkg/errors"
	"artifact/pkg/generate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeUnit(t *testing.T, pkg, name, body string) *backend.Job {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "src", pkg)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, name+".go")
	unit := generate.Generate(generate.Unit{Package: pkg, Name: name, Body: body})
	require.NoError(t, os.WriteFile(path, []byte(unit), 0o644))

	return &backend.Job{
		Package:    pkg,
		Name:       name,
		SourcePath: path,
		SourceRoot: root,
		Classpath:  backend.Classpath{Roots: []string{root}},
	}
}

func run(t *testing.T, job *backend.Job, get func(string) any) (any, error) {
	t.Helper()
	b := New(backend.Options{})
	a, err := b.Compile(context.Background(), job)
	require.NoError(t, err)
	f, err := b.Load(context.Background(), a)
	require.NoError(t, err)
	return f(get, func(string, any) {}, func(string) (any, error) { return nil, nil })
}

func TestCompileAndRun(t *testing.T) {
	job := writeUnit(t, "artifact", "ArtifactScript1", `return get("x").(int) + 1`)
	got, err := run(t, job, func(string) any { return 5 })
	require.NoError(t, err)
	assert.Equal(t, 6, got)
}

func TestMainPackageUnqualifiedLookup(t *testing.T) {
	job := writeUnit(t, "main", "ArtifactScript2", `return "main"`)
	got, err := run(t, job, nil)
	require.NoError(t, err)
	assert.Equal(t, "main", got)
}

func TestPanicBecomesError(t *testing.T) {
	job := writeUnit(t, "artifact", "ArtifactScript3", `panic("kaboom")`)
	_, err := run(t, job, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestPanicTraceKeptOffStderr(t *testing.T) {
	var stderr bytes.Buffer
	b := New(backend.Options{Stderr: &stderr})
	job := writeUnit(t, "artifact", "ArtifactScript5", `panic("kaboom")`)

	a, err := b.Compile(context.Background(), job)
	require.NoError(t, err)
	f, err := b.Load(context.Background(), a)
	require.NoError(t, err)
	_, err = f(nil, func(string, any) {}, func(string) (any, error) { return nil, nil })
	require.Error(t, err)
	assert.NotContains(t, stderr.String(), "panic:")
}

func TestTraceFilter(t *testing.T) {
	var out bytes.Buffer
	f := traceFilter{w: &out}

	for _, line := range []string{
		"/tmp/src/artifact/ArtifactScript5.go:14:3: panic: artifact.ArtifactScript5.func(...)\n",
		"-: panic: main.ArtifactScript9(...)\n",
	} {
		n, err := f.Write([]byte(line))
		require.NoError(t, err)
		assert.Equal(t, len(line), n)
	}
	assert.Empty(t, out.String())

	for _, line := range []string{
		"panic: kaboom\n",
		"a.go:1:1: panic: bad\n",
		"progress 50%\n",
	} {
		_, err := f.Write([]byte(line))
		require.NoError(t, err)
	}
	assert.Equal(t, "panic: kaboom\na.go:1:1: panic: bad\nprogress 50%\n", out.String())
}

func TestCanImport(t *testing.T) {
	b := New(backend.Options{})
	assert.True(t, b.CanImport("fmt"))
	assert.True(t, b.CanImport("text/template"))
	assert.True(t, b.CanImport("net/http"))
	assert.False(t, b.CanImport("github.com/acme/widgets"))
	assert.False(t, b.CanImport("artifact/pkg/backend"))

	type widget struct{}
	b = New(backend.Options{Symbols: map[string]map[string]reflect.Value{
		"github.com/acme/widgets/widgets": {"Widget": reflect.ValueOf((*widget)(nil))},
	}})
	assert.True(t, b.CanImport("github.com/acme/widgets"))
	assert.False(t, b.CanImport("github.com/acme"))
}

func TestCompileErrorIsStructured(t *testing.T) {
	job := writeUnit(t, "artifact", "ArtifactScript4", `return undefinedThing`)
	_, err := New(backend.Options{}).Compile(context.Background(), job)
	require.Error(t, err)

	var ce *errors.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, job.SourcePath, ce.Unit)
	assert.NotEmpty(t, ce.Output)
}

func TestLoadRejectsForeignArtifact(t *testing.T) {
	_, err := New(backend.Options{}).Load(context.Background(), &backend.Artifact{Package: "p", Name: "F"})
	var le *errors.LoadError
	require.ErrorAs(t, err, &le)
	assert.False(t, le.Fatal)
}

func TestRegistered(t *testing.T) {
	b, err := backend.New(Name, backend.Options{})
	require.NoError(t, err)
	assert.Equal(t, Name, b.Name())
	assert.Equal(t, "scripts", b.UnitPackage("scripts"))
}
