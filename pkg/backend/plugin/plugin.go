// Package plugin builds units with `go build -buildmode=plugin` and opens
// the resulting shared objects in the running process.
//
// A plugin path can only be opened once per process and must be built with
// the same toolchain and flags as the host, so output files carry the
// process id and the host's relevant build settings are forwarded.
package plugin

import (
	"bytes"
	"context"
	"fmt"
	"go/build"
	"os"
	"os/exec"
	"path/filepath"
	goplugin "plugin"
	"runtime/debug"
	"strings"
	"sync"

	"artifact/pkg/backend"
	"artifact/pkg/errors"
)

// Name is the registered backend name.
const Name = "plugin"

const debugPlugin = false

func debugPrintf(format string, args ...any) {
	if debugPlugin {
		fmt.Printf("[plugin] "+format, args...)
	}
}

func init() {
	backend.Register(Name, func(opts backend.Options) (backend.Backend, error) {
		return New(opts), nil
	})
}

// Backend is the shared-object backend.
type Backend struct {
	opts     backend.Options
	imports  sync.Map // import path -> bool
	hostOnce sync.Once
	host     *debug.BuildInfo
}

// New returns a plugin backend. The go tool defaults to "go" on PATH.
func New(opts backend.Options) *Backend {
	if opts.GoBinary == "" {
		opts.GoBinary = "go"
	}
	return &Backend{opts: opts}
}

func (b *Backend) Name() string { return Name }

// UnitPackage always returns main; the go tool only builds plugins from
// main packages. The session package still selects the source directory.
func (b *Backend) UnitPackage(string) string { return "main" }

// CanImport reports whether path is in the standard library or, when
// building against the host's modules, in the host's main module or one of
// its dependencies.
func (b *Backend) CanImport(path string) bool {
	if ok, cached := b.imports.Load(path); cached {
		return ok.(bool)
	}
	ok := b.hostProvides(path)
	if !ok {
		pkg, err := build.Default.Import(path, "", build.FindOnly)
		ok = err == nil && pkg.Goroot
	}
	b.imports.Store(path, ok)
	return ok
}

func (b *Backend) hostProvides(path string) bool {
	if !b.opts.ShareHostModules {
		return false
	}
	b.hostOnce.Do(func() {
		b.host, _ = debug.ReadBuildInfo()
	})
	if b.host == nil {
		return false
	}
	within := func(mod string) bool {
		return mod != "" && (path == mod || strings.HasPrefix(path, mod+"/"))
	}
	if within(b.host.Main.Path) {
		return true
	}
	for _, dep := range b.host.Deps {
		if within(dep.Path) {
			return true
		}
	}
	return false
}

// OutputPath is where the shared object for job is written.
func OutputPath(job *backend.Job) string {
	dir := filepath.Base(filepath.Dir(job.SourcePath))
	return filepath.Join(job.OutputRoot, dir, fmt.Sprintf("%s.%d.so", job.Name, os.Getpid()))
}

// Compile runs the go tool on the unit file.
func (b *Backend) Compile(ctx context.Context, job *backend.Job) (*backend.Artifact, error) {
	out := OutputPath(job)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return nil, &errors.CompileError{Unit: job.SourcePath, Msg: "cannot create output directory", Cause: err}
	}

	dir := filepath.Dir(job.SourcePath)
	env := os.Environ()
	if b.opts.ShareHostModules {
		if err := writeGoMod(dir, job.Classpath.BuildInfo); err != nil {
			return nil, &errors.CompileError{Unit: job.SourcePath, Msg: "cannot write go.mod", Cause: err}
		}
		env = append(env, "GOFLAGS=-mod=mod", "GONOSUMDB=*", "GONOSUMCHECK=1", "GOSUMDB=off")
	} else {
		env = append(env, "GO111MODULE=off", "GOPATH="+gopath(job.Classpath.Roots))
	}

	args := []string{"build", "-buildmode=plugin", "-o", out}
	args = append(args, HostBuildFlags(job.Classpath.BuildInfo)...)
	args = append(args, b.opts.BuildFlags...)
	args = append(args, filepath.Base(job.SourcePath))

	debugPrintf("%s %s (in %s)\n", b.opts.GoBinary, strings.Join(args, " "), dir)

	cmd := exec.CommandContext(ctx, b.opts.GoBinary, args...)
	cmd.Dir = dir
	cmd.Env = env
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		return nil, &errors.CompileError{
			Unit:        job.SourcePath,
			Output:      output.String(),
			Diagnostics: backend.ParseDiagnostics(output.String()),
			Msg:         "go build failed",
			Cause:       err,
		}
	}

	return &backend.Artifact{Package: job.Package, Name: job.Name, Path: out}, nil
}

// Load opens the shared object and looks up the wrapper function.
func (b *Backend) Load(ctx context.Context, a *backend.Artifact) (backend.EvalFunc, error) {
	p, err := goplugin.Open(a.Path)
	if err != nil {
		return nil, (&errors.LoadError{
			Package: a.Package,
			Name:    a.Name,
			Fatal:   IsLinkageError(err),
			Msg:     "cannot open plugin " + a.Path,
		}).CausedBy(err)
	}
	a.Handle = p

	sym, err := p.Lookup(a.Name)
	if err != nil {
		return nil, (&errors.LoadError{Package: a.Package, Name: a.Name, Msg: "wrapper function not found"}).CausedBy(err)
	}
	fn, err := backend.AsEvalFunc(sym)
	if err != nil {
		return nil, (&errors.LoadError{Package: a.Package, Name: a.Name, Msg: "unexpected wrapper signature"}).CausedBy(err)
	}
	return fn, nil
}

// IsLinkageError reports whether a plugin.Open failure comes from the
// plugin and the host disagreeing about a shared package or the runtime.
func IsLinkageError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"different version of package",
		"built with a different version",
		"was built with a different",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func gopath(roots []string) string {
	parts := append([]string(nil), roots...)
	if existing := os.Getenv("GOPATH"); existing != "" {
		parts = append(parts, existing)
	} else if home, err := os.UserHomeDir(); err == nil {
		parts = append(parts, filepath.Join(home, "go"))
	}
	return strings.Join(parts, string(os.PathListSeparator))
}
