// Package interp compiles units with the embedded yaegi Go interpreter.
// Every unit gets a fresh interpreter, so units never see each other's
// declarations and a failed compile leaves nothing behind.
package interp

import (
	"context"
	"fmt"
	"go/scanner"
	"os"
	"reflect"
	"strings"

	"artifact/pkg/backend"
	"artifact/pkg/errors"

	yaegi "github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Name is the registered backend name.
const Name = "interp"

func init() {
	backend.Register(Name, func(opts backend.Options) (backend.Backend, error) {
		return New(opts), nil
	})
}

// Backend is the interpreter backend.
type Backend struct {
	opts     backend.Options
	packages map[string]bool // import paths with exported symbols
}

// New returns an interpreter backend.
func New(opts backend.Options) *Backend {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	b := &Backend{opts: opts, packages: make(map[string]bool)}
	for _, exports := range []map[string]map[string]reflect.Value{stdlib.Symbols, opts.Symbols} {
		for key := range exports {
			// keys are "importpath/pkgname"
			if i := strings.LastIndexByte(key, '/'); i > 0 {
				b.packages[key[:i]] = true
			}
		}
	}
	return b
}

func (b *Backend) Name() string { return Name }

// UnitPackage keeps the session's package name.
func (b *Backend) UnitPackage(session string) string { return session }

// CanImport reports whether path is among the standard library or the
// host packages exported through Options.Symbols.
func (b *Backend) CanImport(path string) bool { return b.packages[path] }

func (b *Backend) newInterpreter(job *backend.Job) (*yaegi.Interpreter, error) {
	opts := yaegi.Options{
		Stdout:       b.opts.Stdout,
		Stderr:       traceFilter{w: b.opts.Stderr},
		Unrestricted: true,
	}
	// the interpreter resolves non-stdlib source imports from a single
	// GOPATH-style root
	switch {
	case job.SourceRoot != "":
		opts.GoPath = job.SourceRoot
	case len(job.Classpath.Roots) > 0:
		opts.GoPath = job.Classpath.Roots[0]
	}

	i := yaegi.New(opts)
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, err
	}
	if len(b.opts.Symbols) > 0 {
		if err := i.Use(b.opts.Symbols); err != nil {
			return nil, err
		}
	}
	return i, nil
}

// Compile evaluates the unit file in a new interpreter.
func (b *Backend) Compile(ctx context.Context, job *backend.Job) (a *backend.Artifact, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	i, err := b.newInterpreter(job)
	if err != nil {
		return nil, &errors.CompileError{Unit: job.SourcePath, Msg: "interpreter setup failed", Cause: err}
	}

	defer func() {
		if r := recover(); r != nil {
			err = &errors.CompileError{
				Unit: job.SourcePath,
				Msg:  fmt.Sprintf("interpreter panic: %v", r),
			}
		}
	}()

	if _, err := i.EvalPath(job.SourcePath); err != nil {
		return nil, compileError(job, err)
	}

	return &backend.Artifact{
		Package: job.Package,
		Name:    job.Name,
		Path:    job.SourcePath,
		Handle:  i,
	}, nil
}

// Load resolves the wrapper function inside the artifact's interpreter.
func (b *Backend) Load(ctx context.Context, a *backend.Artifact) (f backend.EvalFunc, err error) {
	i, ok := a.Handle.(*yaegi.Interpreter)
	if !ok || i == nil {
		return nil, &errors.LoadError{Package: a.Package, Name: a.Name, Msg: "artifact was not compiled by the interpreter"}
	}

	defer func() {
		if r := recover(); r != nil {
			err = &errors.LoadError{Package: a.Package, Name: a.Name, Msg: fmt.Sprintf("interpreter panic: %v", r)}
		}
	}()

	var candidates []string
	if a.Package != "main" {
		candidates = append(candidates, a.Package+"."+a.Name)
	}
	candidates = append(candidates, a.Name)

	var lastErr error
	for _, expr := range candidates {
		v, err := i.Eval(expr)
		if err != nil {
			lastErr = err
			continue
		}
		fn, err := backend.AsEvalFunc(v)
		if err != nil {
			return nil, (&errors.LoadError{Package: a.Package, Name: a.Name, Msg: "unexpected wrapper signature"}).CausedBy(err)
		}
		return fn, nil
	}
	return nil, (&errors.LoadError{Package: a.Package, Name: a.Name, Msg: "wrapper function not found"}).CausedBy(lastErr)
}

func compileError(job *backend.Job, err error) *errors.CompileError {
	ce := &errors.CompileError{
		Unit:   job.SourcePath,
		Output: err.Error(),
		Msg:    "interpreter rejected unit",
		Cause:  err,
	}
	if list, ok := err.(scanner.ErrorList); ok {
		for _, e := range list {
			ce.Diagnostics = append(ce.Diagnostics, errors.Diagnostic{
				Position: errors.Position{Filename: e.Pos.Filename, Line: e.Pos.Line, Column: e.Pos.Column},
				Msg:      e.Msg,
			})
		}
		return ce
	}
	ce.Diagnostics = backend.ParseDiagnostics(err.Error())
	return ce
}
