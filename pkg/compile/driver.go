// Package compile drives one synthetic unit from text to a compiled
// artifact: it writes the unit into the scratch source tree, fixes its
// imports, type-checks it and hands it to the backend.
package compile

import (
	"context"
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/scanner"
	"go/token"
	"go/types"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"artifact/pkg/backend"
	"artifact/pkg/errors"
	"artifact/pkg/loader"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/tools/imports"
)

// Options configures a Driver.
type Options struct {
	SourceRoot string       // Units go to SourceRoot/src/<package>/<Name>.go
	OutputRoot string       // Build products go below OutputRoot
	Dump       bool         // Print each final unit before compiling it
	DumpWriter io.Writer    // Defaults to os.Stdout
	TypeCheck  bool         // Type-check units with go/types before the backend sees them
	Logger     *slog.Logger // Defaults to slog.Default()
}

// Request is one unit to compile.
type Request struct {
	Original string // Script text as the caller supplied it
	Unit     string // Generated unit text
	Dir      string // Session package; selects the source directory
	Package  string // Package clause of the unit
	Name     string // Wrapper function name
}

// Result is a successful compilation.
type Result struct {
	Artifact *backend.Artifact
	Path     string // Unit file on disk
	Unit     string // Final unit text after import fix-up
}

// Driver compiles units through a backend. It is safe for concurrent use;
// compilations are serialized.
type Driver struct {
	backend backend.Backend
	opts    Options

	mu           sync.Mutex
	compilations atomic.Int64
}

// The source importer caches every package it has checked, so one instance
// serves all drivers in the process.
var (
	checkerMu       sync.Mutex
	checkerFset     = token.NewFileSet()
	checkerImporter = importer.ForCompiler(checkerFset, "source", nil)
)

// NewDriver returns a driver compiling with b.
func NewDriver(b backend.Backend, opts Options) *Driver {
	if opts.DumpWriter == nil {
		opts.DumpWriter = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.OutputRoot == "" {
		opts.OutputRoot = filepath.Join(opts.SourceRoot, "bin")
	}
	return &Driver{backend: b, opts: opts}
}

// Backend returns the backend the driver compiles with.
func (d *Driver) Backend() backend.Backend { return d.backend }

// Compilations returns how many compilations were attempted.
func (d *Driver) Compilations() int64 { return d.compilations.Load() }

// Options returns the driver configuration.
func (d *Driver) Options() Options { return d.opts }

// Compile writes, checks and builds req. It is never retried; every failure
// is a *errors.CompileError carrying req.Original.
func (d *Driver) Compile(ctx context.Context, req *Request) (*Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := d.compilations.Add(1)
	log := d.opts.Logger.With("unit", req.Name, "package", req.Package)
	log.Debug("compiling unit", "attempt", n)

	dir := filepath.Join(d.opts.SourceRoot, "src", req.Dir)
	path := filepath.Join(dir, req.Name+".go")

	for _, root := range []string{dir, d.opts.OutputRoot} {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, d.fail(req, path, "cannot create scratch root", pkgerrors.WithStack(err))
		}
	}
	loader.Register(d.opts.SourceRoot)

	unit, err := imports.Process(path, []byte(req.Unit), &imports.Options{
		Comments:  true,
		TabIndent: true,
		TabWidth:  8,
	})
	if err != nil {
		// keep the raw unit on disk for inspection
		_ = writeUnit(path, []byte(req.Unit))
		ce := d.fail(req, path, "syntax error", err)
		ce.Diagnostics = syntaxDiagnostics(err)
		return nil, ce
	}

	if err := writeUnit(path, unit); err != nil {
		return nil, d.fail(req, path, "cannot write unit", pkgerrors.WithStack(err))
	}

	if d.opts.Dump {
		fmt.Fprintf(d.opts.DumpWriter, "// %s\n%s\n", path, unit)
	}

	if d.opts.TypeCheck {
		if diags := d.check(path, unit); len(diags) > 0 {
			ce := d.fail(req, path, "type check failed", nil)
			ce.Diagnostics = diags
			return nil, ce
		}
	}

	job := &backend.Job{
		Package:    req.Package,
		Name:       req.Name,
		SourcePath: path,
		SourceRoot: d.opts.SourceRoot,
		OutputRoot: d.opts.OutputRoot,
		Classpath:  loader.Snapshot(),
	}
	artifact, err := d.backend.Compile(ctx, job)
	if err != nil {
		var ce *errors.CompileError
		if pkgerrors.As(err, &ce) {
			ce.Source = req.Original
			if ce.Unit == "" {
				ce.Unit = path
			}
			return nil, ce
		}
		return nil, d.fail(req, path, "backend failed", err)
	}

	log.Debug("compiled unit", "path", artifact.Path)
	return &Result{Artifact: artifact, Path: path, Unit: string(unit)}, nil
}

func (d *Driver) fail(req *Request, path, msg string, cause error) *errors.CompileError {
	return &errors.CompileError{
		Source: req.Original,
		Unit:   path,
		Msg:    msg,
		Cause:  cause,
	}
}

// check type-checks the unit. Imports the source importer cannot resolve
// are tolerated; go/types marks them fake and reports nothing about their
// use, leaving the final word to the backend.
func (d *Driver) check(path string, unit []byte) []errors.Diagnostic {
	checkerMu.Lock()
	defer checkerMu.Unlock()

	f, err := parser.ParseFile(checkerFset, path, unit, parser.AllErrors)
	if err != nil {
		return syntaxDiagnostics(err)
	}

	var diags []errors.Diagnostic
	conf := types.Config{
		Importer: checkerImporter,
		Error: func(err error) {
			te, ok := err.(types.Error)
			if !ok {
				diags = append(diags, errors.Diagnostic{Msg: err.Error()})
				return
			}
			if strings.Contains(te.Msg, "could not import") {
				return
			}
			pos := te.Fset.Position(te.Pos)
			diags = append(diags, errors.Diagnostic{
				Position: errors.Position{Filename: pos.Filename, Line: pos.Line, Column: pos.Column},
				Msg:      te.Msg,
			})
		},
	}
	_, _ = conf.Check(f.Name.Name, checkerFset, []*ast.File{f}, nil)
	return diags
}

func syntaxDiagnostics(err error) []errors.Diagnostic {
	var list scanner.ErrorList
	if !pkgerrors.As(err, &list) {
		return backend.ParseDiagnostics(err.Error())
	}
	diags := make([]errors.Diagnostic, 0, len(list))
	for _, e := range list {
		diags = append(diags, errors.Diagnostic{
			Position: errors.Position{Filename: e.Pos.Filename, Line: e.Pos.Line, Column: e.Pos.Column},
			Msg:      e.Msg,
		})
	}
	return diags
}

// writeUnit writes data to path and closes the file before returning.
func writeUnit(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
