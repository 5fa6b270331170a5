// Package engine is the scripting facade: it turns script text into a
// cached, compiled unit and runs it against a binding context.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"artifact/pkg/backend"
	_ "artifact/pkg/backend/interp"
	_ "artifact/pkg/backend/plugin"
	"artifact/pkg/bindings"
	"artifact/pkg/cache"
	"artifact/pkg/compile"
	"artifact/pkg/config"
	"artifact/pkg/errors"
	"artifact/pkg/generate"
	"artifact/pkg/loader"
	"artifact/pkg/patterns"
	"artifact/pkg/rewrite"
	"artifact/pkg/source"
)

const debugEngine = false

func debugPrintf(format string, args ...interface{}) {
	if debugEngine {
		fmt.Printf("[Engine] "+format, args...)
	}
}

// Options configures New. Every field is optional.
type Options struct {
	Config   *config.Config   // Defaults to config.Default()
	Logger   *slog.Logger     // Defaults to slog.Default()
	Bindings bindings.Context // Engine bindings; a fresh map by default
	Backend  backend.Backend  // Overrides Config.Backend
	Factory  *Factory         // Defaults to DefaultFactory

	Stdout io.Writer // Script and dump output; defaults to os.Stdout
	Stderr io.Writer // Defaults to os.Stderr

	// Symbols are host packages exposed to interpreted scripts.
	Symbols map[string]map[string]reflect.Value
}

// Stats is a snapshot of engine activity.
type Stats struct {
	State        State
	Compilations int64 // Units handed to the compilation driver
	Cache        cache.Stats
}

// Engine compiles and evaluates scripts. It is safe for concurrent use:
// rewriting, compiling, loading and cache population are serialized, while
// script bodies run outside the lock so they can evaluate nested scripts.
type Engine struct {
	cfg     *config.Config
	log     *slog.Logger
	factory *Factory

	session  *rewrite.Session
	rewriter *rewrite.Rewriter
	driver   *compile.Driver
	loader   *loader.Loader
	cache    *cache.Cache[*Script]
	files    map[string]*fileScript

	defaultImports []string
	bindings       bindings.Context

	mu    sync.Mutex
	state atomic.Int32
}

// New creates an engine from opts.
func New(opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	b := opts.Backend
	if b == nil {
		var err error
		b, err = backend.New(cfg.Backend, backend.Options{
			Stdout:           stdout,
			Stderr:           stderr,
			Symbols:          opts.Symbols,
			GoBinary:         cfg.Plugin.GoBinary,
			BuildFlags:       cfg.Plugin.BuildFlags,
			ShareHostModules: cfg.Plugin.ShareHostModules,
		})
		if err != nil {
			return nil, err
		}
	}

	for _, root := range cfg.ClassPath {
		loader.Register(root)
	}

	pkg := cfg.Package
	if pkg == "" {
		pkg = rewrite.DefaultPackage
	}
	session := rewrite.NewSession(pkg)

	ctx := opts.Bindings
	if ctx == nil {
		ctx = bindings.New()
	}
	factory := opts.Factory
	if factory == nil {
		factory = DefaultFactory
	}

	defaultImports := cfg.ResolveDefaultImports()
	e := &Engine{
		cfg:     cfg,
		log:     log.With("backend", b.Name()),
		factory: factory,
		session: session,
		rewriter: rewrite.New(session, rewrite.Options{
			StrictBindings: cfg.StrictBindings,
			CanImport:      b.CanImport,
			Reserved:       append(append([]string(nil), defaultImports...), cfg.GlobalImports...),
		}),
		driver: compile.NewDriver(b, compile.Options{
			SourceRoot: cfg.SourceRoot(),
			OutputRoot: cfg.OutputRoot(),
			Dump:       cfg.Dump,
			DumpWriter: stdout,
			TypeCheck:  cfg.TypeCheck,
			Logger:     log,
		}),
		loader:         loader.New(b),
		cache:          cache.New[*Script](cache.Config{Size: cfg.Cache.Size, TTL: cfg.Cache.TTL}),
		files:          make(map[string]*fileScript),
		defaultImports: defaultImports,
		bindings:       ctx,
	}
	debugPrintf("New: backend=%s package=%s scratch=%s\n", b.Name(), pkg, cfg.ScratchDir)
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

// Factory returns the factory describing this engine.
func (e *Engine) Factory() *Factory { return e.factory }

// Session returns the rewrite session accumulated by this engine.
func (e *Engine) Session() *rewrite.Session { return e.session }

// Bindings returns the engine's own binding context.
func (e *Engine) Bindings() bindings.Context { return e.bindings }

// CreateBindings returns a fresh, empty binding context.
func (e *Engine) CreateBindings() bindings.Context { return bindings.New() }

// State returns the latest pipeline state.
func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(s State) {
	debugPrintf("state -> %s\n", s)
	e.state.Store(int32(s))
}

// Stats returns a snapshot of engine activity.
func (e *Engine) Stats() Stats {
	return Stats{
		State:        e.State(),
		Compilations: e.driver.Compilations(),
		Cache:        e.cache.Stats(),
	}
}

// Compile returns the script for text, compiling it unless an equivalent
// script (equal after whitespace normalization) is already cached.
// Substitution variables are typed against the engine's bindings.
func (e *Engine) Compile(text string) (*Script, error) {
	return e.compile(text, e.bindings)
}

// CompileReader drains r and compiles its content.
func (e *Engine) CompileReader(r io.Reader) (*Script, error) {
	text, err := source.ReadAll(r, e.cfg.LineSeparator)
	if err != nil {
		return nil, err
	}
	return e.Compile(text)
}

// Eval compiles text and runs it against the engine's bindings.
func (e *Engine) Eval(text string) (any, error) {
	return e.EvalWith(text, e.bindings)
}

// EvalWith compiles text and runs it against ctx.
func (e *Engine) EvalWith(text string, ctx bindings.Context) (any, error) {
	if ctx == nil {
		ctx = e.bindings
	}
	script, err := e.compile(text, ctx)
	if err != nil {
		return nil, err
	}
	return script.Eval(ctx)
}

// EvalReader drains r and evaluates its content against ctx.
func (e *Engine) EvalReader(r io.Reader, ctx bindings.Context) (any, error) {
	text, err := source.ReadAll(r, e.cfg.LineSeparator)
	if err != nil {
		return nil, err
	}
	return e.EvalWith(text, ctx)
}

// EvalSource evaluates a source file against ctx. The unit generated for
// it names the source file in its header.
func (e *Engine) EvalSource(sf *source.SourceFile, ctx bindings.Context) (any, error) {
	if ctx == nil {
		ctx = e.bindings
	}
	e.log.Debug("evaluating source", "source", sf.DisplayPath())
	script, err := e.compileNamed(sf.Content, sf.DisplayPath(), ctx)
	if err != nil {
		return nil, err
	}
	return script.Eval(ctx)
}

func (e *Engine) compile(text string, ctx bindings.Context) (*Script, error) {
	return e.compileNamed(text, "", ctx)
}

func (e *Engine) compileNamed(text, name string, ctx bindings.Context) (*Script, error) {
	if path, ok := fileURI(text); ok {
		return e.compileFile(path, ctx)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compileLocked(text, name, ctx)
}

// compileLocked resolves text through the cache (called with lock held).
// name labels the unit header and defaults to the script's first line.
func (e *Engine) compileLocked(text, name string, ctx bindings.Context) (*Script, error) {
	if name == "" {
		name = displayName(text)
	}
	key := patterns.Normalize(text)
	script, cached, err := e.cache.GetOrCompile(key, func() (*Script, error) {
		return e.build(text, key, name, ctx)
	})
	if err != nil {
		return nil, err
	}
	if cached {
		debugPrintf("cache hit for %s\n", script.Name)
		e.setState(Ready)
	}
	return script, nil
}

// build runs the full pipeline for one script (called with lock held)
func (e *Engine) build(text, key, label string, ctx bindings.Context) (*Script, error) {
	e.setState(Rewriting)
	res, err := e.rewriter.Rewrite(text, ctx)
	if err != nil {
		e.setState(CompileFailed)
		return nil, &errors.CompileError{Source: text, Msg: "rewrite failed", Cause: err}
	}

	b := e.driver.Backend()
	name := rewrite.NextUnitName()
	unitPkg := b.UnitPackage(res.Package)
	log := e.log.With("unit", name, "package", res.Package)

	unit := generate.Generate(generate.Unit{
		Package: unitPkg,
		Name:    name,
		Source:  label,
		Body:    res.Body,
		Default: e.defaultImports,
		Global:  e.cfg.GlobalImports,
		Session: e.session.Imports(),
		Extra:   res.Types,
	})

	e.setState(Compiling)
	cres, err := e.driver.Compile(context.Background(), &compile.Request{
		Original: text,
		Unit:     unit,
		Dir:      res.Package,
		Package:  unitPkg,
		Name:     name,
	})
	if err != nil {
		e.setState(CompileFailed)
		log.Debug("compile failed", "error", err)
		return nil, err
	}

	e.setState(Loading)
	fn, err := e.loader.Load(context.Background(), cres.Artifact, e.cfg.OutputRoot())
	if err != nil {
		e.setState(LoadFailed)
		log.Debug("load failed", "error", err)
		return nil, err
	}

	e.setState(Ready)
	log.Debug("script ready", "path", cres.Path)
	return &Script{
		Key:      key,
		Source:   text,
		Package:  res.Package,
		Name:     name,
		UnitPath: cres.Path,
		fn:       fn,
		engine:   e,
	}, nil
}

// displayName is the first line of text, shortened for unit headers.
func displayName(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	if r := []rune(line); len(r) > 60 {
		return string(r[:57]) + "..."
	}
	return line
}
