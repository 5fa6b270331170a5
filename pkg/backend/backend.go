// Package backend defines how a generated unit becomes something the
// process can call. Two implementations exist: interp runs the unit inside
// an embedded Go interpreter, plugin builds it with the go tool as a shared
// object and opens it with the plugin package.
package backend

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"runtime/debug"
	"sort"
	"sync"
)

// EvalFunc is the signature of every generated wrapper function.
type EvalFunc = func(get func(string) any, set func(string, any), eval func(string) (any, error)) (any, error)

// Job is one unit handed to a backend for compilation.
type Job struct {
	Package    string // Package clause of the unit
	Name       string // Wrapper function name
	SourcePath string // Absolute path of the unit file
	SourceRoot string // Scratch source root; the unit lives in SourceRoot/src/Package
	OutputRoot string // Scratch output root for build products
	Classpath  Classpath
}

// Classpath is the snapshot of what the host process can see, passed to the
// compiler so the unit is built against the same world.
type Classpath struct {
	Roots     []string         // Registered source/output roots, in registration order
	BuildInfo *debug.BuildInfo // Host build information, nil when unavailable
}

// Artifact is a compiled unit ready to be loaded.
type Artifact struct {
	Package string
	Name    string
	Path    string // Build product; the unit source for interpreting backends
	Handle  any    // Backend private state
}

// Backend compiles units and resolves their wrapper functions.
type Backend interface {
	// Name identifies the backend in configuration.
	Name() string
	// UnitPackage maps the session's package name to the package clause
	// the backend needs.
	UnitPackage(session string) string
	// CanImport reports whether a unit may import the package at path.
	CanImport(path string) bool
	// Compile builds job. Failures are returned as *errors.CompileError.
	Compile(ctx context.Context, job *Job) (*Artifact, error)
	// Load resolves the wrapper function of a compiled artifact. Failures
	// are returned as *errors.LoadError.
	Load(ctx context.Context, a *Artifact) (EvalFunc, error)
}

// Options configures backend construction. Each backend reads the fields
// that concern it.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer

	// Symbols are host packages made visible to interpreted units, in the
	// layout used by the interpreter's Use method.
	Symbols map[string]map[string]reflect.Value

	GoBinary         string   // go tool used for plugin builds
	BuildFlags       []string // Extra go build flags
	ShareHostModules bool     // Build plugins in module mode against the host's requirements
}

// Factory constructs a backend.
type Factory func(opts Options) (Backend, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a backend available under name. Registering a name twice
// panics.
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, dup := factories[name]; dup {
		panic("backend: Register called twice for " + name)
	}
	factories[name] = f
}

// New constructs the backend registered under name.
func New(name string, opts Options) (Backend, error) {
	factoriesMu.RLock()
	f, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("backend: unknown backend %q (available: %v)", name, Names())
	}
	return f(opts)
}

// Names lists the registered backends.
func Names() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var evalFuncType = reflect.TypeOf((EvalFunc)(nil))

// AsEvalFunc adapts a resolved symbol to EvalFunc. Values of exactly that
// type are returned as is; other functions with a compatible shape are
// called through reflection.
func AsEvalFunc(sym any) (EvalFunc, error) {
	switch f := sym.(type) {
	case EvalFunc:
		return f, nil
	case *EvalFunc:
		if f != nil && *f != nil {
			return *f, nil
		}
	case reflect.Value:
		if f.IsValid() && f.CanInterface() {
			return AsEvalFunc(f.Interface())
		}
	}

	v := reflect.ValueOf(sym)
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("symbol of type %T is not a function", sym)
	}
	t := v.Type()
	if t.NumIn() != evalFuncType.NumIn() || t.NumOut() != evalFuncType.NumOut() {
		return nil, fmt.Errorf("symbol of type %s does not match %s", t, evalFuncType)
	}
	for i := 0; i < t.NumIn(); i++ {
		if !evalFuncType.In(i).AssignableTo(t.In(i)) && !evalFuncType.In(i).ConvertibleTo(t.In(i)) {
			return nil, fmt.Errorf("symbol of type %s does not match %s", t, evalFuncType)
		}
	}

	return func(get func(string) any, set func(string, any), eval func(string) (any, error)) (any, error) {
		args := []reflect.Value{reflect.ValueOf(get), reflect.ValueOf(set), reflect.ValueOf(eval)}
		for i := range args {
			args[i] = args[i].Convert(t.In(i))
		}
		out := v.Call(args)
		var err error
		if e, ok := out[1].Interface().(error); ok {
			err = e
		}
		return out[0].Interface(), err
	}, nil
}
