// Package loader owns the process classpath: the roots compiled units are
// built against and loaded from. Registrations are process-wide and are
// never released, mirroring how loaded code can never be unloaded.
package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"sync"

	"artifact/pkg/backend"
	"artifact/pkg/errors"
)

var (
	classpathMu sync.Mutex
	classpath   []string
	registered  = make(map[string]bool)

	buildInfoOnce sync.Once
	buildInfo     *debug.BuildInfo
)

// Register adds root to the process classpath. It reports whether root was
// new; registering a root again has no effect.
func Register(root string) bool {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	root = filepath.Clean(root)

	classpathMu.Lock()
	defer classpathMu.Unlock()
	if registered[root] {
		return false
	}
	registered[root] = true
	classpath = append(classpath, root)
	return true
}

// Roots returns the registered roots in registration order.
func Roots() []string {
	classpathMu.Lock()
	defer classpathMu.Unlock()
	return append([]string(nil), classpath...)
}

// Snapshot captures the classpath for one compilation.
func Snapshot() backend.Classpath {
	buildInfoOnce.Do(func() {
		buildInfo, _ = debug.ReadBuildInfo()
	})
	return backend.Classpath{Roots: Roots(), BuildInfo: buildInfo}
}

// Loader resolves compiled artifacts through a backend after making sure
// their output root is on the classpath.
type Loader struct {
	backend backend.Backend
}

// New returns a Loader using b.
func New(b backend.Backend) *Loader {
	return &Loader{backend: b}
}

// Load registers outputRoot and resolves a's wrapper function. A panic
// escaping the backend is reported as a LoadError.
func (l *Loader) Load(ctx context.Context, a *backend.Artifact, outputRoot string) (fn backend.EvalFunc, err error) {
	if outputRoot != "" {
		Register(outputRoot)
	}

	defer func() {
		if r := recover(); r != nil {
			le := &errors.LoadError{Package: a.Package, Name: a.Name, Msg: fmt.Sprintf("panic while loading: %v", r)}
			if cause, ok := r.(error); ok {
				le.CausedBy(cause)
			}
			err = le
		}
	}()

	fn, err = l.backend.Load(ctx, a)
	if err != nil {
		if _, ok := err.(*errors.LoadError); !ok {
			err = (&errors.LoadError{Package: a.Package, Name: a.Name, Msg: err.Error()}).CausedBy(err)
		}
		return nil, err
	}
	if fn == nil {
		return nil, &errors.LoadError{Package: a.Package, Name: a.Name, Msg: "backend returned no function"}
	}
	return fn, nil
}
