package engine

import (
	stderrors "errors"

	"artifact/pkg/backend"
	"artifact/pkg/bindings"
	"artifact/pkg/errors"
)

// Script is a compiled, reusable unit bound to the engine that built it.
type Script struct {
	Key      string // Normalized source text the script is cached under
	Source   string // Original script text
	Package  string // Session package the script was generated in
	Name     string // Synthetic unit name
	UnitPath string // Generated unit file

	fn     backend.EvalFunc
	engine *Engine
}

// Engine returns the engine that compiled s.
func (s *Script) Engine() *Engine { return s.engine }

// Eval runs the script against ctx, or the engine's bindings when ctx is
// nil. The body may call get, set and eval; eval compiles and runs nested
// scripts through the same engine and context.
//
// Any failure raised by the body is returned as an *errors.ExecutionError
// wrapping the original cause. errors.ErrTerminated is re-raised instead.
func (s *Script) Eval(ctx bindings.Context) (any, error) {
	if ctx == nil {
		ctx = s.engine.Bindings()
	}

	e := s.engine
	e.setState(Executing)
	log := e.log.With("unit", s.Name)
	log.Debug("executing script")

	eval := func(src string) (any, error) {
		return e.EvalWith(src, ctx)
	}
	result, err := s.fn(ctx.Get, ctx.Put, eval)
	if err != nil {
		if stderrors.Is(err, errors.ErrTerminated) {
			panic(err)
		}
		e.setState(ExecFailed)
		log.Debug("script failed", "error", err)
		return nil, &errors.ExecutionError{Script: s.Name, Cause: errors.WithStack(err)}
	}

	e.setState(Idle)
	return result, nil
}
