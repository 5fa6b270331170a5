package engine

// State is the engine's position in the compile/execute pipeline.
type State int

const (
	Idle          State = iota // Nothing in flight
	Rewriting                  // Expanding script text
	Compiling                  // Generating and compiling the unit
	Loading                    // Resolving the compiled unit
	Ready                      // A compiled script is available
	Executing                  // A script body is running
	CompileFailed              // Rewrite or compilation failed
	LoadFailed                 // The compiled unit could not be loaded
	ExecFailed                 // The script body failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Rewriting:
		return "rewriting"
	case Compiling:
		return "compiling"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Executing:
		return "executing"
	case CompileFailed:
		return "compile-failed"
	case LoadFailed:
		return "load-failed"
	case ExecFailed:
		return "exec-failed"
	default:
		return "invalid"
	}
}

// Failed reports whether s is one of the terminal failure states.
func (s State) Failed() bool {
	return s == CompileFailed || s == LoadFailed || s == ExecFailed
}
