package interp

import (
	"io"

	"github.com/dlclark/regexp2"
)

// panicTrace matches the line the interpreter prints for every frame a
// panic unwinds through, e.g. "unit.go:12:3: panic: demo.ArtifactScript1.func(...)".
// The engine reports the panic itself, so these lines are dropped.
var panicTrace = regexp2.MustCompile(`^[^\n]*: panic: [^\n]*\(\.\.\.\)\r?\n$`, regexp2.None)

// traceFilter forwards writes to w, except the interpreter's panic trace.
type traceFilter struct {
	w io.Writer
}

func (f traceFilter) Write(p []byte) (int, error) {
	if ok, _ := panicTrace.MatchString(string(p)); ok {
		return len(p), nil
	}
	return f.w.Write(p)
}
