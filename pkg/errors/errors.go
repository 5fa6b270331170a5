package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"strings"
)

// ArtifactError is the interface implemented by every failure the engine
// surfaces to callers of Compile and Eval.
type ArtifactError interface {
	error
	Kind() string // "Rewrite", "Compile", "Load" or "Execution"
	// Message returns the error message without the kind prefix.
	Message() string
	Unwrap() error
}

// Diagnostic is a single compiler or type checker complaint about a unit.
type Diagnostic struct {
	Position
	Msg string
}

func (d Diagnostic) String() string {
	if d.Position.IsValid() || d.Filename != "" {
		return d.Position.String() + ": " + d.Msg
	}
	return d.Msg
}

// --- Concrete Error Types ---

// RewriteError is raised when the source rewriter cannot expand a script,
// for example when a substitution variable lookup fails. The whole script
// is rejected; no partial rewrite is ever compiled.
type RewriteError struct {
	Variable string // Substitution variable involved, if any
	Msg      string
	Cause    error
}

func (e *RewriteError) Error() string {
	if e.Variable != "" {
		return fmt.Sprintf("Rewrite Error: $%s: %s", e.Variable, e.Msg)
	}
	return fmt.Sprintf("Rewrite Error: %s", e.Msg)
}
func (e *RewriteError) Kind() string    { return "Rewrite" }
func (e *RewriteError) Message() string { return e.Msg }
func (e *RewriteError) Unwrap() error   { return e.Cause }
func (e *RewriteError) CausedBy(cause error) *RewriteError {
	e.Cause = cause
	return e
}

// CompileError represents a failed compilation of a generated unit. It
// carries the original, pre-rewrite script text so callers can show what the
// user actually typed.
type CompileError struct {
	Source      string       // Original script text
	Unit        string       // Path of the generated unit, if it was written
	Diagnostics []Diagnostic // Structured compiler/type checker output
	Output      string       // Raw backend output (go build stderr, interpreter error)
	Msg         string
	Cause       error
}

func (e *CompileError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Compile Error: %s", e.Msg)
	if len(e.Diagnostics) == 0 && e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	for _, d := range e.Diagnostics {
		b.WriteString("\n\t")
		b.WriteString(d.String())
	}
	return b.String()
}
func (e *CompileError) Kind() string    { return "Compile" }
func (e *CompileError) Message() string { return e.Msg }
func (e *CompileError) Unwrap() error   { return e.Cause }
func (e *CompileError) CausedBy(cause error) *CompileError {
	e.Cause = cause
	return e
}

// LoadError represents a unit that compiled but could not be located or
// instantiated afterwards. Fatal marks linkage problems (a plugin built
// against different package versions) after which the process should not
// continue.
type LoadError struct {
	Package string
	Name    string
	Fatal   bool
	Msg     string
	Cause   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("Load Error: %s.%s: %s", e.Package, e.Name, e.Msg)
}
func (e *LoadError) Kind() string    { return "Load" }
func (e *LoadError) Message() string { return e.Msg }
func (e *LoadError) Unwrap() error   { return e.Cause }
func (e *LoadError) CausedBy(cause error) *LoadError {
	e.Cause = cause
	return e
}

// ExecutionError wraps whatever went wrong while the script body ran.
// The original cause is always preserved.
type ExecutionError struct {
	Script string // Synthetic name of the unit that failed
	Cause  error
}

func (e *ExecutionError) Error() string {
	if e.Cause == nil {
		return "Execution Error"
	}
	return fmt.Sprintf("Execution Error: %s", e.Cause.Error())
}
func (e *ExecutionError) Kind() string { return "Execution" }
func (e *ExecutionError) Message() string {
	if e.Cause == nil {
		return ""
	}
	return e.Cause.Error()
}
func (e *ExecutionError) Unwrap() error { return e.Cause }

// --- Classification ---

// KindOf returns the Kind of the first ArtifactError in err's chain, or ""
// when err is not an engine error.
func KindOf(err error) string {
	var ae ArtifactError
	if stderrors.As(err, &ae) {
		return ae.Kind()
	}
	return ""
}

// --- Error Reporting ---

// DisplayErrors writes err to w. Compile diagnostics that point into the
// generated unit are shown with the offending line and a position marker.
func DisplayErrors(w io.Writer, unitSource string, err error) {
	if err == nil {
		return
	}

	var ce *CompileError
	if !stderrors.As(err, &ce) || len(ce.Diagnostics) == 0 {
		fmt.Fprintln(w, err.Error())
		return
	}

	lines := strings.Split(unitSource, "\n")
	fmt.Fprintf(w, "%s Error: %s\n", ce.Kind(), ce.Msg)
	for _, d := range ce.Diagnostics {
		lineIdx := d.Line - 1
		if lineIdx < 0 || lineIdx >= len(lines) {
			fmt.Fprintf(w, "  %s\n", d.String())
			continue
		}

		sourceLine := strings.TrimRight(lines[lineIdx], "\r\n\t ")
		fmt.Fprintf(w, "  %s\n", d.String())
		fmt.Fprintf(w, "    %s\n", expandTabs(sourceLine))

		col := d.Column - 1
		if col < 0 {
			col = 0
		}
		marker := strings.Repeat(" ", len(expandTabs(prefix(sourceLine, col)))) + "^"
		fmt.Fprintf(w, "    %s\n", marker)
	}
}

// FormatChain renders err and every cause below it, one per line, the way a
// stack of nested exceptions is usually printed. Causes that carry a stack
// trace (github.com/pkg/errors) print it as well.
func FormatChain(err error) string {
	var b strings.Builder
	for depth := 0; err != nil; depth++ {
		if depth > 0 {
			b.WriteString("Caused by: ")
		}
		fmt.Fprintf(&b, "%T: %s\n", err, err.Error())
		if tracer, ok := err.(stackTracer); ok {
			fmt.Fprintf(&b, "%+v\n", tracer.StackTrace())
		}
		err = stderrors.Unwrap(err)
	}
	return b.String()
}

func prefix(s string, n int) string {
	if n > len(s) {
		return s
	}
	return s[:n]
}

func expandTabs(s string) string {
	return strings.ReplaceAll(s, "\t", "    ")
}
