package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	pkgerrors "github.com/pkg/errors"
)

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// ErrTerminated is the signal a host uses to ask an evaluation thread to stop.
// HandleFatal re-raises it instead of reporting it.
var ErrTerminated = stderrors.New("artifact: evaluation terminated")

// WithStack records the caller's stack on err unless it already has one.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	var tracer stackTracer
	if stderrors.As(err, &tracer) {
		return err
	}
	return pkgerrors.WithStack(err)
}

// IsFatal reports whether err belongs to the process-fatal category:
// linkage failures after which continuing to run is unsafe.
func IsFatal(err error) bool {
	var le *LoadError
	return stderrors.As(err, &le) && le.Fatal
}

// HandleFatal reports err to w and applies the process policy: linkage
// failures exit with status 1, ErrTerminated is re-raised as a panic, and
// everything else is left to the caller. exit defaults to os.Exit.
func HandleFatal(w io.Writer, err error, exit func(int)) {
	if err == nil {
		return
	}
	if exit == nil {
		exit = os.Exit
	}

	if stderrors.Is(err, ErrTerminated) {
		panic(err)
	}

	fmt.Fprint(w, FormatChain(err))

	if IsFatal(err) {
		exit(1)
	}
}
