package main

import (
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"artifact/pkg/config"
	"artifact/pkg/engine"
	"artifact/pkg/errors"
	"artifact/pkg/source"

	jsoniter "github.com/json-iterator/go"
)

// Exit codes.
const (
	exitOK      = 0
	exitFatal   = 1  // linkage failure
	exitUsage   = 64 // command line usage error
	exitFailure = 70 // a script failed
)

const usage = `Usage: artifact [flags] [script.go ...]

With no scripts and no -x, artifact starts an interactive session.

Flags:
`

type cli struct {
	stdout io.Writer
	stderr io.Writer
	json   bool
}

func main() {
	c := &cli{stdout: os.Stdout, stderr: os.Stderr}
	os.Exit(c.run(os.Args[1:]))
}

func (c *cli) run(args []string) int {
	fs := flag.NewFlagSet("artifact", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() {
		fmt.Fprint(c.stderr, usage)
		fs.PrintDefaults()
	}

	extFlag := fs.String("e", "go", "Select the script dialect by file extension")
	guiFlag := fs.Bool("g", false, "Start the graphical console")
	exprFlag := fs.String("x", "", "Evaluate the given script and exit")
	configFlag := fs.String("c", "", "Read configuration from the given YAML file")
	backendFlag := fs.String("backend", "", "Compile with the named backend (interp, plugin)")
	dumpFlag := fs.Bool("dump", false, "Print every generated unit before compiling it")
	jsonFlag := fs.Bool("json", false, "Print results as JSON")
	strictFlag := fs.Bool("strict", false, "Reject scripts that substitute unbound variables")
	verboseFlag := fs.Bool("v", false, "Log pipeline activity to stderr")

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	c.json = *jsonFlag

	if *guiFlag {
		fmt.Fprintln(c.stderr, "artifact: the graphical console is not available in this build")
		return exitUsage
	}

	factory := engine.NewManager().ByExtension(*extFlag)
	if factory == nil {
		fmt.Fprintf(c.stderr, "artifact: no engine for extension %q\n", *extFlag)
		return exitUsage
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(c.stderr, err)
		return exitUsage
	}
	if *configFlag != "" {
		if err := cfg.LoadFile(*configFlag); err != nil {
			fmt.Fprintln(c.stderr, err)
			return exitUsage
		}
	}
	if *backendFlag != "" {
		cfg.Backend = *backendFlag
	}
	if *dumpFlag {
		cfg.Dump = true
	}
	if *strictFlag {
		cfg.StrictBindings = true
	}

	level := slog.LevelWarn
	if *verboseFlag {
		level = slog.LevelDebug
	}
	e, err := factory.NewEngine(engine.Options{
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(c.stderr, &slog.HandlerOptions{Level: level})),
		Stdout: c.stdout,
		Stderr: c.stderr,
	})
	if err != nil {
		fmt.Fprintln(c.stderr, err)
		return exitUsage
	}

	switch {
	case *exprFlag != "":
		return c.evalAndPrint(e, source.NewEvalSource(*exprFlag))
	case fs.NArg() > 0:
		for _, path := range fs.Args() {
			if code := c.runFile(e, path); code != exitOK {
				return code
			}
		}
		return exitOK
	default:
		return c.repl(e)
	}
}

// runFile evaluates the script file at path.
func (c *cli) runFile(e *engine.Engine, path string) int {
	abs, err := filepath.Abs(path)
	if err != nil {
		fmt.Fprintf(c.stderr, "Failed to read file '%s': %s\n", path, err)
		return exitFailure
	}
	f, err := os.Open(abs)
	if err != nil {
		fmt.Fprintf(c.stderr, "Failed to read file '%s': %s\n", path, err)
		return exitFailure
	}
	content, err := source.ReadAll(f, e.Config().LineSeparator)
	f.Close()
	if err != nil {
		fmt.Fprintf(c.stderr, "Failed to read file '%s': %s\n", path, err)
		return exitFailure
	}
	return c.evalAndPrint(e, source.FromFile(abs, content))
}

func (c *cli) evalAndPrint(e *engine.Engine, sf *source.SourceFile) int {
	value, err := e.EvalSource(sf, nil)
	if err != nil {
		return c.report(err)
	}
	if value != nil {
		fmt.Fprintln(c.stdout, c.format(value))
	}
	return exitOK
}

// report prints err and returns the exit code it maps to.
func (c *cli) report(err error) int {
	if errors.IsFatal(err) {
		code := exitFatal
		errors.HandleFatal(c.stderr, err, func(n int) { code = n })
		return code
	}

	unit := ""
	var ce *errors.CompileError
	if stderrors.As(err, &ce) && ce.Unit != "" {
		if data, rerr := os.ReadFile(ce.Unit); rerr == nil {
			unit = string(data)
		}
	}
	errors.DisplayErrors(c.stderr, unit, err)
	return exitFailure
}

func (c *cli) format(value any) string {
	if c.json {
		s, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(value)
		if err == nil {
			return s
		}
	}
	return fmt.Sprint(value)
}
