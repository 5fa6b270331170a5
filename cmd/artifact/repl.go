package main

import (
	stderrors "errors"
	"fmt"
	"go/parser"
	"go/scanner"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"strings"

	"artifact/pkg/engine"
	"artifact/pkg/source"

	"github.com/peterh/liner"
)

const (
	banner      = "Artifact Go scripting (:quit to exit, :stats for engine statistics)"
	promptMain  = "artifact> "
	promptCont  = "......... "
	historyFile = ".artifact_history"
)

func (c *cli) repl(e *engine.Engine) int {
	fmt.Fprintln(c.stdout, banner)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		code, ok := readScript(ln)
		if !ok {
			fmt.Fprintln(c.stdout)
			return exitOK
		}

		trimmed := strings.TrimSpace(code)
		switch {
		case trimmed == "":
			continue
		case strings.HasPrefix(trimmed, ":"):
			if c.command(e, trimmed) {
				return exitOK
			}
			continue
		}

		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))
		value, err := e.EvalSource(source.NewReplSource(code), nil)
		if err != nil {
			if rc := c.report(err); rc == exitFatal {
				return rc
			}
			continue
		}
		fmt.Fprintf(c.stdout, "Artifact: %s\n", c.format(value))
	}
}

// command runs a REPL command and reports whether the session should end.
func (c *cli) command(e *engine.Engine, cmd string) bool {
	switch strings.ToLower(cmd) {
	case ":quit", ":q":
		return true
	case ":stats":
		s := e.Stats()
		fmt.Fprintf(c.stdout, "state=%s compilations=%d hits=%d misses=%d entries=%d\n",
			s.State, s.Compilations, s.Cache.Hits, s.Cache.Misses, s.Cache.Entries)
	case ":package":
		fmt.Fprintln(c.stdout, e.Session().Package())
	case ":imports":
		for _, decl := range e.Session().Imports() {
			fmt.Fprintln(c.stdout, decl)
		}
	default:
		fmt.Fprintln(c.stdout, "unknown command. Type :quit to exit.")
	}
	return false
}

// readScript reads lines until they form a complete script.
func readScript(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if stderrors.Is(err, io.EOF) || stderrors.Is(err, liner.ErrPromptAborted) {
			return "", false
		}
		if err != nil {
			return "", true
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		if !incomplete(b.String()) {
			return b.String(), true
		}
	}
}

// incomplete reports whether src ends in the middle of a block, call or
// literal, so the REPL should keep reading.
func incomplete(src string) bool {
	wrapped := "package p\nfunc _() {\n" + src + "\n}\n"
	_, err := parser.ParseFile(token.NewFileSet(), "", wrapped, parser.AllErrors)
	var list scanner.ErrorList
	if !stderrors.As(err, &list) {
		return false
	}
	for _, e := range list {
		if strings.Contains(e.Msg, "EOF") || strings.Contains(e.Msg, "not terminated") {
			return true
		}
	}
	return false
}
