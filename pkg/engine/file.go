package engine

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"artifact/pkg/bindings"
	"artifact/pkg/errors"
	"artifact/pkg/source"
)

// URIPrefix marks script text that names a script file instead of
// containing source. Both "uri:/path/to/x.go" and "uri:file:///path" work.
const URIPrefix = "uri:"

type fileScript struct {
	script  *Script
	modTime time.Time
}

// fileURI extracts the file path from uri: text.
func fileURI(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, URIPrefix) {
		return "", false
	}
	ref := strings.TrimPrefix(text, URIPrefix)
	if u, err := url.Parse(ref); err == nil && u.Scheme == "file" {
		ref = u.Path
	}
	if ref == "" {
		return "", false
	}
	return filepath.Clean(ref), true
}

// compileFile compiles the script stored at path. The compiled script is
// reused until the file's modification time advances.
func (e *Engine) compileFile(path string, ctx bindings.Context) (*Script, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &errors.CompileError{Source: URIPrefix + path, Msg: "cannot read script file", Cause: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if fs, ok := e.files[path]; ok && !info.ModTime().After(fs.modTime) {
		debugPrintf("file script %s unchanged\n", path)
		e.setState(Ready)
		return fs.script, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &errors.CompileError{Source: URIPrefix + path, Msg: "cannot read script file", Cause: err}
	}
	sf, err := source.FromReader(path, f, e.cfg.LineSeparator)
	f.Close()
	if err != nil {
		return nil, &errors.CompileError{Source: URIPrefix + path, Msg: "cannot read script file", Cause: err}
	}

	e.log.Debug("compiling file script", "path", path, "modified", info.ModTime())
	script, err := e.compileLocked(sf.Content, sf.DisplayPath(), ctx)
	if err != nil {
		return nil, err
	}
	e.files[path] = &fileScript{script: script, modTime: info.ModTime()}
	return script, nil
}
