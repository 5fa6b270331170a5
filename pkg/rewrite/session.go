package rewrite

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// DefaultPackage is the package a script lands in until it declares one.
const DefaultPackage = "artifact"

// UnitPrefix prefixes every synthetic unit name.
const UnitPrefix = "ArtifactScript"

// unitCounter is shared by every engine in the process. Plugins and
// interpreted packages are keyed by name, and a name must never be reused
// within one process even across engines.
var unitCounter atomic.Uint64

// NextUnitName returns a fresh synthetic unit name.
func NextUnitName() string {
	return UnitPrefix + strconv.FormatUint(unitCounter.Add(1), 10)
}

// Session is the rewriter state that outlives a single script: the package
// most recently declared and every import declaration seen so far.
type Session struct {
	mu      sync.Mutex
	pkg     string
	imports []string
}

// NewSession returns a session starting in pkg, or DefaultPackage when pkg
// is empty.
func NewSession(pkg string) *Session {
	if pkg == "" {
		pkg = DefaultPackage
	}
	return &Session{pkg: pkg}
}

// Package returns the current package name.
func (s *Session) Package() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pkg
}

// SetPackage changes the package for this and every later script.
func (s *Session) SetPackage(pkg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pkg = pkg
}

// AddImport records an import declaration verbatim. Duplicates are kept;
// the generator collapses them.
func (s *Session) AddImport(declaration string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imports = append(s.imports, declaration)
}

// Imports returns a copy of the recorded declarations in arrival order.
func (s *Session) Imports() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.imports...)
}
