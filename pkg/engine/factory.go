package engine

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// Version of the engine.
const Version = "1.0.0"

// Factory describes the scripting dialect and creates engines for it.
type Factory struct {
	EngineName      string
	EngineVersion   string
	LanguageName    string
	LanguageVersion string
	Names           []string // Short names the dialect is known by
	Extensions      []string // File extensions, without the leading dot
	MimeTypes       []string
}

// DefaultFactory describes the Go scripting dialect.
var DefaultFactory = &Factory{
	EngineName:      "Artifact",
	EngineVersion:   Version,
	LanguageName:    "Go",
	LanguageVersion: runtime.Version(),
	Names:           []string{"artifact", "go", "golang"},
	Extensions:      []string{"go"},
	MimeTypes:       []string{"text/x-go"},
}

// NewEngine creates an engine described by f.
func (f *Factory) NewEngine(opts Options) (*Engine, error) {
	opts.Factory = f
	return New(opts)
}

// HasName reports whether name is one of f's names, ignoring case.
func (f *Factory) HasName(name string) bool {
	for _, n := range f.Names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// HasExtension reports whether ext, with or without a leading dot, is one
// of f's extensions.
func (f *Factory) HasExtension(ext string) bool {
	ext = strings.TrimPrefix(ext, ".")
	for _, e := range f.Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// MethodCallSyntax returns a statement calling method on obj.
func (f *Factory) MethodCallSyntax(obj, method string, args ...string) string {
	return fmt.Sprintf("%s.%s(%s)", obj, method, strings.Join(args, ", "))
}

// OutputStatement returns a statement printing s.
func (f *Factory) OutputStatement(s string) string {
	return "fmt.Println(" + strconv.Quote(s) + ")"
}

// Program joins statements into a script.
func (f *Factory) Program(statements ...string) string {
	return strings.Join(statements, "\n")
}

// Manager finds factories by name or file extension.
type Manager struct {
	mu        sync.RWMutex
	factories []*Factory
}

// NewManager returns a manager knowing DefaultFactory.
func NewManager() *Manager {
	return &Manager{factories: []*Factory{DefaultFactory}}
}

// Register adds f. Later registrations win lookups.
func (m *Manager) Register(f *Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories = append(m.factories, f)
}

// Factories returns the registered factories.
func (m *Manager) Factories() []*Factory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Factory(nil), m.factories...)
}

// ByName returns the factory known as name, or nil.
func (m *Manager) ByName(name string) *Factory {
	return m.find(func(f *Factory) bool { return f.HasName(name) })
}

// ByExtension returns the factory handling ext, or nil.
func (m *Manager) ByExtension(ext string) *Factory {
	return m.find(func(f *Factory) bool { return f.HasExtension(ext) })
}

func (m *Manager) find(match func(*Factory) bool) *Factory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.factories) - 1; i >= 0; i-- {
		if match(m.factories[i]) {
			return m.factories[i]
		}
	}
	return nil
}
