// Package config gathers engine settings from defaults, an optional YAML
// file and ARTIFACT_* environment variables, in that order of precedence.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"artifact/pkg/patterns"
	"artifact/pkg/source"

	"gopkg.in/yaml.v3"
)

// Environment variables.
const (
	EnvDump    = "ARTIFACT_DUMP"
	EnvImports = "ARTIFACT_IMPORTS"
	EnvConfig  = "ARTIFACT_CONFIG"
	EnvBackend = "ARTIFACT_BACKEND"
	EnvTmpDir  = "ARTIFACT_TMPDIR"
)

// BuiltinImports is used when no valid default import list is configured.
var BuiltinImports = []string{
	`import "bufio"`,
	`import "bytes"`,
	`import "context"`,
	`import "encoding/json"`,
	`import "errors"`,
	`import "fmt"`,
	`import "io"`,
	`import "math"`,
	`import "os"`,
	`import "path/filepath"`,
	`import "regexp"`,
	`import "sort"`,
	`import "strconv"`,
	`import "strings"`,
	`import "sync"`,
	`import "time"`,
	`import "unicode"`,
}

// CacheConfig bounds the script cache.
type CacheConfig struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// PluginConfig tunes the plugin backend.
type PluginConfig struct {
	GoBinary         string   `yaml:"go_binary"`
	ShareHostModules bool     `yaml:"share_host_modules"`
	BuildFlags       []string `yaml:"build_flags"`
}

// Config holds every engine setting.
type Config struct {
	Dump           bool         `yaml:"dump"`            // Print generated units to stdout before compiling
	ImportsFile    string       `yaml:"imports_file"`    // File listing default import declarations, one per line
	DefaultImports []string     `yaml:"default_imports"` // Explicit default import declarations
	GlobalImports  []string     `yaml:"global_imports"`  // Declarations added to every unit after the defaults
	Backend        string       `yaml:"backend"`         // "interp" or "plugin"
	ScratchDir     string       `yaml:"scratch_dir"`     // Parent of the src/ and bin/ scratch roots
	Package        string       `yaml:"package"`         // Initial session package
	StrictBindings bool         `yaml:"strict_bindings"` // Fail on absent substitution variables
	TypeCheck      bool         `yaml:"type_check"`      // Type-check units before handing them to the backend
	LineSeparator  string       `yaml:"line_separator"`  // Separator used when draining readers
	ClassPath      []string     `yaml:"classpath"`       // Extra roots registered on the process classpath
	Cache          CacheConfig  `yaml:"cache"`
	Plugin         PluginConfig `yaml:"plugin"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Backend:       "interp",
		ScratchDir:    filepath.Join(os.TempDir(), "artifact"),
		Package:       "artifact",
		TypeCheck:     true,
		LineSeparator: source.DefaultLineSeparator,
		Plugin:        PluginConfig{GoBinary: "go"},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.LoadFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto c. Keys missing from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	return nil
}

// FromEnv returns the defaults overlaid with the file named by
// ARTIFACT_CONFIG (if any) and the remaining ARTIFACT_* variables.
func FromEnv() (*Config, error) {
	return FromLookup(os.Getenv)
}

// FromLookup is FromEnv with an injectable environment.
func FromLookup(getenv func(string) string) (*Config, error) {
	cfg := Default()
	if path := getenv(EnvConfig); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(getenv)
	return cfg, nil
}

// ApplyEnv overrides c with ARTIFACT_* variables that are set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvDump); v != "" {
		// only a true value turns dumping on
		dump, err := strconv.ParseBool(v)
		c.Dump = err == nil && dump
	}
	if v := getenv(EnvImports); v != "" {
		c.ImportsFile = v
	}
	if v := getenv(EnvBackend); v != "" {
		c.Backend = v
	}
	if v := getenv(EnvTmpDir); v != "" {
		c.ScratchDir = filepath.Join(v, "artifact")
	}
}

// SourceRoot is the scratch root generated units are written under.
func (c *Config) SourceRoot() string { return c.ScratchDir }

// OutputRoot is the scratch root build products are written under.
func (c *Config) OutputRoot() string { return filepath.Join(c.ScratchDir, "bin") }

// ResolveDefaultImports returns the default import declarations: the
// explicit list if it has valid entries, else the valid lines of the
// imports file, else BuiltinImports. Invalid entries are dropped silently.
func (c *Config) ResolveDefaultImports() []string {
	if valid := ValidImports(c.DefaultImports); len(valid) > 0 {
		return valid
	}
	if c.ImportsFile != "" {
		if lines, err := ReadImportsFile(c.ImportsFile); err == nil && len(lines) > 0 {
			return lines
		}
	}
	return append([]string(nil), BuiltinImports...)
}

// ReadImportsFile returns the lines of path that are import declarations.
func ReadImportsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ValidImports(lines), nil
}

// ValidImports keeps the entries that are exactly one import declaration.
func ValidImports(lines []string) []string {
	var valid []string
	for _, line := range lines {
		if patterns.IsImportDeclaration(line) {
			valid = append(valid, strings.TrimSpace(line))
		}
	}
	return valid
}
