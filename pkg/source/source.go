package source

import (
	"bufio"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultLineSeparator is used when draining readers unless configured otherwise.
const DefaultLineSeparator = "\n"

// SourceFile represents script text with its display metadata
type SourceFile struct {
	Name    string   // Display name (e.g., "script.go", "<stdin>", "<eval>")
	Path    string   // Full file path (empty for REPL/eval)
	Content string   // The script text exactly as the caller supplied it
	lines   []string // Cached split lines (lazy initialization)
}

// NewSourceFile creates a new source file
func NewSourceFile(name, path, content string) *SourceFile {
	return &SourceFile{
		Name:    name,
		Path:    path,
		Content: content,
	}
}

// NewEvalSource creates a source file for eval input
func NewEvalSource(content string) *SourceFile {
	return &SourceFile{
		Name:    "<eval>",
		Path:    "",
		Content: content,
	}
}

// NewReplSource creates a source file for REPL input
func NewReplSource(content string) *SourceFile {
	return &SourceFile{
		Name:    "<repl>",
		Path:    "",
		Content: content,
	}
}

// FromFile creates a SourceFile from a file path and content
func FromFile(filePath, content string) *SourceFile {
	name := filepath.Base(filePath)
	return NewSourceFile(name, filePath, content)
}

// FromReader drains r into a SourceFile named name. See ReadAll.
func FromReader(name string, r io.Reader, lineSeparator string) (*SourceFile, error) {
	content, err := ReadAll(r, lineSeparator)
	if err != nil {
		return nil, err
	}
	return NewSourceFile(name, "", content), nil
}

// Lines returns the source split into lines (cached)
func (sf *SourceFile) Lines() []string {
	if sf.lines == nil {
		sf.lines = strings.Split(sf.Content, "\n")
	}
	return sf.lines
}

// DisplayPath returns the best path for display (prefers Path, falls back to Name)
func (sf *SourceFile) DisplayPath() string {
	if sf.Path != "" {
		return sf.Path
	}
	return sf.Name
}

// IsFile returns true if this represents an actual file (has a path)
func (sf *SourceFile) IsFile() bool {
	return sf.Path != ""
}

// ReadAll drains r line by line. Every line, including the last one, is
// terminated with lineSeparator regardless of how it ended in the input
// ("\n", "\r\n" or EOF). A UTF-8 or UTF-16 byte order mark selects the
// decoding; input without one is read as UTF-8.
func ReadAll(r io.Reader, lineSeparator string) (string, error) {
	if lineSeparator == "" {
		lineSeparator = DefaultLineSeparator
	}

	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	br := bufio.NewReader(decoded)

	var b strings.Builder
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			b.WriteString(line)
			b.WriteString(lineSeparator)
		}
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return "", err
		}
	}
}
