// Package generate assembles the synthetic unit: a complete Go source file
// wrapping a rewritten script body in an exported, panic-guarded function.
package generate

import (
	"path"
	"strings"

	"artifact/pkg/patterns"
)

// RequiredImports are needed by the wrapper itself.
var RequiredImports = []string{`import "fmt"`}

// Unit describes one synthetic unit.
type Unit struct {
	Package string // Package clause
	Name    string // Exported wrapper function name
	Source  string // Display name of the originating script, for the header
	Body    string // Rewritten script body

	Default []string              // Default import declarations
	Global  []string              // Configured global import declarations
	Session []string              // Declarations accumulated by the rewrite session
	Extra   []patterns.ImportSpec // Packages referenced by substituted types
}

// Document builds unit text line by line.
type Document struct {
	b      strings.Builder
	indent int
}

// Line appends one line at the current indentation.
func (d *Document) Line(s string) *Document {
	if s != "" {
		d.b.WriteString(strings.Repeat("\t", d.indent))
		d.b.WriteString(s)
	}
	d.b.WriteByte('\n')
	return d
}

// Raw appends s verbatim, terminating it with a newline when it lacks one.
func (d *Document) Raw(s string) *Document {
	d.b.WriteString(s)
	if !strings.HasSuffix(s, "\n") {
		d.b.WriteByte('\n')
	}
	return d
}

// Indent increases the indentation of subsequent lines.
func (d *Document) Indent() *Document { d.indent++; return d }

// Dedent decreases the indentation of subsequent lines.
func (d *Document) Dedent() *Document {
	if d.indent > 0 {
		d.indent--
	}
	return d
}

func (d *Document) String() string { return d.b.String() }

// Imports merges every import source of u in emission order: required,
// default, global, session, extra. Specs that name the same package under
// the same local name appear once. When two specs claim one local name the
// first wins, except that a session declaration replaces an earlier
// default, global or session one in place; the required imports are never
// replaced.
func Imports(u Unit) []patterns.ImportSpec {
	var specs []patterns.ImportSpec
	seen := make(map[string]bool)
	owner := make(map[string]int) // local name -> index in specs
	fixed := 0

	key := func(spec patterns.ImportSpec) string {
		name := spec.Name
		if name == path.Base(spec.Path) {
			name = ""
		}
		return name + " " + spec.Path
	}
	add := func(spec patterns.ImportSpec, override bool) {
		k := key(spec)
		if seen[k] {
			return
		}
		local := spec.Name
		if local == "" {
			local = path.Base(spec.Path)
		}
		if local != "_" && local != "." {
			if i, taken := owner[local]; taken {
				if !override || i < fixed {
					return
				}
				delete(seen, key(specs[i]))
				seen[k] = true
				specs[i] = spec
				return
			}
			owner[local] = len(specs)
		}
		seen[k] = true
		specs = append(specs, spec)
	}

	groups := []struct {
		decls    []string
		override bool
	}{
		{RequiredImports, false},
		{u.Default, false},
		{u.Global, false},
		{u.Session, true},
	}
	for gi, group := range groups {
		for _, decl := range group.decls {
			for _, spec := range patterns.ParseImports(decl) {
				add(spec, group.override)
			}
		}
		if gi == 0 {
			fixed = len(specs)
		}
	}
	for _, spec := range u.Extra {
		add(spec, false)
	}
	return specs
}

// Generate returns the complete unit text. The body is placed on its own
// lines without re-indentation: raw string literals spanning lines must
// keep their exact content, and gofmt restores indentation afterwards.
func Generate(u Unit) string {
	d := &Document{}

	d.Line("// Code generated by artifact. DO NOT EDIT.")
	if u.Source != "" {
		d.Line("// Source: " + u.Source)
	}
	d.Line("")
	d.Line("package " + u.Package)
	d.Line("")

	d.Line("import (").Indent()
	for _, spec := range Imports(u) {
		d.Line(strings.TrimPrefix(spec.Line(), "import "))
	}
	d.Dedent().Line(")")
	d.Line("")

	d.Line("// " + u.Name + " runs the script body. Any panic raised by the body is")
	d.Line("// returned as err.")
	d.Line("func " + u.Name + "(get func(string) any, set func(string, any), eval func(string) (any, error)) (result any, err error) {").Indent()
	d.Line("defer func() {").Indent()
	d.Line("if r := recover(); r != nil {").Indent()
	d.Line("if e, ok := r.(error); ok {").Indent()
	d.Line("err = e")
	d.Line("return")
	d.Dedent().Line("}")
	d.Line(`err = fmt.Errorf("%v", r)`)
	d.Dedent().Line("}")
	d.Dedent().Line("}()")
	d.Line("result = func() any {")
	d.Raw(u.Body)
	d.Indent().Line("return nil")
	d.Dedent().Line("}()")
	d.Line("return result, nil")
	d.Dedent().Line("}")

	return d.String()
}
