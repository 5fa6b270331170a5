package bindings

import (
	"fmt"
	"go/token"
	"path"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Import is a package a type expression refers to.
type Import struct {
	Name string // Explicit name, set when it differs from the last path element
	Path string
}

// TypeInfo describes the dynamic type of a bound value in a form that can be
// written into generated source.
type TypeInfo struct {
	Expr        string   // Go type expression, e.g. "[][]*bytes.Buffer"
	Imports     []Import // Packages Expr refers to, sorted by path
	Dims        int      // Leading slice/array nesting depth
	Expressible bool     // False when the type cannot be named from another package
}

// Describe returns the TypeInfo of v's dynamic type. A nil v is not
// expressible.
func Describe(v any) TypeInfo {
	return NewDescriber(nil).Describe(v)
}

// DescribeType returns the TypeInfo for t.
func DescribeType(t reflect.Type) TypeInfo {
	return NewDescriber(nil).DescribeType(t)
}

// Describer names types for one generated unit. Local package names are
// allocated once per Describer: types from different packages that share a
// name get distinct aliases, and reserved names are never reused.
type Describer struct {
	canImport func(path string) bool
	paths     map[string]string // import path -> local name
	names     map[string]bool   // local names in use
}

// NewDescriber returns a Describer. canImport filters the packages a type
// may refer to (nil allows every importable package). reserved lists imports
// the unit already declares; types from those packages reuse their names.
func NewDescriber(canImport func(path string) bool, reserved ...Import) *Describer {
	d := &Describer{
		canImport: canImport,
		paths:     make(map[string]string),
		names:     make(map[string]bool),
	}
	for _, imp := range reserved {
		name := imp.Name
		if name == "" {
			name = path.Base(imp.Path)
		}
		if name == "_" || name == "." {
			continue
		}
		if _, ok := d.paths[imp.Path]; !ok && !d.names[name] {
			d.paths[imp.Path] = name
		}
		d.names[name] = true
	}
	return d
}

// Describe returns the TypeInfo of v's dynamic type.
func (d *Describer) Describe(v any) TypeInfo {
	if v == nil {
		return TypeInfo{}
	}
	return d.DescribeType(reflect.TypeOf(v))
}

// DescribeType returns the TypeInfo for t. Names allocated while describing
// a type that turns out not to be expressible are released.
func (d *Describer) DescribeType(t reflect.Type) TypeInfo {
	if t == nil {
		return TypeInfo{}
	}

	dd := &describer{parent: d, used: make(map[string]string)}
	expr, ok := dd.expr(t)
	if !ok {
		return TypeInfo{}
	}

	info := TypeInfo{Expr: expr, Expressible: true}
	for e := t; e.Kind() == reflect.Slice || e.Kind() == reflect.Array; e = e.Elem() {
		info.Dims++
	}
	for p, name := range dd.used {
		if _, known := d.paths[p]; !known {
			d.paths[p] = name
			d.names[name] = true
		}
		imp := Import{Path: p}
		if name != path.Base(p) {
			imp.Name = name
		}
		info.Imports = append(info.Imports, imp)
	}
	sort.Slice(info.Imports, func(i, j int) bool { return info.Imports[i].Path < info.Imports[j].Path })
	return info
}

// localName returns the name pkgPath is referred to by, allocating an alias
// when pkgName is taken.
func (dd *describer) localName(pkgPath, pkgName string) string {
	if name, ok := dd.parent.paths[pkgPath]; ok {
		return name
	}
	if name, ok := dd.used[pkgPath]; ok {
		return name
	}
	taken := func(n string) bool {
		if dd.parent.names[n] {
			return true
		}
		for _, u := range dd.used {
			if u == n {
				return true
			}
		}
		return false
	}
	name := pkgName
	for i := 2; taken(name); i++ {
		name = pkgName + strconv.Itoa(i)
	}
	dd.used[pkgPath] = name
	return name
}

type describer struct {
	parent *Describer
	used   map[string]string // import path -> local name, for this type
}

func (d *describer) expr(t reflect.Type) (string, bool) {
	if t.Name() != "" {
		return d.named(t)
	}

	switch t.Kind() {
	case reflect.Pointer:
		elem, ok := d.expr(t.Elem())
		return "*" + elem, ok
	case reflect.Slice:
		elem, ok := d.expr(t.Elem())
		return "[]" + elem, ok
	case reflect.Array:
		elem, ok := d.expr(t.Elem())
		return fmt.Sprintf("[%d]%s", t.Len(), elem), ok
	case reflect.Map:
		key, ok := d.expr(t.Key())
		if !ok {
			return "", false
		}
		elem, ok := d.expr(t.Elem())
		return "map[" + key + "]" + elem, ok
	case reflect.Chan:
		elem, ok := d.expr(t.Elem())
		switch t.ChanDir() {
		case reflect.RecvDir:
			return "<-chan " + elem, ok
		case reflect.SendDir:
			return "chan<- " + elem, ok
		default:
			if t.Elem().Kind() == reflect.Chan && t.Elem().ChanDir() == reflect.RecvDir {
				return "chan (" + elem + ")", ok
			}
			return "chan " + elem, ok
		}
	case reflect.Func:
		return d.fn(t)
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return "any", true
		}
	}
	// anonymous structs and interfaces with methods
	return "", false
}

func (d *describer) fn(t reflect.Type) (string, bool) {
	var b strings.Builder
	b.WriteString("func(")
	for i := 0; i < t.NumIn(); i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		in := t.In(i)
		if t.IsVariadic() && i == t.NumIn()-1 {
			elem, ok := d.expr(in.Elem())
			if !ok {
				return "", false
			}
			b.WriteString("..." + elem)
			continue
		}
		s, ok := d.expr(in)
		if !ok {
			return "", false
		}
		b.WriteString(s)
	}
	b.WriteString(")")

	switch t.NumOut() {
	case 0:
	case 1:
		s, ok := d.expr(t.Out(0))
		if !ok {
			return "", false
		}
		b.WriteString(" " + s)
	default:
		b.WriteString(" (")
		for i := 0; i < t.NumOut(); i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			s, ok := d.expr(t.Out(i))
			if !ok {
				return "", false
			}
			b.WriteString(s)
		}
		b.WriteString(")")
	}
	return b.String(), true
}

func (d *describer) named(t reflect.Type) (string, bool) {
	pkgPath := t.PkgPath()
	if pkgPath == "" {
		if t.Kind() == reflect.UnsafePointer {
			return "", false
		}
		// predeclared: int, string, error, ...
		return t.Name(), true
	}

	name := t.Name()
	if strings.ContainsAny(name, "[]") || !token.IsExported(name) || !importable(pkgPath) {
		return "", false
	}
	if d.parent.canImport != nil && !d.parent.canImport(pkgPath) {
		return "", false
	}

	qualified := t.String()
	dot := strings.LastIndex(qualified, "."+name)
	if dot <= 0 {
		return "", false
	}
	pkgName := qualified[:dot]
	if !token.IsIdentifier(pkgName) {
		return "", false
	}
	return d.localName(pkgPath, pkgName) + "." + name, true
}

func importable(pkgPath string) bool {
	if pkgPath == "main" || pkgPath == "command-line-arguments" {
		return false
	}
	for _, elem := range strings.Split(pkgPath, "/") {
		if elem == "internal" {
			return false
		}
	}
	return true
}
