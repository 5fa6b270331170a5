package rewrite

import (
	"bytes"
	htemplate "html/template"
	"strings"
	"testing"
	ttemplate "text/template"

	"artifact/pkg/bindings"
	"artifact/pkg/errors"
	"artifact/pkg/patterns"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panickyContext struct{ bindings.Context }

func (panickyContext) Get(name string) any { panic("backing store unavailable") }

func TestNextUnitNameIsUnique(t *testing.T) {
	a, b := NextUnitName(), NextUnitName()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, UnitPrefix))
}

func TestPackagePassLastWinsAndPersists(t *testing.T) {
	session := NewSession("")
	r := New(session, Options{})

	res, err := r.Rewrite("package one\npackage two;\nreturn 1", bindings.New())
	require.NoError(t, err)
	assert.Equal(t, "two", res.Package)
	assert.NotContains(t, res.Body, "package")
	assert.Equal(t, "two", session.Package())

	res, err = r.Rewrite("return 2", bindings.New())
	require.NoError(t, err)
	assert.Equal(t, "two", res.Package)
}

func TestDefaultPackage(t *testing.T) {
	assert.Equal(t, DefaultPackage, NewSession("").Package())
	assert.Equal(t, "scripts", NewSession("scripts").Package())
}

func TestImportPassAccumulatesVerbatim(t *testing.T) {
	session := NewSession("")
	r := New(session, Options{})

	res, err := r.Rewrite("import \"strings\"\nimport \"strings\"\nreturn strings.ToUpper(\"import \\\"os\\\"\")", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{`import "strings"`, `import "strings"`}, res.Imports)
	assert.Contains(t, res.Body, `strings.ToUpper("import \"os\"")`)

	_, err = r.Rewrite("import (\n\t\"os\"\n)\nreturn os.Getpid()", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{`import "strings"`, `import "strings"`, "import (\n\t\"os\"\n)"}, session.Imports())
}

func TestSubstitutionCastsToDynamicType(t *testing.T) {
	ctx := bindings.FromMap(map[string]any{
		"x":    5,
		"name": "gopher",
		"buf":  &bytes.Buffer{},
	})
	r := New(NewSession(""), Options{})

	res, err := r.Rewrite(`return $x + len($name) + $buf.Len() // $x`, ctx)
	require.NoError(t, err)
	assert.Equal(t, `return get("x").(int) + len(get("name").(string)) + get("buf").(*bytes.Buffer).Len() // $x`, res.Body)
	assert.Equal(t, []string{"x", "name", "buf"}, res.Variables)
	assert.Equal(t, []patterns.ImportSpec{{Path: "bytes"}}, res.Types)
}

func TestSubstitutionAliasesClashingPackages(t *testing.T) {
	ctx := bindings.FromMap(map[string]any{
		"a": htemplate.HTML("x"),
		"b": ttemplate.FuncMap{},
	})
	res, err := New(NewSession(""), Options{}).Rewrite("_ = $b\nreturn string($a)", ctx)
	require.NoError(t, err)
	assert.Equal(t, "_ = get(\"b\").(template.FuncMap)\nreturn string(get(\"a\").(template2.HTML))", res.Body)
	assert.Equal(t, []patterns.ImportSpec{
		{Path: "text/template"},
		{Name: "template2", Path: "html/template"},
	}, res.Types)
}

func TestSubstitutionAvoidsDeclaredNames(t *testing.T) {
	session := NewSession("")
	session.AddImport(`import "text/template"`)
	r := New(session, Options{Reserved: []string{`import buf "strings"`}})

	ctx := bindings.FromMap(map[string]any{
		"page": htemplate.HTML("x"),
		"sb":   &strings.Builder{},
	})
	res, err := r.Rewrite("import fmt2 \"os\"\nreturn string($page) + $sb.String()", ctx)
	require.NoError(t, err)
	assert.Equal(t, `return string(get("page").(template2.HTML)) + get("sb").(*buf.Builder).String()`, strings.TrimSpace(res.Body))
	assert.Equal(t, []patterns.ImportSpec{
		{Name: "template2", Path: "html/template"},
		{Name: "buf", Path: "strings"},
	}, res.Types)
}

func TestSubstitutionSkipsCastForUnimportablePackages(t *testing.T) {
	onlyStd := func(path string) bool { return path == "bytes" }
	ctx := bindings.FromMap(map[string]any{
		"buf":  &bytes.Buffer{},
		"page": htemplate.HTML("x"),
	})
	res, err := New(NewSession(""), Options{CanImport: onlyStd}).Rewrite("return $buf.Len(), $page", ctx)
	require.NoError(t, err)
	assert.Equal(t, `return get("buf").(*bytes.Buffer).Len(), get("page")`, res.Body)
	assert.Equal(t, []patterns.ImportSpec{{Path: "bytes"}}, res.Types)
}

func TestSubstitutionArrayDimensions(t *testing.T) {
	ctx := bindings.FromMap(map[string]any{"grid": [][]int{{1, 2}, {3}}})
	res, err := New(NewSession(""), Options{}).Rewrite("return len($grid)", ctx)
	require.NoError(t, err)
	assert.Equal(t, `return len(get("grid").([][]int))`, res.Body)
	assert.Equal(t, 2, strings.Count(res.Body, "[]"))
}

func TestSubstitutionAbsentBindingIsErased(t *testing.T) {
	ctx := bindings.FromMap(map[string]any{"nothing": nil})
	r := New(NewSession(""), Options{})

	res, err := r.Rewrite("x := 1 + $missing\nreturn $nothing", ctx)
	require.NoError(t, err)
	assert.Equal(t, "x := 1 + \nreturn ", res.Body)
}

func TestSubstitutionStrictBindings(t *testing.T) {
	session := NewSession("")
	r := New(session, Options{StrictBindings: true})

	_, err := r.Rewrite("package p\nimport \"os\"\nreturn $missing", bindings.New())
	require.Error(t, err)

	var re *errors.RewriteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "missing", re.Variable)

	// nothing from the failed script leaks into the session
	assert.Equal(t, DefaultPackage, session.Package())
	assert.Empty(t, session.Imports())
}

func TestSubstitutionInexpressibleTypeIsUncast(t *testing.T) {
	ctx := bindings.FromMap(map[string]any{"point": struct{ X int }{1}})
	res, err := New(NewSession(""), Options{}).Rewrite("return $point", ctx)
	require.NoError(t, err)
	assert.Equal(t, `return get("point")`, res.Body)
}

func TestSubstitutionLookupPanicIsRewriteError(t *testing.T) {
	_, err := New(NewSession(""), Options{}).Rewrite("return $x", panickyContext{})
	require.Error(t, err)
	assert.Equal(t, "Rewrite", errors.KindOf(err))
	assert.Contains(t, err.Error(), "$x")
}

func TestCollectionLiterals(t *testing.T) {
	r := New(NewSession(""), Options{})

	res, err := r.Rewrite(`a := $[1, "x,y", f(2, 3)]; m := $["k" => 1, "=>" => 2]; e := $[]`, nil)
	require.NoError(t, err)
	assert.Equal(t, `a := []any{1, "x,y", f(2, 3)}; m := map[any]any{"k": 1, "=>": 2}; e := []any{}`, res.Body)

	_, err = r.Rewrite(`m := $["k" => 1, 2]`, nil)
	assert.Error(t, err)
}

func TestCollectionWithSubstitution(t *testing.T) {
	ctx := bindings.FromMap(map[string]any{"a": 1})
	res, err := New(NewSession(""), Options{}).Rewrite(`return $[$a]`, ctx)
	require.NoError(t, err)
	assert.Equal(t, `return []any{get("a").(int)}`, res.Body)
}

func TestCustomGetter(t *testing.T) {
	ctx := bindings.FromMap(map[string]any{"a": true})
	res, err := New(NewSession(""), Options{Getter: "lookup"}).Rewrite(`return $a`, ctx)
	require.NoError(t, err)
	assert.Equal(t, `return lookup("a").(bool)`, res.Body)
}
