// Package rewrite turns script text into the body of a synthetic unit. It
// strips package and import declarations into the session, expands the
// collection shorthand and replaces substitution variables with typed
// lookups against the live bindings.
package rewrite

import (
	"fmt"
	"strconv"
	"strings"

	"artifact/pkg/bindings"
	"artifact/pkg/errors"
	"artifact/pkg/generate"
	"artifact/pkg/patterns"
)

// Options tunes a Rewriter.
type Options struct {
	// StrictBindings rejects scripts that substitute an absent or nil
	// binding instead of erasing the occurrence.
	StrictBindings bool
	// Getter is the identifier generated lookups call. Defaults to "get".
	Getter string
	// CanImport reports whether a generated unit may import a package.
	// Bindings whose types refer to other packages are substituted
	// without a cast. Nil allows every package.
	CanImport func(path string) bool
	// Reserved are the default and global import declarations every unit
	// carries. Substituted types never take their local names.
	Reserved []string
}

// Result is the outcome of one rewrite.
type Result struct {
	Body      string                // Script text with every construct rewritten
	Package   string                // Package in effect after the package pass
	Imports   []string              // Declarations found in this script, verbatim
	Types     []patterns.ImportSpec // Packages the substituted type expressions refer to
	Variables []string              // Substitution variables in order of appearance
}

// Rewriter applies the rewrite passes in their fixed order.
type Rewriter struct {
	session *Session
	opts    Options
}

// New returns a Rewriter that records declarations into session.
func New(session *Session, opts Options) *Rewriter {
	if opts.Getter == "" {
		opts.Getter = "get"
	}
	return &Rewriter{session: session, opts: opts}
}

// Session returns the session the rewriter accumulates into.
func (r *Rewriter) Session() *Session { return r.session }

// Rewrite expands text against ctx. The session is only updated once every
// pass has succeeded, so a failed rewrite leaves no trace.
func (r *Rewriter) Rewrite(text string, ctx bindings.Context) (*Result, error) {
	res := &Result{Package: r.session.Package()}

	body, err := r.packagePass(text, res)
	if err != nil {
		return nil, err
	}
	if body, err = r.importPass(body, res); err != nil {
		return nil, err
	}
	if body, err = r.collectionPass(body); err != nil {
		return nil, err
	}
	if body, err = r.substitutionPass(body, ctx, res); err != nil {
		return nil, err
	}
	res.Body = body

	r.session.SetPackage(res.Package)
	for _, decl := range res.Imports {
		r.session.AddImport(decl)
	}
	return res, nil
}

func (r *Rewriter) packagePass(text string, res *Result) (string, error) {
	return patterns.Package.ReplaceFunc(text, func(m *patterns.Match) (string, error) {
		res.Package = m.Group(patterns.NamePackageStatement)
		return "", nil
	})
}

func (r *Rewriter) importPass(text string, res *Result) (string, error) {
	return patterns.Import.ReplaceFunc(text, func(m *patterns.Match) (string, error) {
		res.Imports = append(res.Imports, strings.TrimSpace(m.Text))
		return "", nil
	})
}

func (r *Rewriter) collectionPass(text string) (string, error) {
	return patterns.Collection.ReplaceFunc(text, func(m *patterns.Match) (string, error) {
		items := splitItems(m.Group(patterns.NameCollectionItems))

		isMap := false
		for _, item := range items {
			if _, _, ok := cutArrow(item); ok {
				isMap = true
				break
			}
		}
		if !isMap {
			return "[]any{" + strings.Join(items, ", ") + "}", nil
		}

		entries := make([]string, 0, len(items))
		for _, item := range items {
			k, v, ok := cutArrow(item)
			if !ok {
				return "", &errors.RewriteError{Msg: fmt.Sprintf("map literal entry %q has no '=>'", item)}
			}
			entries = append(entries, k+": "+v)
		}
		return "map[any]any{" + strings.Join(entries, ", ") + "}", nil
	})
}

func (r *Rewriter) substitutionPass(text string, ctx bindings.Context, res *Result) (string, error) {
	declared := generate.Imports(generate.Unit{
		Default: r.opts.Reserved,
		Session: append(r.session.Imports(), res.Imports...),
	})
	reserved := make([]bindings.Import, len(declared))
	for i, spec := range declared {
		reserved[i] = bindings.Import{Name: spec.Name, Path: spec.Path}
	}
	describer := bindings.NewDescriber(r.opts.CanImport, reserved...)

	seen := make(map[string]bool)
	return patterns.SubstitutionVariable.ReplaceFunc(text, func(m *patterns.Match) (string, error) {
		name := m.Group(patterns.NameSubstitutionVariable)
		res.Variables = append(res.Variables, name)

		value, err := lookup(ctx, name)
		if err != nil {
			return "", err
		}

		getter := r.opts.Getter + "(" + strconv.Quote(name) + ")"
		if value == nil {
			if r.opts.StrictBindings {
				return "", &errors.RewriteError{Variable: name, Msg: "no value bound"}
			}
			return "", nil
		}

		info := describer.Describe(value)
		if !info.Expressible {
			return getter, nil
		}
		for _, imp := range info.Imports {
			if seen[imp.Name+" "+imp.Path] {
				continue
			}
			seen[imp.Name+" "+imp.Path] = true
			res.Types = append(res.Types, patterns.ImportSpec{Name: imp.Name, Path: imp.Path})
		}
		return getter + ".(" + info.Expr + ")", nil
	})
}

// lookup reads name from ctx, converting a panicking Context into a
// RewriteError.
func lookup(ctx bindings.Context, name string) (value any, err error) {
	if ctx == nil {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("%v", r)
			}
			err = (&errors.RewriteError{Variable: name, Msg: "binding lookup failed"}).CausedBy(cause)
		}
	}()
	return ctx.Get(name), nil
}

// splitItems splits a collection body at commas that are not nested in
// brackets or literals. Empty items are dropped.
func splitItems(s string) []string {
	var items []string
	start := 0
	scanTopLevel(s, func(i int, c rune) bool {
		if c == ',' {
			items = appendItem(items, s[start:i])
			start = i + 1
		}
		return true
	})
	return appendItem(items, s[start:])
}

func appendItem(items []string, item string) []string {
	if item = strings.TrimSpace(item); item != "" {
		items = append(items, item)
	}
	return items
}

// cutArrow splits a map entry at its first top-level "=>".
func cutArrow(item string) (key, value string, ok bool) {
	at := -1
	scanTopLevel(item, func(i int, c rune) bool {
		if c == '=' && strings.HasPrefix(item[i:], "=>") {
			at = i
			return false
		}
		return true
	})
	if at < 0 {
		return "", "", false
	}
	return strings.TrimSpace(item[:at]), strings.TrimSpace(item[at+2:]), true
}

// scanTopLevel calls fn with the byte offset of every rune of s that is
// outside literals and brackets, until fn returns false.
func scanTopLevel(s string, fn func(i int, c rune) bool) {
	var (
		depth   int
		quote   rune
		escaped bool
	)
	for i, c := range s {
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\' && quote != '`':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '(', '{', '[':
			depth++
		case ')', '}', ']':
			depth--
		default:
			if depth == 0 && !fn(i, c) {
				return
			}
		}
	}
}
