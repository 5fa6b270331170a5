// Package patterns holds the lexical matchers the rewriter is built on:
// package declarations, import declarations, substitution variables,
// collection literals and insignificant whitespace.
//
// The expressions need look-ahead and look-behind (keyword exclusion,
// "not part of a longer identifier"), so they are compiled with regexp2
// rather than the standard library's RE2 engine. Every matcher is applied
// through a scanner that consumes string, raw string and rune literals and
// comments first, so nothing inside them is ever rewritten.
package patterns

import (
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"
)

// Group names exposed to callers.
const (
	NamePackageStatement     = "PackageStatement"
	NameImportStatement      = "ImportStatement"
	NameImportName           = "ImportName"
	NameImportPath           = "ImportPath"
	NameImportSpecs          = "ImportSpecs"
	NameSubstitutionVariable = "SubstitutionVariable"
	NameCollectionItems      = "CollectionItems"

	nameLiteral    = "Literal"
	nameWhiteSpace = "WhiteSpace"
)

const (
	regexKeywords = `break|case|chan|const|continue|default|defer|else|fallthrough|for|func|go|goto|if|import|interface|map|package|range|return|select|struct|switch|type|var`

	regexIdentifierPart = `[\p{L}\p{Nd}_]`
	regexNotAfterWord   = `(?<![\p{L}\p{Nd}_.$])`

	// RegexIdentifier matches a Go identifier that is not a keyword.
	RegexIdentifier = `(?!(?:` + regexKeywords + `)(?!` + regexIdentifierPart + `))[\p{L}_]` + regexIdentifierPart + `*`

	regexInterpretedString = `"(?:\\.|[^"\\\n])*"`
	regexRawString         = "`[^`]*`"
	regexRune              = `'(?:\\.|[^'\\\n])*'`
	regexLineComment       = `//[^\n]*\n?`
	regexBlockComment      = `/\*[\s\S]*?\*/`

	regexLiteral = regexInterpretedString + `|` + regexRawString + `|` + regexRune + `|` + regexLineComment + `|` + regexBlockComment

	regexImportName = `(?:` + RegexIdentifier + `|\.)`
	regexImportPath = `(?:"[^"\\\n]*"|` + "`[^`\\n]*`" + `)`
	regexImportSpec = `(?:` + regexImportName + `\s+)?` + regexImportPath

	regexImportGrouped = `import\s*\((?<` + NameImportSpecs + `>(?:\s*` + regexImportSpec + `[ \t]*;?)*)\s*\)[ \t]*;?`
	regexImportSingle  = `import\s+(?:(?<` + NameImportName + `>` + regexImportName + `)\s+)?(?<` + NameImportPath + `>` + regexImportPath + `)[ \t]*;?`

	// RegexImportStatement matches a single or grouped import declaration.
	RegexImportStatement = regexNotAfterWord + `(?<` + NameImportStatement + `>` + regexImportGrouped + `|` + regexImportSingle + `)`

	// RegexPackageStatement matches a package clause, optionally terminated by ';'.
	RegexPackageStatement = regexNotAfterWord + `package\s+(?<` + NamePackageStatement + `>` + RegexIdentifier + `)[ \t]*;?`

	// RegexSubstitutionVariable matches $name where name is an identifier
	// and the '$' is not glued to a preceding identifier.
	RegexSubstitutionVariable = `(?<![\p{L}\p{Nd}_$])\$(?<` + NameSubstitutionVariable + `>` + RegexIdentifier + `)`

	// RegexCollection matches the $[...] list and map literal shorthand.
	RegexCollection = `(?<![\p{L}\p{Nd}_$])\$\[(?<` + NameCollectionItems + `>[^\[\]]*)\]`

	// RegexWhiteSpace matches any run of whitespace. It is only ever applied
	// outside literals.
	RegexWhiteSpace = `\s+`
)

// Pattern is one lexical construct together with a literal-aware scanner.
type Pattern struct {
	scan *regexp2.Regexp // literal | construct
}

var (
	// Package matches package clauses.
	Package = newPattern(RegexPackageStatement)
	// Import matches import declarations.
	Import = newPattern(RegexImportStatement)
	// SubstitutionVariable matches $identifier occurrences.
	SubstitutionVariable = newPattern(RegexSubstitutionVariable)
	// Collection matches $[...] literals.
	Collection = newPattern(RegexCollection)
	// WhiteSpace matches insignificant whitespace.
	WhiteSpace = newPatternNamed(RegexWhiteSpace, nameWhiteSpace)

	importSpec        = regexp2.MustCompile(`(?:(?<`+NameImportName+`>`+regexImportName+`)\s+)?(?<`+NameImportPath+`>`+regexImportPath+`)`, regexp2.None)
	importDeclaration = regexp2.MustCompile(`^\s*`+RegexImportStatement+`\s*$`, regexp2.None)
	identifier        = regexp2.MustCompile(`^`+RegexIdentifier+`$`, regexp2.None)
)

func newPattern(construct string) *Pattern {
	return &Pattern{
		scan: regexp2.MustCompile(`(?<`+nameLiteral+`>`+regexLiteral+`)|`+construct, regexp2.None),
	}
}

func newPatternNamed(construct, group string) *Pattern {
	return newPattern(`(?<`+group+`>`+construct+`)`)
}

// Match is one occurrence of a construct found outside literals.
type Match struct {
	Text   string            // Whole matched text
	Index  int               // Rune offset in the scanned input
	Groups map[string]string // Named groups that participated in the match
}

// Group returns the named group's text or "".
func (m *Match) Group(name string) string { return m.Groups[name] }

// ReplaceFunc calls fn for every occurrence of the construct outside
// literals and comments and substitutes its result. Literals are copied
// unchanged. The first error returned by fn aborts the scan.
func (p *Pattern) ReplaceFunc(input string, fn func(m *Match) (string, error)) (string, error) {
	return p.scanAll(input, func(m *regexp2.Match, literal bool) (string, error) {
		if literal {
			return m.String(), nil
		}
		return fn(p.toMatch(m))
	})
}

// FindAll returns every occurrence of the construct outside literals.
func (p *Pattern) FindAll(input string) []*Match {
	var matches []*Match
	_, _ = p.scanAll(input, func(m *regexp2.Match, literal bool) (string, error) {
		if !literal {
			matches = append(matches, p.toMatch(m))
		}
		return m.String(), nil
	})
	return matches
}

func (p *Pattern) scanAll(input string, fn func(m *regexp2.Match, literal bool) (string, error)) (string, error) {
	runes := []rune(input)

	var b strings.Builder
	b.Grow(len(input))

	last := 0
	m, err := p.scan.FindRunesMatch(runes)
	for m != nil && err == nil {
		b.WriteString(string(runes[last:m.Index]))

		literal := len(m.GroupByName(nameLiteral).Captures) > 0
		replacement, ferr := fn(m, literal)
		if ferr != nil {
			return "", ferr
		}
		b.WriteString(replacement)

		last = m.Index + m.Length
		m, err = p.scan.FindNextMatch(m)
	}
	if err != nil {
		return "", err
	}

	b.WriteString(string(runes[last:]))
	return b.String(), nil
}

func (p *Pattern) toMatch(m *regexp2.Match) *Match {
	match := &Match{
		Text:   m.String(),
		Index:  m.Index,
		Groups: make(map[string]string),
	}
	for _, g := range m.Groups() {
		if g.Name == "" || g.Name == nameLiteral || len(g.Captures) == 0 {
			continue
		}
		if _, err := strconv.Atoi(g.Name); err == nil {
			continue
		}
		match.Groups[g.Name] = g.String()
	}
	return match
}

// ImportSpec is one imported package of a declaration.
type ImportSpec struct {
	Name string // Explicit name, "_" or "."; empty when implied by the path
	Path string // Unquoted import path
}

// Line renders the spec as a single-line import declaration.
func (s ImportSpec) Line() string {
	if s.Name != "" {
		return "import " + s.Name + " " + quote(s.Path)
	}
	return "import " + quote(s.Path)
}

// ParseImports returns the specs of a single or grouped import declaration.
func ParseImports(declaration string) []ImportSpec {
	var specs []ImportSpec
	for _, m := range Import.FindAll(declaration) {
		if path := m.Group(NameImportPath); path != "" {
			specs = append(specs, ImportSpec{Name: m.Group(NameImportName), Path: unquote(path)})
			continue
		}
		specs = append(specs, parseSpecs(m.Group(NameImportSpecs))...)
	}
	return specs
}

func parseSpecs(body string) []ImportSpec {
	var specs []ImportSpec
	m, err := importSpec.FindStringMatch(body)
	for m != nil && err == nil {
		specs = append(specs, ImportSpec{
			Name: m.GroupByName(NameImportName).String(),
			Path: unquote(m.GroupByName(NameImportPath).String()),
		})
		m, err = importSpec.FindNextMatch(m)
	}
	return specs
}

func quote(path string) string { return strconv.Quote(path) }

func unquote(lit string) string {
	if s, err := strconv.Unquote(lit); err == nil {
		return s
	}
	return lit
}

// IsImportDeclaration reports whether line is exactly one import declaration.
func IsImportDeclaration(line string) bool {
	ok, err := importDeclaration.MatchString(line)
	return err == nil && ok
}

// IsIdentifier reports whether s is a Go identifier that is not a keyword.
func IsIdentifier(s string) bool {
	ok, err := identifier.MatchString(s)
	return err == nil && ok
}

// Normalize removes all whitespace outside string, raw string and rune
// literals. Whitespace inside comments is removed as well, except the
// newline that terminates a line comment, which is semantically relevant.
// Normalize is idempotent.
func Normalize(input string) string {
	out, err := WhiteSpace.scanAll(input, func(m *regexp2.Match, literal bool) (string, error) {
		if !literal {
			return "", nil
		}
		text := m.String()
		if strings.HasPrefix(text, "//") || strings.HasPrefix(text, "/*") {
			return squeezeComment(text), nil
		}
		return text, nil
	})
	if err != nil {
		return input
	}
	return out
}

func squeezeComment(comment string) string {
	terminated := strings.HasPrefix(comment, "//") && strings.HasSuffix(comment, "\n")
	squeezed := strings.Join(strings.Fields(comment), "")
	if terminated {
		squeezed += "\n"
	}
	return squeezed
}
