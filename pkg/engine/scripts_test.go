package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"artifact/pkg/bindings"
	"artifact/pkg/errors"

	"github.com/stretchr/testify/require"
)

// Expectation represents the expected outcome of a script.
type Expectation struct {
	ResultType string // "value", "runtime_error" or "compile_error"
	Value      string
	Bindings   map[string]any
}

var (
	expectRegex   = regexp.MustCompile(`^//\s*(expect(?:_runtime_error|_compile_error)?):\s*(.*)`)
	bindingsRegex = regexp.MustCompile(`^//\s*bindings:\s*(.*)`)
)

// parseExpectation extracts the expectation from the script's comments.
// Supported formats:
//
//	// expect: value
//	// expect_runtime_error: message
//	// expect_compile_error: message
//	// bindings: name=value name2=value2
func parseExpectation(scriptContent string) (*Expectation, error) {
	exp := &Expectation{Bindings: map[string]any{}}
	found := false
	for _, line := range strings.Split(scriptContent, "\n") {
		line = strings.TrimSpace(line)
		if m := bindingsRegex.FindStringSubmatch(line); m != nil {
			for _, pair := range strings.Fields(m[1]) {
				k, v, _ := strings.Cut(pair, "=")
				exp.Bindings[k] = v
			}
			continue
		}
		m := expectRegex.FindStringSubmatch(line)
		if m == nil || found {
			continue
		}
		found = true
		exp.Value = strings.TrimSpace(m[2])
		switch m[1] {
		case "expect":
			exp.ResultType = "value"
		case "expect_runtime_error":
			exp.ResultType = "runtime_error"
		case "expect_compile_error":
			exp.ResultType = "compile_error"
		default:
			return nil, fmt.Errorf("unknown expectation type: %s", m[1])
		}
	}
	if !found {
		return nil, fmt.Errorf("no expectation comment found (e.g., // expect: value)")
	}
	return exp, nil
}

func TestScripts(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scripts", "*.go"))
	require.NoError(t, err)
	require.NotEmpty(t, paths, "no scripts found")

	for _, scriptPath := range paths {
		name := strings.TrimSuffix(filepath.Base(scriptPath), ".go")
		t.Run(name, func(t *testing.T) {
			content, err := os.ReadFile(scriptPath)
			require.NoError(t, err)

			expectation, err := parseExpectation(string(content))
			if err != nil {
				t.Skipf("Failed to parse expectation in %q: %v", scriptPath, err)
			}

			e := newEngine(t)
			result, err := e.EvalWith(string(content), bindings.FromMap(expectation.Bindings))

			switch expectation.ResultType {
			case "value":
				if err != nil {
					t.Fatalf("Expected value %q, but got error:\n%v", expectation.Value, err)
				}
				if actual := fmt.Sprint(result); actual != expectation.Value {
					t.Errorf("Expected output %q, but got %q", expectation.Value, actual)
				}
			case "runtime_error":
				if errors.KindOf(err) != "Execution" {
					t.Fatalf("Expected runtime error containing %q, but got %v", expectation.Value, err)
				}
				if !strings.Contains(err.Error(), expectation.Value) {
					t.Errorf("Expected runtime error containing %q, but got %q", expectation.Value, err.Error())
				}
			case "compile_error":
				if errors.KindOf(err) != "Compile" {
					t.Fatalf("Expected compile error containing %q, but got %v (result %v)", expectation.Value, err, result)
				}
				if !strings.Contains(err.Error(), expectation.Value) {
					t.Errorf("Expected compile error containing %q, but got %q", expectation.Value, err.Error())
				}
			}
		})
	}
}
