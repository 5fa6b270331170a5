package backend

import (
	"strconv"
	"strings"

	"artifact/pkg/errors"

	"github.com/dlclark/regexp2"
)

// file:line:col: message, as printed by the go tool and the interpreter
var diagnosticLine = regexp2.MustCompile(`^\s*(?<file>[^\s:][^:]*):(?<line>\d+):(?:(?<col>\d+):)?\s*(?<msg>.+)$`, regexp2.None)

// ParseDiagnostics extracts positioned messages from compiler output. Lines
// that carry no position are ignored.
func ParseDiagnostics(output string) []errors.Diagnostic {
	var diags []errors.Diagnostic
	for _, line := range strings.Split(output, "\n") {
		m, err := diagnosticLine.FindStringMatch(strings.TrimRight(line, "\r"))
		if err != nil || m == nil {
			continue
		}
		d := errors.Diagnostic{Msg: m.GroupByName("msg").String()}
		d.Filename = m.GroupByName("file").String()
		d.Line, _ = strconv.Atoi(m.GroupByName("line").String())
		d.Column, _ = strconv.Atoi(m.GroupByName("col").String())
		diags = append(diags, d)
	}
	return diags
}
