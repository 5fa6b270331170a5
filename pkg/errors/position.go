package errors

import "fmt"

// Position represents a location inside a generated unit or script.
// Line and Column are 1-based; a zero Line means "unknown".
type Position struct {
	Filename string // Unit path on disk, or a display name like "<eval>"
	Line     int    // 1-based line number
	Column   int    // 1-based column number
}

// IsValid reports whether the position carries line information.
func (p Position) IsValid() bool { return p.Line > 0 }

func (p Position) String() string {
	switch {
	case !p.IsValid() && p.Filename == "":
		return "-"
	case !p.IsValid():
		return p.Filename
	case p.Filename == "":
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	default:
		return fmt.Sprintf("%s:%d:%d", p.Filename, p.Line, p.Column)
	}
}
