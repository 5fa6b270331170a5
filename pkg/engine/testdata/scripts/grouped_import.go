import (
	"path"
	str "strings"
)

// expect: c.go
return str.TrimSpace(path.Base(" /a/b/c.go "))
