import "unicode/utf8"

// expect: 5
return utf8.RuneCountInString("héllo")
