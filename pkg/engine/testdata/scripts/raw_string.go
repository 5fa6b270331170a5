// expect: $notReplaced
s := `$notReplaced`
return s
