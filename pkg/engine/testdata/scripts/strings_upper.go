// expect: HELLO
return strings.ToUpper("hello")
