// expect_compile_error: declared and not used
x := 1
return 2
