// expect_compile_error: undefined: notDefined
return notDefined
