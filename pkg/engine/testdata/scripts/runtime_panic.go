// expect_runtime_error: custom failure
panic(errors.New("custom failure"))
