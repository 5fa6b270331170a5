// expect: 55
fib := func(n int) int { return 0 }
fib = func(n int) int {
	if n < 2 {
		return n
	}
	return fib(n-1) + fib(n-2)
}
return fib(10)
