// expect: 6
total := 0
for _, x := range $[1, 2, 3] {
	total += x.(int)
}
return total
