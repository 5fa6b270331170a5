// expect: two
m := $["one" => 1, "two" => 2]
for k, v := range m {
	if v == 2 {
		return k
	}
}
return nil
