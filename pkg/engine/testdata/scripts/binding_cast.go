// bindings: greeting=hello
// expect: hello, world
return $greeting + ", world"
