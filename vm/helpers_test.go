package vm

import (
	"fmt"
	"testing"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(fmt.Sprintf("%v %s", cond, format), args...)
	}
}

func runSource(t *testing.T, source, input string) string {
	t.Helper()
	obj, err := Translate(source)
	assert(t, err == nil, "translate failed: %v", err)

	out, err := Simulate(obj, []byte(input), nil)
	assert(t, err == nil, "simulate failed: %v", err)
	return string(out)
}
