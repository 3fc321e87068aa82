package check_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-lang/forge/check"
	"github.com/forge-lang/forge/parser"
)

func checkSrc(t *testing.T, src string) []check.Warning {
	t.Helper()
	prog, err := parser.Parse(src)
	require.NoError(t, err)
	return check.Check(prog)
}

func TestNoWarningsOnClean(t *testing.T) {
	ws := checkSrc(t, `let x: int = 1`)
	assert.Empty(t, ws)
}

func TestAnnotationMismatch(t *testing.T) {
	ws := checkSrc(t, `let x: int = "hello"`)
	require.Len(t, ws, 1)
	assert.Contains(t, ws[0].Msg, "int")
}

func TestUnknownAnnotatedType(t *testing.T) {
	ws := checkSrc(t, `let x: widget = 1`)
	require.Len(t, ws, 1)
	assert.Contains(t, ws[0].Msg, "widget")
}

func TestArityMismatchOnDirectCall(t *testing.T) {
	ws := checkSrc(t, `
	fn add(a, b) {
		return a + b
	}
	let r = add(1)
	`)
	require.Len(t, ws, 1)
	assert.Contains(t, ws[0].Msg, "add")
}

func TestArityMismatchRespectsDefaults(t *testing.T) {
	ws := checkSrc(t, `
	fn greet(name, suffix = "!") {
		return name
	}
	let r = greet("hi")
	`)
	assert.Empty(t, ws)
}

func TestCheckerDoesNotMutateOrFailOnComputedCallee(t *testing.T) {
	ws := checkSrc(t, `
	let fns = [1]
	let r = fns[0](1, 2, 3)
	`)
	assert.Empty(t, ws)
}
