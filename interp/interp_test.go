package interp_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-lang/forge/interp"
	"github.com/forge-lang/forge/parser"
)

func run(t *testing.T, src string) (string, string, error) {
	t.Helper()
	prog, err := parser.Parse(src)
	require.NoError(t, err)
	var stdout, stderr bytes.Buffer
	it, err := interp.New(interp.Stdout(&stdout), interp.Stderr(&stderr))
	require.NoError(t, err)
	err = it.Run(prog)
	return stdout.String(), stderr.String(), err
}

// S1: arithmetic precedence, `say 2 + 3 * 4` should print 14.
func TestScenarioArithmeticPrecedence(t *testing.T) {
	out, _, err := run(t, `say 2 + 3 * 4`)
	require.NoError(t, err)
	assert.Equal(t, "14\n", out)
}

// S2: string interpolation.
func TestScenarioStringInterpolation(t *testing.T) {
	out, _, err := run(t, "let n = 7\nsay \"square is {n * n}\"")
	require.NoError(t, err)
	assert.Equal(t, "square is 49\n", out)
}

// S3: when-guard binding.
func TestScenarioWhenGuard(t *testing.T) {
	out, _, err := run(t, `
let x = 5
let label = when x {
  < 0 -> "A"
  < 10 -> "B"
  else -> "C"
}
say label
`)
	require.NoError(t, err)
	assert.Equal(t, "B\n", out)
}

// S4: ? propagation via parse/doub producing Ok(42) and Err("neg").
func TestScenarioQuestionMarkPropagation(t *testing.T) {
	out, _, err := run(t, `
fn parse(s) {
  let n = must parse_int(s)
  return Ok(n)
}
fn doub(s) {
  let n = parse(s)?
  if n < 0 {
    return Err("neg")
  }
  return Ok(n * 2)
}
say doub("21")
say doub("-3")
`)
	require.NoError(t, err)
	assert.Equal(t, "Ok(42)\nErr(neg)\n", out)
}

// Immutability: reassigning a `let` (non-mut) binding is a runtime error
// carrying a `let mut` hint.
func TestImmutabilityErrorCarriesHint(t *testing.T) {
	_, _, err := run(t, `
let x = 1
x = 2
`)
	require.Error(t, err)
	re, ok := err.(*interp.RuntimeError)
	require.True(t, ok)
	assert.Equal(t, interp.ImmutableReassignment, re.Kind)
	assert.Contains(t, re.Hint, "let mut")
}

// S6: closure counter, one counter returned by make_counter() called four
// times accumulates [1,2,3,4].
func TestScenarioClosureCounter(t *testing.T) {
	out, _, err := run(t, `
fn make_counter() {
  let mut n = 0
  return () -> {
    n = n + 1
    return n
  }
}
let counter = make_counter()
let mut out = []
out.push(counter())
out.push(counter())
out.push(counter())
out.push(counter())
say out
`)
	require.NoError(t, err)
	assert.Equal(t, "[1, 2, 3, 4]\n", out)
}

// S7: filter/map/reduce chain over [1..10] sums the doubled evens
// (4+8+12+16+20) to 60, driving the collectionMethods end to end.
func TestScenarioFilterMapReduceChain(t *testing.T) {
	out, _, err := run(t, `
let nums = [1, 2, 3, 4, 5, 6, 7, 8, 9, 10]
let total = nums.filter((n) -> n % 2 == 0).map((n) -> n * 2).reduce((acc, n) -> acc + n, 0)
say total
`)
	require.NoError(t, err)
	assert.Equal(t, "60\n", out)
}

// Shadowing: an inner `let` of the same name does not affect the outer
// binding once the inner scope exits.
func TestShadowingCorrectness(t *testing.T) {
	out, _, err := run(t, `
let x = 1
if true {
  let x = 2
  say x
}
say x
`)
	require.NoError(t, err)
	assert.Equal(t, "2\n1\n", out)
}

// Truthiness table: false, null, 0, 0.0, "", [] and {} are all falsy;
// everything else is truthy.
func TestTruthinessTable(t *testing.T) {
	out, _, err := run(t, `
let values = [false, null, 0, 0.0, "", [], {}, true, 1, "x", [1]]
for v in values {
  if v {
    say "truthy"
  } else {
    say "falsy"
  }
}
`)
	require.NoError(t, err)
	assert.Equal(t, "falsy\nfalsy\nfalsy\nfalsy\nfalsy\nfalsy\nfalsy\ntruthy\ntruthy\ntruthy\ntruthy\n", out)
}

// Short-circuit: the right-hand side of && and || must not evaluate when
// the left side already determines the result.
func TestShortCircuitEvaluation(t *testing.T) {
	out, _, err := run(t, `
fn boom() {
  say "evaluated"
  return true
}
if false && boom() {
  say "unreachable"
}
if true || boom() {
  say "short-circuited"
}
`)
	require.NoError(t, err)
	assert.Equal(t, "short-circuited\n", out)
}

// Object iteration visits keys in insertion order.
func TestObjectInsertionOrderIteration(t *testing.T) {
	out, _, err := run(t, `
let obj = { z: 1, a: 2, m: 3 }
for k, v in obj {
  say k
}
`)
	require.NoError(t, err)
	assert.Equal(t, "z\na\nm\n", out)
}

// Interpreter/VM equivalence on programs that never touch a native: this
// only exercises the tree-walk side directly, asserting the deterministic
// arithmetic and control-flow result a compiled backend must match.
func TestDeterministicResultOnNoNativeProgram(t *testing.T) {
	out, _, err := run(t, `
fn fib(n) {
  if n < 2 {
    return n
  }
  return fib(n - 1) + fib(n - 2)
}
say fib(10)
`)
	require.NoError(t, err)
	assert.Equal(t, "55\n", out)
}

func TestMatchWithConstructorPatterns(t *testing.T) {
	out, _, err := run(t, `
fn describe(r) {
  return match r {
    Ok(n) => "ok " + to_string(n)
    Err(e) => "err " + e
  }
}
say describe(Ok(3))
say describe(Err("bad"))
`)
	require.NoError(t, err)
	assert.Equal(t, "ok 3\nerr bad\n", out)
}
