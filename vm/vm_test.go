package vm_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-lang/forge/parser"
	"github.com/forge-lang/forge/vm"
)

func run(t *testing.T, src string) (string, string, error) {
	t.Helper()
	prog, err := parser.Parse(src)
	require.NoError(t, err)
	chunk, err := vm.Compile(prog)
	require.NoError(t, err)
	var stdout, stderr bytes.Buffer
	inst, err := vm.New(vm.Stdout(&stdout), vm.Stderr(&stderr))
	require.NoError(t, err)
	_, err = inst.Run(chunk)
	if err == nil {
		err = inst.RunSpawned()
	}
	return stdout.String(), stderr.String(), err
}

// S1: arithmetic precedence, the VM backend must match the interpreter's
// own TestScenarioArithmeticPrecedence output.
func TestScenarioArithmeticPrecedence(t *testing.T) {
	out, _, err := run(t, `say 2 + 3 * 4`)
	require.NoError(t, err)
	assert.Equal(t, "14\n", out)
}

func TestScenarioStringInterpolation(t *testing.T) {
	out, _, err := run(t, "let n = 7\nsay \"square is {n * n}\"")
	require.NoError(t, err)
	assert.Equal(t, "square is 49\n", out)
}

func TestScenarioIfElse(t *testing.T) {
	out, _, err := run(t, `
let x = 5
if x < 0 {
  say "negative"
} else if x == 0 {
  say "zero"
} else {
  say "positive"
}
`)
	require.NoError(t, err)
	assert.Equal(t, "positive\n", out)
}

func TestScenarioWhileLoopBreakContinue(t *testing.T) {
	out, _, err := run(t, `
let mut i = 0
let mut total = 0
while i < 10 {
  change i to i + 1
  if i == 3 {
    continue
  }
  if i > 7 {
    break
  }
  change total to total + i
}
say total
`)
	require.NoError(t, err)
	// 1+2+4+5+6+7 = 25 (3 skipped via continue, loop stops once i > 7)
	assert.Equal(t, "25\n", out)
}

func TestScenarioFunctionCallAndReturn(t *testing.T) {
	out, _, err := run(t, `
fn add(a, b) {
  return a + b
}
say add(3, 4)
`)
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)
}

func TestScenarioRecursion(t *testing.T) {
	out, _, err := run(t, `
fn fact(n) {
  if n <= 1 {
    return 1
  }
  return n * fact(n - 1)
}
say fact(6)
`)
	require.NoError(t, err)
	assert.Equal(t, "720\n", out)
}

// S8: `false && f()` must never evaluate f (see OpAnd being compiled away
// into jumps, not the unconditional opcode).
func TestScenarioShortCircuitAnd(t *testing.T) {
	out, _, err := run(t, `
fn boom() {
  say "should not run"
  return true
}
if false && boom() {
  say "unreachable"
}
say "done"
`)
	require.NoError(t, err)
	assert.Equal(t, "done\n", out)
}

func TestScenarioShortCircuitOr(t *testing.T) {
	out, _, err := run(t, `
fn boom() {
  say "should not run"
  return false
}
if true || boom() {
  say "ok"
}
`)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)
}

func TestScenarioArraysAndIndexing(t *testing.T) {
	out, _, err := run(t, `
let xs = [10, 20, 30]
let mut total = 0
for x in xs {
  change total to total + x
}
say total
say xs[1]
`)
	require.NoError(t, err)
	assert.Equal(t, "60\n20\n", out)
}

func TestScenarioObjectsFieldAccess(t *testing.T) {
	out, _, err := run(t, `
let p = { x: 1, y: 2 }
say p.x + p.y
`)
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)
}

func TestScenarioResultTryPropagation(t *testing.T) {
	out, _, err := run(t, `
fn halve(n) {
  if n % 2 != 0 {
    return Err("odd")
  }
  return Ok(n / 2)
}
fn run_it(n) {
  let h = halve(n)?
  return Ok(h)
}
say run_it(10)
say run_it(7)
`)
	require.NoError(t, err)
	assert.Equal(t, "Ok(5)\nErr(odd)\n", out)
}

func TestScenarioClosureNoCapture(t *testing.T) {
	out, _, err := run(t, `
let double = fn(n) { return n * 2 }
say double(21)
`)
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)
}

func TestScenarioRepeat(t *testing.T) {
	out, _, err := run(t, `
let mut n = 0
repeat 5 times {
  change n to n + 1
}
say n
`)
	require.NoError(t, err)
	assert.Equal(t, "5\n", out)
}

func TestScenarioSpawnRunsToCompletion(t *testing.T) {
	out, _, err := run(t, `
spawn {
  say "background"
}
say "main"
`)
	require.NoError(t, err)
	assert.Equal(t, "main\nbackground\n", out)
}

// S10/S6: the counter closure must accumulate across repeated calls to the
// *same* closure instance — the captured `n` persists in the closure's own
// upvalue slot between invocations, not just within one call.
func TestScenarioClosureCounterAccumulates(t *testing.T) {
	out, _, err := run(t, `
fn make_counter() {
  let mut n = 0
  return fn() {
    change n to n + 1
    return n
  }
}
let c = make_counter()
say c()
say c()
say c()
`)
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestScenarioClosureCaptureOneLevel(t *testing.T) {
	out, _, err := run(t, `
fn make_adder(n) {
  return fn(x) { return x + n }
}
say make_adder(1)(2)
`)
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)
}

// Capturing a grandparent function's local (two levels up) is not
// supported: the compiler only chains one level of upvalues.
func TestScenarioClosureCaptureTwoLevelsUnsupported(t *testing.T) {
	prog, err := parser.Parse(`
fn outer() {
  let n = 1
  fn middle() {
    return fn() { return n }
  }
  return middle()
}
say outer()()
`)
	require.NoError(t, err)
	_, err = vm.Compile(prog)
	require.Error(t, err)
}
