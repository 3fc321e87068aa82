package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-lang/forge/ast"
	"github.com/forge-lang/forge/parser"
	"github.com/forge-lang/forge/token"
)

func parse(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := parser.Parse(src)
	require.NoError(t, err)
	return prog
}

// S1: `say 2 + 3 * 4` must parse with * binding tighter than +.
func TestPrecedenceArithmetic(t *testing.T) {
	prog := parse(t, "say 2 + 3 * 4")
	require.Len(t, prog.Stmts, 1)
	out := prog.Stmts[0].(*ast.OutputStmt)
	assert.Equal(t, ast.Say, out.Verb)
	bin := out.Value.(*ast.BinaryExpr)
	assert.Equal(t, token.Plus, bin.Op)
	assert.Equal(t, int64(2), bin.Left.(*ast.IntLit).Value)
	rhs := bin.Right.(*ast.BinaryExpr)
	assert.Equal(t, token.Star, rhs.Op)
}

// S2: string interpolation splits into literal/fragment pairs.
func TestStringInterpolationFragments(t *testing.T) {
	prog := parse(t, `say "square is {x * x}"`)
	out := prog.Stmts[0].(*ast.OutputStmt)
	interp := out.Value.(*ast.InterpString)
	require.Len(t, interp.Fragments, 1)
	require.Len(t, interp.Literals, 2)
	assert.Equal(t, "square is ", interp.Literals[0])
	assert.Equal(t, "", interp.Literals[1])
	bin := interp.Fragments[0].(*ast.BinaryExpr)
	assert.Equal(t, token.Star, bin.Op)
}

// S3: `when` used directly as a let-bound expression.
func TestWhenExpressionBinding(t *testing.T) {
	prog := parse(t, `let g = when 87 {
		< 18 -> "minor"
		else -> "adult"
	}`)
	let := prog.Stmts[0].(*ast.LetStmt)
	when := let.Value.(*ast.WhenExpr)
	require.Len(t, when.Arms, 2)
	assert.Equal(t, token.Lt, when.Arms[0].Op)
	assert.True(t, when.Arms[1].Else)
}

func TestMatchExpressionWithConstructorPatterns(t *testing.T) {
	prog := parse(t, `let r = match x {
		Ok(v) => v
		Err(e) => 0
	}`)
	let := prog.Stmts[0].(*ast.LetStmt)
	m := let.Value.(*ast.MatchExpr)
	require.Len(t, m.Arms, 2)
	assert.Equal(t, ast.PatternConstructor, m.Arms[0].Pattern.Kind)
	assert.Equal(t, "Ok", m.Arms[0].Pattern.Name)
	assert.Equal(t, ast.PatternBinding, m.Arms[0].Pattern.Nested[0].Kind)
}

// S4: postfix `?` propagation parses as a TryExpr wrapping the call.
func TestTryPropagationOperator(t *testing.T) {
	prog := parse(t, `let v = fetch(url)?`)
	let := prog.Stmts[0].(*ast.LetStmt)
	try := let.Value.(*ast.TryExpr)
	_, ok := try.X.(*ast.CallExpr)
	assert.True(t, ok)
}

// S6: closures are plain lambda expressions assigned to a let binding.
func TestLambdaClosureCounter(t *testing.T) {
	prog := parse(t, `let counter = () -> {
		change n to n + 1
		return n
	}`)
	let := prog.Stmts[0].(*ast.LetStmt)
	lam := let.Value.(*ast.LambdaExpr)
	assert.Len(t, lam.Params, 0)
	assert.Len(t, lam.Body, 2)
}

// S7: a pipe chain of filter/map/reduce calls.
func TestPipeChain(t *testing.T) {
	prog := parse(t, `let total = nums |> filter(is_even) |> map(square) |> reduce(add, 0)`)
	let := prog.Stmts[0].(*ast.LetStmt)
	outer := let.Value.(*ast.PipeExpr)
	_, ok := outer.Call.(*ast.CallExpr)
	assert.True(t, ok)
	mid := outer.Value.(*ast.PipeExpr)
	_, ok = mid.Call.(*ast.CallExpr)
	assert.True(t, ok)
	inner := mid.Value.(*ast.PipeExpr)
	assert.Equal(t, "nums", inner.Value.(*ast.Ident).Name)
}

// Lambda-vs-parenthesized-expression: the first documented lookahead
// exception. `(x) -> x * 2` is a lambda; `(x + 1) * 2` is not.
func TestLambdaVsParenExprDisambiguation(t *testing.T) {
	prog := parse(t, `let double = (x) -> x * 2`)
	let := prog.Stmts[0].(*ast.LetStmt)
	lam, ok := let.Value.(*ast.LambdaExpr)
	require.True(t, ok)
	assert.Equal(t, "x", lam.Params[0].Name)

	prog2 := parse(t, `let y = (x + 1) * 2`)
	let2 := prog2.Stmts[0].(*ast.LetStmt)
	bin, ok := let2.Value.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, token.Star, bin.Op)
}

// Decorator-vs-bare-function sequencing: the second documented lookahead
// exception. A decorator must be immediately followed by a function.
func TestDecoratorMustPrecedeFunction(t *testing.T) {
	prog := parse(t, `@route(path: "/health")
	fn health() {
		return "ok"
	}`)
	fn := prog.Stmts[0].(*ast.FnStmt)
	require.Len(t, fn.Decorators, 1)
	assert.Equal(t, "route", fn.Decorators[0].Name)
	pathArg := fn.Decorators[0].Args["path"].(*ast.StringLit)
	assert.Equal(t, "/health", pathArg.Value)
}

func TestDecoratorWithoutFunctionIsError(t *testing.T) {
	_, err := parser.Parse(`@route(path: "/health")
	let x = 1`)
	require.Error(t, err)
}

// Empty `{}` and an object literal with a key:value pair both parse as
// ObjectLit; anything else in brace-expression position is a BlockExpr.
func TestBraceDisambiguation(t *testing.T) {
	prog := parse(t, `let empty = {}`)
	_, ok := prog.Stmts[0].(*ast.LetStmt).Value.(*ast.ObjectLit)
	assert.True(t, ok)

	prog2 := parse(t, `let obj = { name: "a", age: 3 }`)
	obj := prog2.Stmts[0].(*ast.LetStmt).Value.(*ast.ObjectLit)
	require.Len(t, obj.Entries, 2)

	prog3 := parse(t, `let blk = {
		let a = 1
		a + 1
	}`)
	blk, ok := prog3.Stmts[0].(*ast.LetStmt).Value.(*ast.BlockExpr)
	require.True(t, ok)
	assert.Len(t, blk.Stmts, 2)
}

func TestIfElseIfElseChain(t *testing.T) {
	prog := parse(t, `if x < 0 {
		say "neg"
	} else if x == 0 {
		say "zero"
	} else {
		say "pos"
	}`)
	ifs := prog.Stmts[0].(*ast.IfStmt)
	require.Len(t, ifs.ElseIfs, 1)
	require.Len(t, ifs.Else, 1)
}

func TestForInWithKeyValue(t *testing.T) {
	prog := parse(t, `for k, v in obj {
		say k
	}`)
	fs := prog.Stmts[0].(*ast.ForStmt)
	assert.Equal(t, "k", fs.Key)
	assert.Equal(t, "v", fs.Value)
}

func TestStructAndInstantiation(t *testing.T) {
	prog := parse(t, `struct Point {
		x: int
		y: int
	}
	let p = Point { x: 1, y: 2 }`)
	st := prog.Stmts[0].(*ast.StructStmt)
	require.Len(t, st.Fields, 2)
}

func TestTryCatchStatement(t *testing.T) {
	prog := parse(t, `try {
		risky()
	} catch e {
		say e
	}`)
	ts := prog.Stmts[0].(*ast.TryStmt)
	assert.Equal(t, "e", ts.CatchName)
}

func TestSpreadAndArrayLiteral(t *testing.T) {
	prog := parse(t, `let xs = [1, 2, ...rest]`)
	arr := prog.Stmts[0].(*ast.LetStmt).Value.(*ast.ArrayLit)
	require.Len(t, arr.Elements, 3)
	_, ok := arr.Elements[2].(*ast.SpreadExpr)
	assert.True(t, ok)
}

func TestWhereComprehension(t *testing.T) {
	prog := parse(t, `let evens = nums where n -> n % 2 == 0`)
	where := prog.Stmts[0].(*ast.LetStmt).Value.(*ast.WhereExpr)
	assert.Equal(t, "n", where.Var)
	assert.Equal(t, "nums", where.Source.(*ast.Ident).Name)
}
