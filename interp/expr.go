package interp

import (
	"strings"

	"github.com/forge-lang/forge/ast"
	"github.com/forge-lang/forge/token"
)

func (it *Interpreter) evalExpr(e ast.Expr) (Value, error) {
	switch e := e.(type) {
	case *ast.IntLit:
		return Int(e.Value), nil
	case *ast.FloatLit:
		return Float(e.Value), nil
	case *ast.BoolLit:
		return Bool(e.Value), nil
	case *ast.NullLit:
		return Null(), nil
	case *ast.StringLit:
		return Str(e.Value), nil
	case *ast.InterpString:
		return it.evalInterpString(e)
	case *ast.ArrayLit:
		var out []Value
		for _, el := range e.Elements {
			if sp, ok := el.(*ast.SpreadExpr); ok {
				v, err := it.evalExpr(sp.X)
				if err != nil {
					return Value{}, err
				}
				if v.Kind != KindArray {
					return Value{}, newRuntimeError(TypeMismatch, sp.Span, "cannot spread a %s into an array", v.TypeName())
				}
				out = append(out, v.Arr.Elems...)
				continue
			}
			v, err := it.evalExpr(el)
			if err != nil {
				return Value{}, err
			}
			out = append(out, v)
		}
		return NewArray(out), nil
	case *ast.ObjectLit:
		obj := NewObject()
		for _, ent := range e.Entries {
			k, err := it.evalExpr(ent.Key)
			if err != nil {
				return Value{}, err
			}
			v, err := it.evalExpr(ent.Value)
			if err != nil {
				return Value{}, err
			}
			obj.Set(Display(k), v)
		}
		return NewObjectValue(obj), nil
	case *ast.StructInitExpr:
		obj := NewObject()
		obj.Set("__type", Str(e.Type))
		for _, ent := range e.Entries {
			k, err := it.evalExpr(ent.Key)
			if err != nil {
				return Value{}, err
			}
			v, err := it.evalExpr(ent.Value)
			if err != nil {
				return Value{}, err
			}
			obj.Set(Display(k), v)
		}
		return NewObjectValue(obj), nil
	case *ast.Ident:
		return it.evalIdent(e)
	case *ast.BinaryExpr:
		return it.evalBinary(e)
	case *ast.UnaryExpr:
		return it.evalUnary(e)
	case *ast.FieldExpr:
		return it.evalField(e)
	case *ast.IndexExpr:
		return it.evalIndex(e)
	case *ast.CallExpr:
		return it.evalCall(e)
	case *ast.MethodCallExpr:
		return it.evalMethodCall(e)
	case *ast.LambdaExpr:
		return ClosureValue(&Closure{Params: e.Params, Body: e.Body, Env: it.env.Snapshot()}), nil
	case *ast.TryExpr:
		return it.evalTry(e)
	case *ast.AwaitExpr:
		return it.evalExpr(e.X)
	case *ast.SpreadExpr:
		return it.evalExpr(e.X)
	case *ast.MustExpr:
		return it.evalMust(e.X)
	case *ast.FreezeExpr:
		v, err := it.evalExpr(e.X)
		if err != nil {
			return Value{}, err
		}
		return deepFreeze(v), nil
	case *ast.AskExpr:
		prompt, err := it.evalExpr(e.Prompt)
		if err != nil {
			return Value{}, err
		}
		return it.invokeNative("ask", []Value{prompt}, e.Span)
	case *ast.WhereExpr:
		return it.evalWhere(e)
	case *ast.PipeExpr:
		return it.evalPipe(e)
	case *ast.BlockExpr:
		return it.evalBlockExpr(e.Stmts)
	case *ast.WhenExpr:
		return it.evalWhen(e)
	case *ast.MatchExpr:
		return it.evalMatch(e)
	default:
		return Value{}, newRuntimeError(NotCallable, e.Pos(), "unsupported expression type %T", e)
	}
}

func (it *Interpreter) evalIdent(e *ast.Ident) (Value, error) {
	if v, ok := it.env.Get(e.Name); ok {
		return v, nil
	}
	return Value{}, it.undefinedVariableError(e.Name, e.Span)
}

func (it *Interpreter) evalInterpString(e *ast.InterpString) (Value, error) {
	var sb strings.Builder
	for i, lit := range e.Literals {
		sb.WriteString(lit)
		if i < len(e.Fragments) {
			v, err := it.evalExpr(e.Fragments[i])
			if err != nil {
				return Value{}, err
			}
			sb.WriteString(Display(v))
		}
	}
	return Str(sb.String()), nil
}

func (it *Interpreter) evalBinary(e *ast.BinaryExpr) (Value, error) {
	if e.Op == token.And {
		l, err := it.evalExpr(e.Left)
		if err != nil {
			return Value{}, err
		}
		if !l.Truthy() {
			return Bool(false), nil
		}
		r, err := it.evalExpr(e.Right)
		if err != nil {
			return Value{}, err
		}
		return Bool(r.Truthy()), nil
	}
	if e.Op == token.Or {
		l, err := it.evalExpr(e.Left)
		if err != nil {
			return Value{}, err
		}
		if l.Truthy() {
			return Bool(true), nil
		}
		r, err := it.evalExpr(e.Right)
		if err != nil {
			return Value{}, err
		}
		return Bool(r.Truthy()), nil
	}
	l, err := it.evalExpr(e.Left)
	if err != nil {
		return Value{}, err
	}
	r, err := it.evalExpr(e.Right)
	if err != nil {
		return Value{}, err
	}
	return evalBinaryValues(e.Op, l, r, e.Span)
}

// evalBinaryValues implements every binary operator's value semantics; it
// is shared with the `+=`-style compound assignment desugaring.
func evalBinaryValues(op token.Kind, l, r Value, span token.Position) (Value, error) {
	switch op {
	case token.Eq:
		return Bool(Equal(l, r)), nil
	case token.NotEq:
		return Bool(!Equal(l, r)), nil
	case token.Plus:
		return arithPlus(l, r, span)
	case token.Minus, token.Star, token.Slash, token.Percent:
		return arithOp(op, l, r, span)
	case token.Lt, token.Gt, token.LtEq, token.GtEq:
		return compareOp(op, l, r, span)
	default:
		return Value{}, newRuntimeError(TypeMismatch, span, "unsupported binary operator %s", op)
	}
}

func arithPlus(l, r Value, span token.Position) (Value, error) {
	if l.Kind == KindString || r.Kind == KindString {
		if l.Kind != KindString || r.Kind != KindString {
			return Value{}, newRuntimeError(TypeMismatch, span, "cannot add %s and %s: string + only concatenates string + string", l.TypeName(), r.TypeName())
		}
		return Str(l.Str + r.Str), nil
	}
	return arithOp(token.Plus, l, r, span)
}

func arithOp(op token.Kind, l, r Value, span token.Position) (Value, error) {
	if !isNumeric(l) || !isNumeric(r) {
		return Value{}, newRuntimeError(TypeMismatch, span, "arithmetic requires numbers, got %s and %s", l.TypeName(), r.TypeName())
	}
	if l.Kind == KindInt && r.Kind == KindInt {
		a, b := l.Int, r.Int
		switch op {
		case token.Plus:
			return Int(a + b), nil
		case token.Minus:
			return Int(a - b), nil
		case token.Star:
			return Int(a * b), nil
		case token.Slash:
			if b == 0 {
				return Value{}, newRuntimeError(DivisionByZero, span, "integer division by zero")
			}
			return Int(a / b), nil // truncates toward zero, matching Go's int division
		case token.Percent:
			if b == 0 {
				return Value{}, newRuntimeError(DivisionByZero, span, "modulo by zero")
			}
			return Int(a % b), nil
		}
	}
	a, b := toFloat(l), toFloat(r)
	switch op {
	case token.Plus:
		return Float(a + b), nil
	case token.Minus:
		return Float(a - b), nil
	case token.Star:
		return Float(a * b), nil
	case token.Slash:
		if b == 0 {
			return Value{}, newRuntimeError(DivisionByZero, span, "float division by zero")
		}
		return Float(a / b), nil
	case token.Percent:
		return Value{}, newRuntimeError(TypeMismatch, span, "%% requires integer operands")
	}
	return Value{}, newRuntimeError(TypeMismatch, span, "unsupported arithmetic operator %s", op)
}

func compareOp(op token.Kind, l, r Value, span token.Position) (Value, error) {
	if isNumeric(l) && isNumeric(r) {
		a, b := toFloat(l), toFloat(r)
		switch op {
		case token.Lt:
			return Bool(a < b), nil
		case token.Gt:
			return Bool(a > b), nil
		case token.LtEq:
			return Bool(a <= b), nil
		case token.GtEq:
			return Bool(a >= b), nil
		}
	}
	if l.Kind == KindString && r.Kind == KindString {
		switch op {
		case token.Lt:
			return Bool(l.Str < r.Str), nil
		case token.Gt:
			return Bool(l.Str > r.Str), nil
		case token.LtEq:
			return Bool(l.Str <= r.Str), nil
		case token.GtEq:
			return Bool(l.Str >= r.Str), nil
		}
	}
	return Value{}, newRuntimeError(TypeMismatch, span, "cannot compare %s and %s", l.TypeName(), r.TypeName())
}

func isNumeric(v Value) bool { return v.Kind == KindInt || v.Kind == KindFloat }

func toFloat(v Value) float64 {
	if v.Kind == KindInt {
		return float64(v.Int)
	}
	return v.Float
}

func (it *Interpreter) evalUnary(e *ast.UnaryExpr) (Value, error) {
	v, err := it.evalExpr(e.X)
	if err != nil {
		return Value{}, err
	}
	switch e.Op {
	case token.Minus:
		switch v.Kind {
		case KindInt:
			return Int(-v.Int), nil
		case KindFloat:
			return Float(-v.Float), nil
		default:
			return Value{}, newRuntimeError(TypeMismatch, e.Span, "unary - requires a number, got %s", v.TypeName())
		}
	case token.Not:
		return Bool(!v.Truthy()), nil
	default:
		return Value{}, newRuntimeError(TypeMismatch, e.Span, "unsupported unary operator %s", e.Op)
	}
}

func (it *Interpreter) evalField(e *ast.FieldExpr) (Value, error) {
	recv, err := it.evalExpr(e.X)
	if err != nil {
		return Value{}, err
	}
	switch recv.Kind {
	case KindObject:
		if v, ok := recv.Obj.Vals[e.Field]; ok {
			return v, nil
		}
		hint := closestName(e.Field, recv.Obj.Keys, 2)
		err := newRuntimeError(UnknownField, e.Span, "unknown field %q", e.Field)
		if hint != "" {
			err.withHint(hint)
		}
		return Value{}, err
	case KindOk, KindErr, KindSome:
		if e.Field == "value" {
			return *recv.Inner, nil
		}
	}
	return Value{}, newRuntimeError(UnknownField, e.Span, "cannot access field %q on a %s", e.Field, recv.TypeName())
}

func (it *Interpreter) evalIndex(e *ast.IndexExpr) (Value, error) {
	recv, err := it.evalExpr(e.X)
	if err != nil {
		return Value{}, err
	}
	idx, err := it.evalExpr(e.Index)
	if err != nil {
		return Value{}, err
	}
	switch recv.Kind {
	case KindArray:
		if idx.Kind != KindInt {
			return Value{}, newRuntimeError(TypeMismatch, e.Span, "array index must be an int, got %s", idx.TypeName())
		}
		i := int(idx.Int)
		if i < 0 || i >= len(recv.Arr.Elems) {
			return Value{}, newRuntimeError(IndexOutOfBounds, e.Span, "index %d out of bounds for array of length %d", i, len(recv.Arr.Elems))
		}
		return recv.Arr.Elems[i], nil
	case KindObject:
		if idx.Kind != KindString {
			return Value{}, newRuntimeError(TypeMismatch, e.Span, "object key must be a string, got %s", idx.TypeName())
		}
		v, ok := recv.Obj.Vals[idx.Str]
		if !ok {
			return Value{}, newRuntimeError(UnknownField, e.Span, "unknown key %q", idx.Str)
		}
		return v, nil
	case KindString:
		if idx.Kind != KindInt {
			return Value{}, newRuntimeError(TypeMismatch, e.Span, "string index must be an int, got %s", idx.TypeName())
		}
		runes := []rune(recv.Str)
		i := int(idx.Int)
		if i < 0 || i >= len(runes) {
			return Value{}, newRuntimeError(IndexOutOfBounds, e.Span, "index %d out of bounds for string of length %d", i, len(runes))
		}
		return Str(string(runes[i])), nil
	default:
		return Value{}, newRuntimeError(TypeMismatch, e.Span, "cannot index into a %s", recv.TypeName())
	}
}

func (it *Interpreter) evalWhere(e *ast.WhereExpr) (Value, error) {
	src, err := it.evalExpr(e.Source)
	if err != nil {
		return Value{}, err
	}
	if src.Kind != KindArray {
		return Value{}, newRuntimeError(TypeMismatch, e.Span, "where requires an array, got %s", src.TypeName())
	}
	var out []Value
	for _, el := range src.Arr.Elems {
		it.env.PushScope()
		it.env.Define(e.Var, el, false)
		keep, err := it.evalExpr(e.Pred)
		it.env.PopScope()
		if err != nil {
			return Value{}, err
		}
		if keep.Truthy() {
			out = append(out, el)
		}
	}
	return NewArray(out), nil
}

// evalPipe desugars `a |> f` / `a |> f(b, c)` into a call of f with a
// prepended as the first argument.
func (it *Interpreter) evalPipe(e *ast.PipeExpr) (Value, error) {
	val, err := it.evalExpr(e.Value)
	if err != nil {
		return Value{}, err
	}
	switch call := e.Call.(type) {
	case *ast.CallExpr:
		callee, err := it.evalExpr(call.Callee)
		if err != nil {
			return Value{}, err
		}
		args := []Value{val}
		for _, a := range call.Args {
			v, err := it.evalExpr(a)
			if err != nil {
				return Value{}, err
			}
			args = append(args, v)
		}
		return it.callValue(callee, args, call.Span)
	default:
		callee, err := it.evalExpr(call)
		if err != nil {
			return Value{}, err
		}
		return it.callValue(callee, []Value{val}, e.Span)
	}
}

func (it *Interpreter) evalTry(e *ast.TryExpr) (Value, error) {
	v, err := it.evalExpr(e.X)
	if err != nil {
		return Value{}, err
	}
	switch v.Kind {
	case KindOk, KindSome:
		return *v.Inner, nil
	case KindErr, KindNone:
		return Value{}, &questionMarkPropagation{value: v}
	default:
		return Value{}, newRuntimeError(QuestionMarkInNonResult, e.Span, "? applied to a %s, which is not a Result or Option", v.TypeName())
	}
}

// questionMarkPropagation is an internal sentinel error: `?` on Err/None
// must return that same value from the enclosing function rather than
// raise a fatal error. callClosure intercepts it; if it reaches
// Interpreter.Run instead, Run reports a QuestionMarkInNonResult error.
type questionMarkPropagation struct{ value Value }

func (q *questionMarkPropagation) Error() string {
	return "? propagation escaped its enclosing function: " + Display(q.value)
}

func deepFreeze(v Value) Value {
	switch v.Kind {
	case KindArray:
		elems := make([]Value, len(v.Arr.Elems))
		for i, e := range v.Arr.Elems {
			elems[i] = deepFreeze(e)
		}
		return NewArray(elems)
	case KindObject:
		obj := NewObject()
		for _, k := range v.Obj.Keys {
			obj.Set(k, deepFreeze(v.Obj.Vals[k]))
		}
		return NewObjectValue(obj)
	default:
		return v
	}
}
