package interp

import (
	"github.com/forge-lang/forge/ast"
	"github.com/forge-lang/forge/token"
)

func (it *Interpreter) evalCall(e *ast.CallExpr) (Value, error) {
	if id, ok := e.Callee.(*ast.Ident); ok {
		switch id.Name {
		case "Ok", "Err", "Some", "None":
			return it.evalConstructorCall(id.Name, e.Args, e.Span)
		}
	}
	callee, err := it.evalExpr(e.Callee)
	if err != nil {
		return Value{}, err
	}
	args, err := it.evalArgs(e.Args)
	if err != nil {
		return Value{}, err
	}
	return it.callValue(callee, args, e.Span)
}

func (it *Interpreter) evalArgs(exprs []ast.Expr) ([]Value, error) {
	var args []Value
	for _, a := range exprs {
		if sp, ok := a.(*ast.SpreadExpr); ok {
			v, err := it.evalExpr(sp.X)
			if err != nil {
				return nil, err
			}
			if v.Kind != KindArray {
				return nil, newRuntimeError(TypeMismatch, sp.Span, "cannot spread a %s into an argument list", v.TypeName())
			}
			args = append(args, v.Arr.Elems...)
			continue
		}
		v, err := it.evalExpr(a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}

func (it *Interpreter) evalConstructorCall(name string, argExprs []ast.Expr, span token.Position) (Value, error) {
	switch name {
	case "None":
		return NoneValue(), nil
	}
	if len(argExprs) != 1 {
		return Value{}, newRuntimeError(ArityMismatch, span, "%s expects exactly one argument, got %d", name, len(argExprs))
	}
	v, err := it.evalExpr(argExprs[0])
	if err != nil {
		return Value{}, err
	}
	switch name {
	case "Ok":
		return OkValue(v), nil
	case "Err":
		return ErrValue(v), nil
	case "Some":
		return SomeValue(v), nil
	}
	return Value{}, newRuntimeError(NotCallable, span, "unknown constructor %q", name)
}

// callValue dispatches a call to either a Closure or a registered native,
// the two callable Value kinds.
func (it *Interpreter) callValue(callee Value, args []Value, span token.Position) (Value, error) {
	switch callee.Kind {
	case KindClosure:
		return it.callClosure(callee.Closure, args, span)
	case KindNative:
		fn, ok := it.natives[callee.Native]
		if !ok {
			return Value{}, newRuntimeError(NotCallable, span, "native %q is not registered", callee.Native)
		}
		return fn(it, args, span)
	default:
		return Value{}, newRuntimeError(NotCallable, span, "cannot call a %s", callee.TypeName())
	}
}

// callClosure binds args against c.Params (applying defaults, raising
// ArityMismatch on a mismatch), runs the body in a fresh scope chained off
// the closure's captured environment, and intercepts both an ordinary
// sigReturn and a `?`-propagated Err/None so either becomes the call's
// result rather than escaping as a fatal error.
func (it *Interpreter) callClosure(c *Closure, args []Value, span token.Position) (ret Value, err error) {
	required := 0
	for _, p := range c.Params {
		if p.Default == nil {
			required++
		}
	}
	if len(args) < required || len(args) > len(c.Params) {
		name := c.Name
		if name == "" {
			name = "<lambda>"
		}
		return Value{}, newRuntimeError(ArityMismatch, span, "%s expects %d-%d arguments, got %d", name, required, len(c.Params), len(args))
	}

	callEnv := c.Env.Snapshot()
	callEnv.PushScope()
	for i, p := range c.Params {
		if i < len(args) {
			callEnv.Define(p.Name, args[i], true)
			continue
		}
		dv, derr := it.withEnv(callEnv).evalExpr(p.Default)
		if derr != nil {
			return Value{}, derr
		}
		callEnv.Define(p.Name, dv, true)
	}

	sub := it.withEnv(callEnv)
	sub.fnDepth = it.fnDepth + 1
	for _, s := range c.Body {
		sig, serr := sub.execStmt(s)
		if serr != nil {
			if qm, ok := serr.(*questionMarkPropagation); ok {
				return qm.value, nil
			}
			return Value{}, serr
		}
		if sig.kind == sigReturn {
			return sig.value, nil
		}
		if sig.kind == sigBreak || sig.kind == sigContinue {
			return Value{}, newRuntimeError(BreakOutsideLoop, span, "%s outside a loop", signalName(sig.kind))
		}
	}
	return Null(), nil
}

// withEnv returns a shallow copy of it sharing every field except env,
// used to run a call's body against callEnv without disturbing the
// caller's own scope stack (natural for a tree-walk interpreter since a
// call frame is just a different Environment, not a different goroutine).
func (it *Interpreter) withEnv(env *Environment) *Interpreter {
	cp := *it
	cp.env = env
	return &cp
}

func (it *Interpreter) evalMethodCall(e *ast.MethodCallExpr) (Value, error) {
	recv, err := it.evalExpr(e.Recv)
	if err != nil {
		return Value{}, err
	}
	if builtin, ok := collectionMethods[e.Method]; ok {
		args, err := it.evalArgs(e.Args)
		if err != nil {
			return Value{}, err
		}
		return builtin(it, recv, args, e.Span)
	}
	if recv.Kind == KindObject {
		if fv, ok := recv.Obj.Vals[e.Method]; ok && fv.Kind == KindClosure {
			args, err := it.evalArgs(e.Args)
			if err != nil {
				return Value{}, err
			}
			return it.callValue(fv, args, e.Span)
		}
	}
	return Value{}, newRuntimeError(UnknownField, e.Span, "unknown method %q on a %s", e.Method, recv.TypeName())
}

func (it *Interpreter) evalWhen(e *ast.WhenExpr) (Value, error) {
	subject, err := it.evalExpr(e.Subject)
	if err != nil {
		return Value{}, err
	}
	for _, arm := range e.Arms {
		if arm.Else {
			return it.evalExpr(arm.Body)
		}
		rhs, err := it.evalExpr(arm.Rhs)
		if err != nil {
			return Value{}, err
		}
		ok, err := whenArmMatches(arm.Op, subject, rhs, e.Span)
		if err != nil {
			return Value{}, err
		}
		if ok {
			return it.evalExpr(arm.Body)
		}
	}
	return Null(), nil
}

func whenArmMatches(op token.Kind, subject, rhs Value, span token.Position) (bool, error) {
	v, err := evalBinaryValues(op, subject, rhs, span)
	if err != nil {
		return false, err
	}
	return v.Truthy(), nil
}

func (it *Interpreter) evalMatch(e *ast.MatchExpr) (Value, error) {
	subject, err := it.evalExpr(e.Subject)
	if err != nil {
		return Value{}, err
	}
	it.env.PushScope()
	defer it.env.PopScope()
	for _, arm := range e.Arms {
		if it.matchPattern(arm.Pattern, subject) {
			return it.evalExpr(arm.Body)
		}
	}
	return Value{}, newRuntimeError(PatternNoMatch, e.Span, "no match arm matched %s", Display(subject))
}

// matchPattern tests pat against v, defining any bindings it introduces
// directly into it.env's current (topmost) scope.
func (it *Interpreter) matchPattern(pat ast.Pattern, v Value) bool {
	switch pat.Kind {
	case ast.PatternWildcard:
		return true
	case ast.PatternBinding:
		it.env.Define(pat.Name, v, false)
		return true
	case ast.PatternLiteral:
		lit, err := it.evalExpr(pat.Literal)
		if err != nil {
			return false
		}
		return Equal(lit, v)
	case ast.PatternConstructor:
		return it.matchConstructorPattern(pat, v)
	default:
		return false
	}
}

func (it *Interpreter) matchConstructorPattern(pat ast.Pattern, v Value) bool {
	switch pat.Name {
	case "Ok":
		if v.Kind != KindOk {
			return false
		}
		return it.matchNestedOne(pat, *v.Inner)
	case "Err":
		if v.Kind != KindErr {
			return false
		}
		return it.matchNestedOne(pat, *v.Inner)
	case "Some":
		if v.Kind != KindSome {
			return false
		}
		return it.matchNestedOne(pat, *v.Inner)
	case "None":
		return v.Kind == KindNone
	default:
		if v.Kind != KindObject {
			return false
		}
		tag, ok := v.Obj.Vals["__type"]
		if !ok || tag.Str != pat.Name {
			return false
		}
		for _, n := range pat.Nested {
			if n.Kind == ast.PatternBinding {
				if fv, ok := v.Obj.Vals[n.Name]; ok {
					it.env.Define(n.Name, fv, false)
				}
			}
		}
		return true
	}
}

func (it *Interpreter) matchNestedOne(pat ast.Pattern, inner Value) bool {
	if len(pat.Nested) == 0 {
		return true
	}
	return it.matchPattern(pat.Nested[0], inner)
}
