package interp

import (
	"github.com/forge-lang/forge/ast"
	"github.com/forge-lang/forge/token"
)

// execStmt evaluates one statement, returning the control signal it yields
// (sigNone for ordinary statements) or a fatal RuntimeError.
func (it *Interpreter) execStmt(s ast.Stmt) (signal, error) {
	switch s := s.(type) {
	case *ast.LetStmt:
		v, err := it.evalExpr(s.Value)
		if err != nil {
			return none, err
		}
		it.env.Define(s.Name, v, s.Mutable)
		return none, nil

	case *ast.AssignStmt:
		return none, it.execAssign(s)

	case *ast.FnStmt:
		closure := &Closure{Name: s.Name, Params: s.Params, Body: s.Body, Env: it.env.Snapshot(), IsAsync: s.Async}
		it.env.Define(s.Name, ClosureValue(closure), false)
		return none, nil

	case *ast.StructStmt, *ast.EnumStmt, *ast.InterfaceStmt:
		// Declarations are recorded at parse time only; instances are built
		// from StructInitExpr/constructor calls and carry no separate
		// runtime representation beyond an Object with a Type tag.
		return none, nil

	case *ast.IfStmt:
		return it.execIf(s)

	case *ast.ForStmt:
		return it.execFor(s)

	case *ast.WhileStmt:
		return it.execWhile(s)

	case *ast.LoopStmt:
		return it.execLoop(s)

	case *ast.RepeatStmt:
		return it.execRepeat(s)

	case *ast.BreakStmt:
		return signal{kind: sigBreak}, nil

	case *ast.ContinueStmt:
		return signal{kind: sigContinue}, nil

	case *ast.ReturnStmt:
		if s.Value == nil {
			return signal{kind: sigReturn, value: Null()}, nil
		}
		v, err := it.evalExpr(s.Value)
		if err != nil {
			return none, err
		}
		return signal{kind: sigReturn, value: v}, nil

	case *ast.SpawnStmt:
		body := s.Body
		env := it.env.Snapshot()
		it.runtime.Go(func() error {
			sub := &Interpreter{env: env.Snapshot(), globalEnv: it.globalEnv, natives: it.natives, runtime: it.runtime, stdout: it.stdout, stderr: it.stderr}
			_, err := sub.execBlock(body)
			return err
		})
		return none, nil

	case *ast.TryStmt:
		return it.execTry(s)

	case *ast.SafeStmt:
		sig, err := it.execBlock(s.Body)
		if err != nil {
			return none, nil
		}
		if sig.kind == sigReturn || sig.kind == sigBreak || sig.kind == sigContinue {
			return sig, nil
		}
		return none, nil

	case *ast.MustStmt:
		_, err := it.evalMust(s.Value)
		return none, err

	case *ast.CheckStmt:
		v, err := it.evalExpr(s.Cond)
		if err != nil {
			return none, err
		}
		if !v.Truthy() {
			return none, newRuntimeError(CheckFailed, s.Span, "check failed: %s", s.Text)
		}
		return none, nil

	case *ast.TimeoutStmt:
		return none, it.execTimeout(s)

	case *ast.RetryStmt:
		return it.execRetry(s)

	case *ast.ScheduleStmt:
		return none, it.execSchedule(s)

	case *ast.WatchStmt:
		// Triggering contract is delegated to the host collaborator; the
		// core runs the body once to establish the watched baseline.
		sig, err := it.execBlock(s.Body)
		return sig, err

	case *ast.ImportStmt:
		return none, it.execImport(s)

	case *ast.OutputStmt:
		return none, it.execOutput(s)

	case *ast.ExprStmt:
		_, err := it.evalExpr(s.X)
		return none, err

	default:
		return none, newRuntimeError(NotCallable, s.Pos(), "unsupported statement type %T", s)
	}
}

func (it *Interpreter) execAssign(s *ast.AssignStmt) error {
	val, err := it.evalExpr(s.Value)
	if err != nil {
		return err
	}
	if s.Op != 0 {
		cur, err := it.evalExpr(s.Target)
		if err != nil {
			return err
		}
		val, err = applyCompoundOp(s.Op, cur, val, s.Span)
		if err != nil {
			return err
		}
	}
	switch target := s.Target.(type) {
	case *ast.Ident:
		switch it.env.Set(target.Name, val) {
		case SetImmutable:
			return newRuntimeError(ImmutableReassignment, s.Span, "cannot reassign %q", target.Name).withHint("declare it with `let mut`")
		case SetUndefined:
			return it.undefinedVariableError(target.Name, s.Span)
		}
		return nil
	case *ast.FieldExpr:
		recv, err := it.evalExpr(target.X)
		if err != nil {
			return err
		}
		if recv.Kind != KindObject {
			return newRuntimeError(TypeMismatch, s.Span, "cannot set field %q on a %s", target.Field, recv.TypeName())
		}
		recv.Obj.Set(target.Field, val)
		return nil
	case *ast.IndexExpr:
		recv, err := it.evalExpr(target.X)
		if err != nil {
			return err
		}
		idx, err := it.evalExpr(target.Index)
		if err != nil {
			return err
		}
		return it.setIndex(recv, idx, val, s.Span)
	default:
		return newRuntimeError(NotCallable, s.Span, "invalid assignment target")
	}
}

func (it *Interpreter) setIndex(recv, idx, val Value, span token.Position) error {
	switch recv.Kind {
	case KindArray:
		if idx.Kind != KindInt {
			return newRuntimeError(TypeMismatch, span, "array index must be an int, got %s", idx.TypeName())
		}
		i := int(idx.Int)
		if i < 0 || i >= len(recv.Arr.Elems) {
			return newRuntimeError(IndexOutOfBounds, span, "index %d out of bounds for array of length %d", i, len(recv.Arr.Elems))
		}
		recv.Arr.Elems[i] = val
		return nil
	case KindObject:
		if idx.Kind != KindString {
			return newRuntimeError(TypeMismatch, span, "object key must be a string, got %s", idx.TypeName())
		}
		recv.Obj.Set(idx.Str, val)
		return nil
	default:
		return newRuntimeError(TypeMismatch, span, "cannot index into a %s", recv.TypeName())
	}
}
