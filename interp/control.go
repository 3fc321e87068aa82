package interp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forge-lang/forge/ast"
	"github.com/forge-lang/forge/internal/hostio"
	"github.com/forge-lang/forge/parser"
	"github.com/forge-lang/forge/token"
)

func (it *Interpreter) execIf(s *ast.IfStmt) (signal, error) {
	cond, err := it.evalExpr(s.Cond)
	if err != nil {
		return none, err
	}
	if cond.Truthy() {
		return it.execBlock(s.Then)
	}
	for _, ei := range s.ElseIfs {
		c, err := it.evalExpr(ei.Cond)
		if err != nil {
			return none, err
		}
		if c.Truthy() {
			return it.execBlock(ei.Body)
		}
	}
	if s.Else != nil {
		return it.execBlock(s.Else)
	}
	return none, nil
}

func (it *Interpreter) execFor(s *ast.ForStmt) (signal, error) {
	iter, err := it.evalExpr(s.Iterable)
	if err != nil {
		return none, err
	}
	run := func(key, value Value) (signal, error) {
		it.env.PushScope()
		if s.Key != "" {
			it.env.Define(s.Key, key, false)
		}
		it.env.Define(s.Value, value, false)
		sig, err := it.runLoopBody(s.Body)
		it.env.PopScope()
		return sig, err
	}
	switch iter.Kind {
	case KindArray:
		for i, el := range iter.Arr.Elems {
			sig, err := run(Int(int64(i)), el)
			if err != nil {
				return none, err
			}
			if sig.kind == sigBreak {
				break
			}
			if sig.kind == sigReturn {
				return sig, nil
			}
		}
		return none, nil
	case KindObject:
		for _, k := range append([]string(nil), iter.Obj.Keys...) {
			sig, err := run(Str(k), iter.Obj.Vals[k])
			if err != nil {
				return none, err
			}
			if sig.kind == sigBreak {
				break
			}
			if sig.kind == sigReturn {
				return sig, nil
			}
		}
		return none, nil
	default:
		return none, newRuntimeError(TypeMismatch, s.Span, "cannot iterate over a %s", iter.TypeName())
	}
}

// runLoopBody runs a loop body, translating a bare sigBreak/sigContinue
// into loop-local handling: sigContinue is absorbed (the caller's for-range
// simply proceeds), sigBreak and sigReturn propagate to the caller.
func (it *Interpreter) runLoopBody(body []ast.Stmt) (signal, error) {
	sig, err := it.execBlock(body)
	if err != nil {
		return none, err
	}
	if sig.kind == sigContinue {
		return none, nil
	}
	return sig, nil
}

func (it *Interpreter) execWhile(s *ast.WhileStmt) (signal, error) {
	for {
		cond, err := it.evalExpr(s.Cond)
		if err != nil {
			return none, err
		}
		if !cond.Truthy() {
			return none, nil
		}
		sig, err := it.runLoopBody(s.Body)
		if err != nil {
			return none, err
		}
		if sig.kind == sigBreak {
			return none, nil
		}
		if sig.kind == sigReturn {
			return sig, nil
		}
	}
}

func (it *Interpreter) execLoop(s *ast.LoopStmt) (signal, error) {
	for {
		sig, err := it.runLoopBody(s.Body)
		if err != nil {
			return none, err
		}
		if sig.kind == sigBreak {
			return none, nil
		}
		if sig.kind == sigReturn {
			return sig, nil
		}
	}
}

func (it *Interpreter) execRepeat(s *ast.RepeatStmt) (signal, error) {
	count, err := it.evalExpr(s.Count)
	if err != nil {
		return none, err
	}
	if count.Kind != KindInt {
		return none, newRuntimeError(TypeMismatch, s.Span, "repeat count must be an int, got %s", count.TypeName())
	}
	for i := int64(0); i < count.Int; i++ {
		sig, err := it.runLoopBody(s.Body)
		if err != nil {
			return none, err
		}
		if sig.kind == sigBreak {
			return none, nil
		}
		if sig.kind == sigReturn {
			return sig, nil
		}
	}
	return none, nil
}

func (it *Interpreter) execTry(s *ast.TryStmt) (signal, error) {
	sig, err := it.execBlock(s.Body)
	if err == nil {
		return sig, nil
	}
	it.env.PushScope()
	defer it.env.PopScope()
	it.env.Define(s.CatchName, Str(err.Error()), false)
	return it.execBlock(s.Catch)
}

func (it *Interpreter) evalMust(e ast.Expr) (Value, error) {
	v, err := it.evalExpr(e)
	if err != nil {
		return Value{}, err
	}
	switch v.Kind {
	case KindOk, KindSome:
		return *v.Inner, nil
	case KindErr:
		return Value{}, newRuntimeError(MustOnErr, e.Pos(), "must on Err(%s)", Display(*v.Inner))
	case KindNone:
		return Value{}, newRuntimeError(MustOnErr, e.Pos(), "must on None")
	default:
		return v, nil
	}
}

func (it *Interpreter) execTimeout(s *ast.TimeoutStmt) error {
	durVal, err := it.evalExpr(s.Duration)
	if err != nil {
		return err
	}
	d, err := durationSeconds(durVal, s.Span)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	runErr := it.runtime.After(ctx, d, func() error {
		_, err := it.execBlock(s.Body)
		return err
	})
	if runErr == errTimeout || runErr == context.DeadlineExceeded {
		// The block is not cancelled and keeps running; TimeoutStmt has no
		// expression form to surface a value to, so the statement simply
		// completes.
		return nil
	}
	return runErr
}

func durationSeconds(v Value, span token.Position) (time.Duration, error) {
	switch v.Kind {
	case KindInt:
		return time.Duration(v.Int) * time.Second, nil
	case KindFloat:
		return time.Duration(v.Float * float64(time.Second)), nil
	default:
		return 0, newRuntimeError(TypeMismatch, span, "duration must be numeric, got %s", v.TypeName())
	}
}

func (it *Interpreter) execRetry(s *ast.RetryStmt) (signal, error) {
	countVal, err := it.evalExpr(s.Count)
	if err != nil {
		return none, err
	}
	if countVal.Kind != KindInt {
		return none, newRuntimeError(TypeMismatch, s.Span, "retry count must be an int, got %s", countVal.TypeName())
	}
	var lastSig signal
	var lastErr error
	for i := int64(0); i < countVal.Int; i++ {
		sig, err := it.execBlock(s.Body)
		if err == nil && !(sig.kind == sigReturn && sig.value.Kind == KindErr) {
			return sig, nil
		}
		lastSig, lastErr = sig, err
	}
	if lastErr != nil {
		return none, lastErr
	}
	return lastSig, nil
}

func (it *Interpreter) execSchedule(s *ast.ScheduleStmt) error {
	intervalVal, err := it.evalExpr(s.Interval)
	if err != nil {
		return err
	}
	d, err := durationSeconds(intervalVal, s.Span)
	if err != nil {
		return err
	}
	body := s.Body
	env := it.env.Snapshot()
	it.runtime.Go(func() error {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		busy := make(chan struct{}, 1)
		for range ticker.C {
			select {
			case busy <- struct{}{}:
				go func() {
					defer func() { <-busy }()
					sub := &Interpreter{env: env.Snapshot(), globalEnv: env, natives: it.natives, runtime: it.runtime, stdout: it.stdout, stderr: it.stderr}
					sub.execBlock(body)
				}()
			default:
				// previous tick's task has not finished; this tick is dropped.
			}
		}
		return nil
	})
	return nil
}

// resolveImportPath finds the .fg file s.Path names, trying it as a
// relative path first (appending .fg if the spelling omits it), then as a
// package name under .forge/packages/<name>/main.fg, per §6's resolution
// order.
func resolveImportPath(path string) (string, error) {
	rel := path
	if !strings.HasSuffix(rel, ".fg") {
		rel += ".fg"
	}
	pkg := filepath.Join(".forge", "packages", path, "main.fg")
	for _, candidate := range []string{rel, pkg} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			abs, err := filepath.Abs(candidate)
			if err != nil {
				return "", err
			}
			return abs, nil
		}
	}
	return "", nil
}

func importBindingName(s *ast.ImportStmt) string {
	if s.Alias != "" {
		return s.Alias
	}
	base := filepath.Base(s.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// execImport resolves s.Path to a file on disk, runs it to completion in a
// fresh Environment, and binds its top-level bindings to the import name
// as an Object — ordinary os.ReadFile feeding the same lex/parse/interpret
// pipeline forge.Load uses, not a native call (natives are the script's
// standard library boundary, not the host interpreter's own need to read
// the files `import` names).
func (it *Interpreter) execImport(s *ast.ImportStmt) error {
	path, err := resolveImportPath(s.Path)
	if err != nil {
		return newRuntimeError(ImportNotFound, s.Span, "resolving %q: %v", s.Path, err)
	}
	if path == "" {
		return newRuntimeError(ImportNotFound, s.Span, "module %q not found (tried %q and .forge/packages/%s/main.fg)", s.Path, s.Path, s.Path)
	}
	for _, p := range it.importStack {
		if p == path {
			return newRuntimeError(ImportCycle, s.Span, "import cycle: %q is already being resolved", s.Path)
		}
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return newRuntimeError(ImportNotFound, s.Span, "reading %q: %v", s.Path, err)
	}
	tree, err := parser.Parse(string(src))
	if err != nil {
		return newRuntimeError(ImportNotFound, s.Span, "parsing %q: %v", s.Path, err)
	}
	sub := &Interpreter{
		natives:     it.natives,
		runtime:     it.runtime,
		stdout:      it.stdout,
		stderr:      it.stderr,
		importStack: append(append([]string(nil), it.importStack...), path),
	}
	sub.env = NewEnvironment()
	sub.globalEnv = sub.env
	if err := sub.Run(tree); err != nil {
		return err
	}
	obj := NewObject()
	for name, b := range sub.env.scopes[0].vars {
		obj.Set(name, b.Value)
	}
	it.env.Define(importBindingName(s), NewObjectValue(obj), false)
	return nil
}

func (it *Interpreter) execOutput(s *ast.OutputStmt) error {
	v, err := it.evalExpr(s.Value)
	if err != nil {
		return err
	}
	text := Display(v)
	switch s.Verb {
	case ast.Say:
		hostio.WriteLine(it.stdout, text)
		return it.stdout.Err
	case ast.Yell:
		hostio.WriteLine(it.stderr, "warning: "+text)
		return it.stderr.Err
	case ast.Whisper:
		hostio.WriteLine(it.stderr, "trace: "+text)
		return it.stderr.Err
	}
	return nil
}

func (it *Interpreter) undefinedVariableError(name string, span token.Position) error {
	hint := closestName(name, it.env.Names(), 2)
	e := newRuntimeError(UndefinedVariable, span, "undefined variable %q", name)
	if hint != "" {
		e.withHint(hint)
	}
	return e
}

func applyCompoundOp(op token.Kind, cur, delta Value, span token.Position) (Value, error) {
	var binOp token.Kind
	switch op {
	case token.PlusEq:
		binOp = token.Plus
	case token.MinusEq:
		binOp = token.Minus
	case token.StarEq:
		binOp = token.Star
	case token.SlashEq:
		binOp = token.Slash
	default:
		return delta, nil
	}
	return evalBinaryValues(binOp, cur, delta, span)
}
