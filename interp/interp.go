package interp

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/forge-lang/forge/ast"
	"github.com/forge-lang/forge/internal/hostio"
	"github.com/forge-lang/forge/token"
)

// Option configures an Interpreter at construction time, following the same
// functional-options shape used throughout this codebase's VM backend.
type Option func(*Interpreter) error

// Stdout sets the destination for `say`.
func Stdout(w io.Writer) Option {
	return func(it *Interpreter) error { it.stdout = hostio.NewErrWriter(w); return nil }
}

// Stderr sets the destination for `yell` and `whisper`.
func Stderr(w io.Writer) Option {
	return func(it *Interpreter) error { it.stderr = hostio.NewErrWriter(w); return nil }
}

// WithAsyncRuntime overrides the default goroutine-backed AsyncRuntime.
func WithAsyncRuntime(rt AsyncRuntime) Option {
	return func(it *Interpreter) error {
		if rt == nil {
			return errors.New("interp: nil AsyncRuntime")
		}
		it.runtime = rt
		return nil
	}
}

// WithNative registers a single native function under name, overriding any
// built-in of the same name.
func WithNative(name string, fn NativeFunc) Option {
	return func(it *Interpreter) error {
		it.natives[name] = fn
		it.env.Define(name, NativeRef(name), false)
		return nil
	}
}

// Interpreter walks an ast.Program against a live Environment. It is the
// tree-walk peer of the register-based VM backend; both consume the same
// AST and produce identical observable effects when no natives run.
type Interpreter struct {
	env         *Environment
	globalEnv   *Environment
	natives     map[string]NativeFunc
	runtime     AsyncRuntime
	stdout      *hostio.ErrWriter
	stderr      *hostio.ErrWriter
	fnDepth     int
	loopDepth   int
	serverDecl  *ast.Decorator
	importStack []string // absolute paths of imports currently being resolved, for ImportCycle
}

// New builds an Interpreter with a fresh root Environment prepopulated with
// the builtin natives (§6) and applies opts.
func New(opts ...Option) (*Interpreter, error) {
	env := NewEnvironment()
	it := &Interpreter{
		env:       env,
		globalEnv: env,
		natives:   map[string]NativeFunc{},
		stdout:    hostio.NewErrWriter(os.Stdout),
		stderr:    hostio.NewErrWriter(os.Stderr),
	}
	registerBuiltins(it)
	for _, opt := range opts {
		if err := opt(it); err != nil {
			return nil, errors.Wrap(err, "interp.New")
		}
	}
	if it.runtime == nil {
		it.runtime = NewDefaultAsyncRuntime(nil)
	}
	return it, nil
}

// Run executes prog's statements in order against the root environment. If
// a top-level `@server(...)`-decorated function is found, ServerDecorator
// reports it instead of invoking an out-of-scope HTTP collaborator.
func (it *Interpreter) Run(prog *ast.Program) error {
	for _, s := range prog.Stmts {
		sig, err := it.execStmt(s)
		if err != nil {
			if qm, ok := err.(*questionMarkPropagation); ok {
				return newRuntimeError(QuestionMarkInNonResult, s.Pos(), "? propagated %s outside any function", Display(qm.value))
			}
			return err
		}
		if sig.kind == sigReturn {
			return nil
		}
		if sig.kind == sigBreak || sig.kind == sigContinue {
			return newRuntimeError(BreakOutsideLoop, s.Pos(), "%s outside a loop", signalName(sig.kind))
		}
	}
	it.scanServerDecorator(prog)
	return nil
}

// ServerDecorator returns the `@server(...)`-decorated function recognized
// at the end of Run, or nil if none was present. The HTTP collaborator
// itself is outside this package's scope (§6).
func (it *Interpreter) ServerDecorator() *ast.Decorator { return it.serverDecl }

func (it *Interpreter) scanServerDecorator(prog *ast.Program) {
	for _, s := range prog.Stmts {
		fn, ok := s.(*ast.FnStmt)
		if !ok {
			continue
		}
		for i := range fn.Decorators {
			if fn.Decorators[i].Name == "server" {
				it.serverDecl = &fn.Decorators[i]
				return
			}
		}
	}
}

func signalName(k sigKind) string {
	switch k {
	case sigBreak:
		return "break"
	case sigContinue:
		return "continue"
	default:
		return "signal"
	}
}

// execBlock pushes a scope, runs stmts, and pops it regardless of outcome.
func (it *Interpreter) execBlock(stmts []ast.Stmt) (signal, error) {
	it.env.PushScope()
	defer it.env.PopScope()
	for _, s := range stmts {
		sig, err := it.execStmt(s)
		if err != nil || sig.kind != sigNone {
			return sig, err
		}
	}
	return none, nil
}

// evalBlockExpr evaluates a BlockExpr's statements in a fresh scope and
// returns the value of its trailing ExprStmt, or null if the block ends
// some other way.
func (it *Interpreter) evalBlockExpr(stmts []ast.Stmt) (Value, error) {
	it.env.PushScope()
	defer it.env.PopScope()
	var last Value = Null()
	for i, s := range stmts {
		if es, ok := s.(*ast.ExprStmt); ok && i == len(stmts)-1 {
			v, err := it.evalExpr(es.X)
			if err != nil {
				return Value{}, err
			}
			return v, nil
		}
		sig, err := it.execStmt(s)
		if err != nil {
			return Value{}, err
		}
		if sig.kind != sigNone {
			return Value{}, newRuntimeError(ReturnOutsideFunction, s.Pos(), "%s is not permitted inside a block used as an expression", signalName(sig.kind))
		}
	}
	return last, nil
}

func spanOf(n ast.Node) token.Position { return n.Pos() }
