// Package check implements a best-effort type checker: a single AST walk
// that collects non-fatal warnings and never mutates the tree or aborts
// execution. Its findings are advisory; the caller decides whether and how
// to surface them.
package check

import (
	"fmt"

	"github.com/forge-lang/forge/ast"
	"github.com/forge-lang/forge/token"
)

// knownTypes are the annotation spellings the checker recognizes; anything
// else is flagged as an unknown type name rather than silently accepted.
var knownTypes = map[string]bool{
	"int": true, "float": true, "string": true, "bool": true, "null": true,
	"array": true, "object": true, "result": true, "option": true, "fn": true, "any": true,
}

// Warning is one non-fatal finding.
type Warning struct {
	Span token.Position
	Msg  string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Span, w.Msg)
}

// Checker walks a Program collecting Warnings.
type Checker struct {
	warnings []Warning
	fnArity  map[string]int
}

// New returns an empty Checker.
func New() *Checker {
	return &Checker{fnArity: map[string]int{}}
}

// Check walks prog and returns every warning found, in source order.
func Check(prog *ast.Program) []Warning {
	c := New()
	c.collectFnArities(prog.Stmts)
	for _, s := range prog.Stmts {
		c.checkStmt(s)
	}
	return c.warnings
}

func (c *Checker) warn(span token.Position, format string, args ...interface{}) {
	c.warnings = append(c.warnings, Warning{Span: span, Msg: fmt.Sprintf(format, args...)})
}

// collectFnArities records every top-level and nested function's declared
// parameter count, so later direct-call sites can be checked against it.
func (c *Checker) collectFnArities(stmts []ast.Stmt) {
	for _, s := range stmts {
		if fn, ok := s.(*ast.FnStmt); ok {
			c.fnArity[fn.Name] = requiredArity(fn.Params)
			c.collectFnArities(fn.Body)
		}
	}
}

func requiredArity(params []ast.Param) int {
	n := 0
	for _, p := range params {
		if p.Default != nil {
			break
		}
		n++
	}
	return n
}

func (c *Checker) checkType(name string, span token.Position) {
	if name == "" {
		return
	}
	if !knownTypes[name] {
		c.warn(span, "unknown annotated type %q", name)
	}
}

func (c *Checker) checkStmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.LetStmt:
		c.checkType(s.Type, s.Span)
		if s.Type != "" {
			c.checkAnnotationMatch(s.Type, s.Value, s.Span)
		}
		c.checkExpr(s.Value)
	case *ast.AssignStmt:
		c.checkExpr(s.Target)
		c.checkExpr(s.Value)
	case *ast.FnStmt:
		for _, p := range s.Params {
			c.checkType(p.Type, s.Span)
			if p.Default != nil {
				c.checkExpr(p.Default)
			}
		}
		c.checkBlock(s.Body)
	case *ast.StructStmt:
		for _, f := range s.Fields {
			c.checkType(f.Type, s.Span)
		}
	case *ast.IfStmt:
		c.checkExpr(s.Cond)
		c.checkBlock(s.Then)
		for _, ei := range s.ElseIfs {
			c.checkExpr(ei.Cond)
			c.checkBlock(ei.Body)
		}
		c.checkBlock(s.Else)
	case *ast.ForStmt:
		c.checkExpr(s.Iterable)
		c.checkBlock(s.Body)
	case *ast.WhileStmt:
		c.checkExpr(s.Cond)
		c.checkBlock(s.Body)
	case *ast.LoopStmt:
		c.checkBlock(s.Body)
	case *ast.RepeatStmt:
		c.checkExpr(s.Count)
		c.checkBlock(s.Body)
	case *ast.ReturnStmt:
		if s.Value != nil {
			c.checkExpr(s.Value)
		}
	case *ast.SpawnStmt:
		c.checkBlock(s.Body)
	case *ast.TryStmt:
		c.checkBlock(s.Body)
		c.checkBlock(s.Catch)
	case *ast.SafeStmt:
		c.checkBlock(s.Body)
	case *ast.MustStmt:
		c.checkExpr(s.Value)
	case *ast.CheckStmt:
		c.checkExpr(s.Cond)
	case *ast.TimeoutStmt:
		c.checkExpr(s.Duration)
		c.checkBlock(s.Body)
	case *ast.RetryStmt:
		c.checkExpr(s.Count)
		c.checkBlock(s.Body)
	case *ast.ScheduleStmt:
		c.checkExpr(s.Interval)
		c.checkBlock(s.Body)
	case *ast.WatchStmt:
		c.checkExpr(s.Cond)
		c.checkBlock(s.Body)
	case *ast.OutputStmt:
		c.checkExpr(s.Value)
	case *ast.ExprStmt:
		c.checkExpr(s.X)
	}
}

func (c *Checker) checkBlock(stmts []ast.Stmt) {
	for _, s := range stmts {
		c.checkStmt(s)
	}
}

// checkAnnotationMatch flags a LetStmt whose declared type annotation
// cannot possibly match the literal shape of its initializer. Only direct
// literal mismatches are flagged; anything computed is left unchecked since
// the checker has no inference pass.
func (c *Checker) checkAnnotationMatch(ann string, v ast.Expr, span token.Position) {
	var actual string
	switch v.(type) {
	case *ast.IntLit:
		actual = "int"
	case *ast.FloatLit:
		actual = "float"
	case *ast.StringLit, *ast.InterpString:
		actual = "string"
	case *ast.BoolLit:
		actual = "bool"
	case *ast.NullLit:
		actual = "null"
	case *ast.ArrayLit:
		actual = "array"
	case *ast.ObjectLit:
		actual = "object"
	case *ast.LambdaExpr:
		actual = "fn"
	default:
		return
	}
	if actual != ann && ann != "any" && knownTypes[ann] {
		c.warn(span, "annotated type %q does not match literal of type %q", ann, actual)
	}
}

func (c *Checker) checkExpr(e ast.Expr) {
	switch e := e.(type) {
	case *ast.BinaryExpr:
		c.checkExpr(e.Left)
		c.checkExpr(e.Right)
	case *ast.UnaryExpr:
		c.checkExpr(e.X)
	case *ast.FieldExpr:
		c.checkExpr(e.X)
	case *ast.IndexExpr:
		c.checkExpr(e.X)
		c.checkExpr(e.Index)
	case *ast.CallExpr:
		c.checkExpr(e.Callee)
		for _, a := range e.Args {
			c.checkExpr(a)
		}
		if id, ok := e.Callee.(*ast.Ident); ok {
			if want, ok := c.fnArity[id.Name]; ok && len(e.Args) < want {
				c.warn(e.Span, "call to %q passes %d argument(s), expected at least %d", id.Name, len(e.Args), want)
			}
		}
	case *ast.MethodCallExpr:
		c.checkExpr(e.Recv)
		for _, a := range e.Args {
			c.checkExpr(a)
		}
	case *ast.LambdaExpr:
		c.checkBlock(e.Body)
	case *ast.TryExpr:
		c.checkExpr(e.X)
	case *ast.AwaitExpr:
		c.checkExpr(e.X)
	case *ast.SpreadExpr:
		c.checkExpr(e.X)
	case *ast.MustExpr:
		c.checkExpr(e.X)
	case *ast.FreezeExpr:
		c.checkExpr(e.X)
	case *ast.AskExpr:
		c.checkExpr(e.Prompt)
	case *ast.WhereExpr:
		c.checkExpr(e.Source)
		c.checkExpr(e.Pred)
	case *ast.PipeExpr:
		c.checkExpr(e.Value)
		c.checkExpr(e.Call)
	case *ast.ArrayLit:
		for _, el := range e.Elements {
			c.checkExpr(el)
		}
	case *ast.ObjectLit:
		for _, ent := range e.Entries {
			c.checkExpr(ent.Value)
		}
	case *ast.StructInitExpr:
		for _, ent := range e.Entries {
			c.checkExpr(ent.Value)
		}
	case *ast.InterpString:
		for _, f := range e.Fragments {
			c.checkExpr(f)
		}
	case *ast.BlockExpr:
		c.checkBlock(e.Stmts)
	case *ast.WhenExpr:
		c.checkExpr(e.Subject)
		for _, arm := range e.Arms {
			if arm.Rhs != nil {
				c.checkExpr(arm.Rhs)
			}
			c.checkExpr(arm.Body)
		}
	case *ast.MatchExpr:
		c.checkExpr(e.Subject)
		for _, arm := range e.Arms {
			c.checkExpr(arm.Body)
		}
	}
}
