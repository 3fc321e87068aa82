package vm

import (
	"github.com/pkg/errors"

	"github.com/forge-lang/forge/ast"
	"github.com/forge-lang/forge/token"
)

// Compile lowers a parsed program into a root Chunk: a zero-argument
// function whose Code runs every top-level statement in order. Top-level
// `let`/`fn` bindings compile as globals, exactly the way the tree-walk
// interpreter's outermost Environment behaves.
func Compile(prog *ast.Program) (*Chunk, error) {
	c := &compiler{chunk: &Chunk{Name: "main"}, isTop: true}
	for _, s := range prog.Stmts {
		if err := c.compileStmt(s); err != nil {
			return nil, err
		}
	}
	c.chunk.emit(newABC(OpReturnNull, 0, 0, 0), 0)
	return c.chunk, nil
}

// localVar is one named register binding visible from the point it is
// declared to the end of its enclosing block.
type localVar struct {
	name  string
	reg   uint8
	depth int
}

// loopCtx tracks a loop's pending break/continue jumps until the loop's
// exit and continue points are known.
type loopCtx struct {
	breaks    []int
	continues []int
}

// compiler lowers one function body (or the top-level program) into a
// Chunk. Nested functions get their own compiler, linked via parent so
// identifier resolution can tell a genuine global from an unsupported
// capture of an enclosing function's local.
type compiler struct {
	parent  *compiler
	chunk   *Chunk
	isTop   bool
	locals  []localVar
	nextReg uint8
	depth   int
	loops   []loopCtx

	// upvalRegs and topUpvalReg track this function's captured variables
	// (one level of nesting only, see resolveCapture). Capture registers are
	// reserved top-down from the frame's ceiling so they never collide with
	// the bottom-up locals/temporaries allocator regardless of where in the
	// body a capture is first referenced.
	upvalRegs   map[string]uint8
	topUpvalReg uint8
}

func line(n ast.Node) int { return n.Pos().Line }

func (c *compiler) alloc() (uint8, error) {
	limit := maxRegistersPerFrame - 1
	if c.upvalRegs != nil {
		limit = int(c.topUpvalReg) + 1
	}
	if int(c.nextReg) >= limit {
		return 0, errors.Errorf("vm: %s exceeds the %d-register-per-frame limit", c.chunk.Name, maxRegistersPerFrame)
	}
	r := c.nextReg
	c.nextReg++
	if int(c.nextReg) > c.chunk.MaxRegisters {
		c.chunk.MaxRegisters = int(c.nextReg)
	}
	return r, nil
}

func (c *compiler) beginScope() uint8 {
	c.depth++
	return c.nextReg
}

func (c *compiler) endScope(saved uint8) {
	n := 0
	for n < len(c.locals) && c.locals[len(c.locals)-1-n].depth == c.depth {
		n++
	}
	c.locals = c.locals[:len(c.locals)-n]
	c.depth--
	c.nextReg = saved
}

func (c *compiler) declareLocal(name string) (uint8, error) {
	r, err := c.alloc()
	if err != nil {
		return 0, err
	}
	c.locals = append(c.locals, localVar{name: name, reg: r, depth: c.depth})
	return r, nil
}

func (c *compiler) resolveLocal(name string) (uint8, bool) {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			return c.locals[i].reg, true
		}
	}
	return 0, false
}

// capturedInEnclosing reports whether name is a local of some strictly
// enclosing function beyond the immediate parent (not the top level, which
// holds globals instead). Capturing the immediate parent's local is handled
// by resolveCapture; this only exists to produce a clear error for the
// deeper case (capturing a grandparent function's local), which the
// bytecode backend does not support — an upvalue would itself need to be
// captured by the intermediate function, and this compiler doesn't chain
// upvalues across more than one level.
func (c *compiler) capturedInEnclosing(name string) bool {
	for p := c.parent; p != nil; p = p.parent {
		if p.isTop {
			return false
		}
		if _, ok := p.resolveLocal(name); ok {
			return true
		}
	}
	return false
}

// resolveCapture resolves name as a local of c's immediate enclosing
// function, reserving a register in c's own frame to hold it for this
// function's lifetime and recording the capture in c.chunk.Upvalues. The
// register is taken from the top of the frame's register space downward
// (topUpvalReg), never from the bottom-up locals/temporaries counter, so a
// capture discovered mid-expression can never collide with a register a
// sibling statement allocates later. Repeated references to the same name
// reuse the register already reserved for it.
func (c *compiler) resolveCapture(name string) (uint8, bool, error) {
	if reg, ok := c.upvalRegs[name]; ok {
		return reg, true, nil
	}
	if c.parent == nil || c.isTop {
		return 0, false, nil
	}
	parentReg, ok := c.parent.resolveLocal(name)
	if !ok {
		return 0, false, nil
	}
	if c.upvalRegs == nil {
		c.upvalRegs = map[string]uint8{}
		c.topUpvalReg = 0xFF
	}
	if int(c.topUpvalReg) <= int(c.nextReg) {
		return 0, false, errors.Errorf("vm: %s: function captures too many variables for the bytecode backend", c.chunk.Name)
	}
	reg := c.topUpvalReg
	c.topUpvalReg--
	c.upvalRegs[name] = reg
	c.chunk.Upvalues = append(c.chunk.Upvalues, UpvalDesc{ParentReg: parentReg, ChildReg: reg})
	return reg, true, nil
}

func (c *compiler) constStrIdx8(s string) (uint8, error) {
	idx := c.chunk.addConstString(s)
	if idx > 0xFF {
		return 0, errors.New("vm: function exceeds the 256-entry field-name constant limit")
	}
	return uint8(idx), nil
}

// emitJumpTo emits a jump instruction whose displacement lands exactly on
// target, computed relative to the instruction that follows it (the VM
// advances ip past the jump before applying its displacement).
func (c *compiler) emitJumpTo(op Opcode, a uint8, target int, ln int) int {
	pos := len(c.chunk.Code)
	sbx := int16(target - (pos + 1))
	return c.chunk.emit(newAsBx(op, a, sbx), ln)
}

// patchJumpHere backpatches the jump at pos so it lands on the
// instruction about to be emitted next.
func (c *compiler) patchJumpHere(pos int) {
	target := len(c.chunk.Code)
	c.chunk.Code[pos].setSBx(int16(target - pos - 1))
}

// ---- statements ----

func (c *compiler) compileBlock(stmts []ast.Stmt) error {
	saved := c.beginScope()
	for _, s := range stmts {
		if err := c.compileStmt(s); err != nil {
			return err
		}
	}
	c.endScope(saved)
	return nil
}

func (c *compiler) compileStmt(s ast.Stmt) error {
	switch x := s.(type) {
	case *ast.LetStmt:
		return c.compileLet(x)
	case *ast.AssignStmt:
		return c.compileAssign(x)
	case *ast.ExprStmt:
		mark := c.nextReg
		if _, err := c.compileExpr(x.X); err != nil {
			return err
		}
		c.chunk.emit(newABC(OpPop, 0, 0, 0), line(x))
		c.nextReg = mark
		return nil
	case *ast.OutputStmt:
		return c.compileOutput(x)
	case *ast.IfStmt:
		return c.compileIf(x)
	case *ast.WhileStmt:
		return c.compileWhile(x)
	case *ast.LoopStmt:
		return c.compileLoop(x)
	case *ast.RepeatStmt:
		return c.compileRepeat(x)
	case *ast.ForStmt:
		return c.compileFor(x)
	case *ast.BreakStmt:
		return c.compileBreak(x)
	case *ast.ContinueStmt:
		return c.compileContinue(x)
	case *ast.ReturnStmt:
		return c.compileReturn(x)
	case *ast.FnStmt:
		return c.compileFnStmt(x)
	case *ast.SpawnStmt:
		return c.compileSpawn(x)
	default:
		return errors.Errorf("vm: %T statements are not supported by the bytecode backend", s)
	}
}

func (c *compiler) compileLet(s *ast.LetStmt) error {
	mark := c.nextReg
	vreg, err := c.compileExpr(s.Value)
	if err != nil {
		return err
	}
	if c.isTop {
		idx := c.chunk.addConstString(s.Name)
		c.chunk.emit(newABx(OpSetGlobal, vreg, idx), line(s))
		c.nextReg = mark
		return nil
	}
	c.locals = append(c.locals, localVar{name: s.Name, reg: vreg, depth: c.depth})
	return nil
}

func compoundOpcode(k token.Kind) (Opcode, error) {
	switch k {
	case token.PlusEq:
		return OpAdd, nil
	case token.MinusEq:
		return OpSub, nil
	case token.StarEq:
		return OpMul, nil
	case token.SlashEq:
		return OpDiv, nil
	default:
		return 0, errors.Errorf("vm: unsupported compound assignment operator %s", k)
	}
}

// compileAssignValue evaluates the value to store: the right-hand side
// directly for `=`, or the combined current/rhs value for a compound
// operator, reading the current value via currentExpr (the assignment's
// own target, re-read as an ordinary expression).
func (c *compiler) compileAssignValue(s *ast.AssignStmt, currentExpr ast.Expr) (uint8, error) {
	if s.Op == token.Assign {
		return c.compileExpr(s.Value)
	}
	cur, err := c.compileExpr(currentExpr)
	if err != nil {
		return 0, err
	}
	rhs, err := c.compileExpr(s.Value)
	if err != nil {
		return 0, err
	}
	op, err := compoundOpcode(s.Op)
	if err != nil {
		return 0, err
	}
	c.chunk.emit(newABC(op, cur, cur, rhs), line(s))
	c.nextReg = cur + 1
	return cur, nil
}

func (c *compiler) compileAssign(s *ast.AssignStmt) error {
	switch t := s.Target.(type) {
	case *ast.Ident:
		mark := c.nextReg
		result, err := c.compileAssignValue(s, t)
		if err != nil {
			return err
		}
		if reg, ok := c.resolveLocal(t.Name); ok {
			c.chunk.emit(newABC(OpSetLocal, result, reg, 0), line(s))
		} else if reg, ok, err := c.resolveCapture(t.Name); err != nil {
			return err
		} else if ok {
			c.chunk.emit(newABC(OpSetLocal, result, reg, 0), line(s))
		} else if c.capturedInEnclosing(t.Name) {
			return errors.Errorf("vm: %s: capturing a variable from more than one enclosing function is not supported by the bytecode backend", t.Name)
		} else {
			idx := c.chunk.addConstString(t.Name)
			c.chunk.emit(newABx(OpSetGlobal, result, idx), line(s))
		}
		c.nextReg = mark
		return nil
	case *ast.FieldExpr:
		mark := c.nextReg
		xreg, err := c.compileExpr(t.X)
		if err != nil {
			return err
		}
		result, err := c.compileAssignValue(s, t)
		if err != nil {
			return err
		}
		idx, err := c.constStrIdx8(t.Field)
		if err != nil {
			return err
		}
		c.chunk.emit(newABC(OpSetField, xreg, idx, result), line(s))
		c.nextReg = mark
		return nil
	case *ast.IndexExpr:
		mark := c.nextReg
		xreg, err := c.compileExpr(t.X)
		if err != nil {
			return err
		}
		idxreg, err := c.compileExpr(t.Index)
		if err != nil {
			return err
		}
		result, err := c.compileAssignValue(s, t)
		if err != nil {
			return err
		}
		c.chunk.emit(newABC(OpSetIndex, xreg, idxreg, result), line(s))
		c.nextReg = mark
		return nil
	default:
		return errors.Errorf("vm: %T is not an assignable target in the bytecode backend", s.Target)
	}
}

func outputNativeName(v ast.OutputVerb) string {
	switch v {
	case ast.Yell:
		return "yell"
	case ast.Whisper:
		return "whisper"
	default:
		return "say"
	}
}

func (c *compiler) compileOutput(s *ast.OutputStmt) error {
	mark := c.nextReg
	calleeReg, err := c.alloc()
	if err != nil {
		return err
	}
	idx := c.chunk.addConstString(outputNativeName(s.Verb))
	c.chunk.emit(newABx(OpGetGlobal, calleeReg, idx), line(s))
	if _, err := c.compileExpr(s.Value); err != nil {
		return err
	}
	c.chunk.emit(newABC(OpCall, calleeReg, 1, calleeReg), line(s))
	c.chunk.emit(newABC(OpPop, 0, 0, 0), line(s))
	c.nextReg = mark
	return nil
}

type condBranch struct {
	Cond ast.Expr
	Body []ast.Stmt
}

func (c *compiler) compileIf(s *ast.IfStmt) error {
	branches := make([]condBranch, 0, 1+len(s.ElseIfs))
	branches = append(branches, condBranch{s.Cond, s.Then})
	for _, ei := range s.ElseIfs {
		branches = append(branches, condBranch{ei.Cond, ei.Body})
	}
	var endJumps []int
	for _, b := range branches {
		mark := c.nextReg
		creg, err := c.compileExpr(b.Cond)
		if err != nil {
			return err
		}
		c.nextReg = mark
		jf := c.chunk.emit(newAsBx(OpJumpIfFalse, creg, 0), line(b.Cond))
		if err := c.compileBlock(b.Body); err != nil {
			return err
		}
		endJumps = append(endJumps, c.chunk.emit(newAsBx(OpJump, 0, 0), line(b.Cond)))
		c.patchJumpHere(jf)
	}
	if len(s.Else) > 0 {
		if err := c.compileBlock(s.Else); err != nil {
			return err
		}
	}
	for _, j := range endJumps {
		c.patchJumpHere(j)
	}
	return nil
}

func (c *compiler) compileWhile(s *ast.WhileStmt) error {
	loopStart := len(c.chunk.Code)
	mark := c.nextReg
	creg, err := c.compileExpr(s.Cond)
	if err != nil {
		return err
	}
	c.nextReg = mark
	exitJump := c.chunk.emit(newAsBx(OpJumpIfFalse, creg, 0), line(s))
	c.loops = append(c.loops, loopCtx{})
	if err := c.compileBlock(s.Body); err != nil {
		return err
	}
	top := &c.loops[len(c.loops)-1]
	for _, j := range top.continues {
		c.patchJumpHere(j)
	}
	c.emitJumpTo(OpLoop, 0, loopStart, line(s))
	c.patchJumpHere(exitJump)
	for _, j := range top.breaks {
		c.patchJumpHere(j)
	}
	c.loops = c.loops[:len(c.loops)-1]
	return nil
}

func (c *compiler) compileLoop(s *ast.LoopStmt) error {
	loopStart := len(c.chunk.Code)
	c.loops = append(c.loops, loopCtx{})
	if err := c.compileBlock(s.Body); err != nil {
		return err
	}
	top := &c.loops[len(c.loops)-1]
	for _, j := range top.continues {
		c.patchJumpHere(j)
	}
	c.emitJumpTo(OpLoop, 0, loopStart, line(s))
	for _, j := range top.breaks {
		c.patchJumpHere(j)
	}
	c.loops = c.loops[:len(c.loops)-1]
	return nil
}

// compileRepeat lowers `repeat N times { ... }` into a counted loop over a
// pair of hidden registers (target count, current index) that live above
// the body's own scope for the loop's whole lifetime.
func (c *compiler) compileRepeat(s *ast.RepeatStmt) error {
	mark := c.nextReg
	countReg, err := c.compileExpr(s.Count)
	if err != nil {
		return err
	}
	idxReg, err := c.alloc()
	if err != nil {
		return err
	}
	c.chunk.emit(newABx(OpLoadConst, idxReg, c.chunk.addConstInt(0)), line(s))
	loopStart := len(c.chunk.Code)
	condReg, err := c.alloc()
	if err != nil {
		return err
	}
	c.chunk.emit(newABC(OpLt, condReg, idxReg, countReg), line(s))
	exitJump := c.chunk.emit(newAsBx(OpJumpIfFalse, condReg, 0), line(s))
	c.nextReg = mark + 2
	c.loops = append(c.loops, loopCtx{})
	if err := c.compileBlock(s.Body); err != nil {
		return err
	}
	top := &c.loops[len(c.loops)-1]
	for _, j := range top.continues {
		c.patchJumpHere(j)
	}
	oneReg, err := c.alloc()
	if err != nil {
		return err
	}
	c.chunk.emit(newABx(OpLoadConst, oneReg, c.chunk.addConstInt(1)), line(s))
	c.chunk.emit(newABC(OpAdd, idxReg, idxReg, oneReg), line(s))
	c.nextReg = mark + 2
	c.emitJumpTo(OpLoop, 0, loopStart, line(s))
	c.patchJumpHere(exitJump)
	for _, j := range top.breaks {
		c.patchJumpHere(j)
	}
	c.loops = c.loops[:len(c.loops)-1]
	c.nextReg = mark
	return nil
}

// compileFor lowers `for v in iterable { ... }` (array form) into an
// index-counted loop, binding v to a fresh local each pass. The
// key-binding form (`for k, v in ...`, object iteration) is not supported:
// the bytecode format has no opcode to read the Nth key of an object.
func (c *compiler) compileFor(s *ast.ForStmt) error {
	if s.Key != "" {
		return errors.New("vm: for-each with a key binding is not supported by the bytecode backend")
	}
	mark := c.nextReg
	arrReg, err := c.compileExpr(s.Iterable)
	if err != nil {
		return err
	}
	idxReg, err := c.alloc()
	if err != nil {
		return err
	}
	c.chunk.emit(newABx(OpLoadConst, idxReg, c.chunk.addConstInt(0)), line(s))
	lenReg, err := c.alloc()
	if err != nil {
		return err
	}
	c.chunk.emit(newABC(OpLen, lenReg, arrReg, 0), line(s))
	loopStart := len(c.chunk.Code)
	condReg, err := c.alloc()
	if err != nil {
		return err
	}
	c.chunk.emit(newABC(OpLt, condReg, idxReg, lenReg), line(s))
	exitJump := c.chunk.emit(newAsBx(OpJumpIfFalse, condReg, 0), line(s))
	c.nextReg = mark + 3
	c.loops = append(c.loops, loopCtx{})
	saved := c.beginScope()
	elemReg, err := c.declareLocal(s.Value)
	if err != nil {
		return err
	}
	c.chunk.emit(newABC(OpGetIndex, elemReg, arrReg, idxReg), line(s))
	for _, st := range s.Body {
		if err := c.compileStmt(st); err != nil {
			return err
		}
	}
	c.endScope(saved)
	top := &c.loops[len(c.loops)-1]
	for _, j := range top.continues {
		c.patchJumpHere(j)
	}
	oneReg, err := c.alloc()
	if err != nil {
		return err
	}
	c.chunk.emit(newABx(OpLoadConst, oneReg, c.chunk.addConstInt(1)), line(s))
	c.chunk.emit(newABC(OpAdd, idxReg, idxReg, oneReg), line(s))
	c.nextReg = mark + 3
	c.emitJumpTo(OpLoop, 0, loopStart, line(s))
	c.patchJumpHere(exitJump)
	for _, j := range top.breaks {
		c.patchJumpHere(j)
	}
	c.loops = c.loops[:len(c.loops)-1]
	c.nextReg = mark
	return nil
}

func (c *compiler) compileBreak(s *ast.BreakStmt) error {
	if len(c.loops) == 0 {
		return errors.New("vm: break outside a loop")
	}
	pos := c.chunk.emit(newAsBx(OpJump, 0, 0), line(s))
	top := &c.loops[len(c.loops)-1]
	top.breaks = append(top.breaks, pos)
	return nil
}

func (c *compiler) compileContinue(s *ast.ContinueStmt) error {
	if len(c.loops) == 0 {
		return errors.New("vm: continue outside a loop")
	}
	pos := c.chunk.emit(newAsBx(OpJump, 0, 0), line(s))
	top := &c.loops[len(c.loops)-1]
	top.continues = append(top.continues, pos)
	return nil
}

func (c *compiler) compileReturn(s *ast.ReturnStmt) error {
	if s.Value == nil {
		c.chunk.emit(newABC(OpReturnNull, 0, 0, 0), line(s))
		return nil
	}
	mark := c.nextReg
	vreg, err := c.compileExpr(s.Value)
	if err != nil {
		return err
	}
	c.chunk.emit(newABC(OpReturn, vreg, 0, 0), line(s))
	c.nextReg = mark
	return nil
}

// compileFunctionBody compiles params+body as a fresh child Chunk under a
// new compiler scoped to it; params occupy registers 0..arity-1.
func (c *compiler) compileFunctionBody(name string, params []ast.Param, body []ast.Stmt) (*Chunk, error) {
	for _, p := range params {
		if p.Default != nil {
			return nil, errors.New("vm: default parameter values are not supported by the bytecode backend")
		}
	}
	child := &Chunk{Name: name, Arity: len(params)}
	fc := &compiler{parent: c, chunk: child}
	for _, p := range params {
		if _, err := fc.declareLocal(p.Name); err != nil {
			return nil, err
		}
	}
	for _, st := range body {
		if err := fc.compileStmt(st); err != nil {
			return nil, err
		}
	}
	child.emit(newABC(OpReturnNull, 0, 0, 0), 0)
	return child, nil
}

func (c *compiler) compileFnStmt(s *ast.FnStmt) error {
	if s.Async {
		return errors.New("vm: async functions are not supported by the bytecode backend")
	}
	child, err := c.compileFunctionBody(s.Name, s.Params, s.Body)
	if err != nil {
		return err
	}
	idx := len(c.chunk.Children)
	c.chunk.Children = append(c.chunk.Children, child)
	mark := c.nextReg
	dst, err := c.alloc()
	if err != nil {
		return err
	}
	c.chunk.emit(newABx(OpClosure, dst, uint16(idx)), line(s))
	if c.isTop {
		cidx := c.chunk.addConstString(s.Name)
		c.chunk.emit(newABx(OpSetGlobal, dst, cidx), line(s))
		c.nextReg = mark
	} else {
		c.locals = append(c.locals, localVar{name: s.Name, reg: dst, depth: c.depth})
	}
	return nil
}

// compileSpawn lowers `spawn { ... }` into a zero-argument closure enqueued
// via OpSpawn onto the VM's cooperative run queue (see RunSpawned).
func (c *compiler) compileSpawn(s *ast.SpawnStmt) error {
	child, err := c.compileFunctionBody("spawn", nil, s.Body)
	if err != nil {
		return err
	}
	idx := len(c.chunk.Children)
	c.chunk.Children = append(c.chunk.Children, child)
	mark := c.nextReg
	dst, err := c.alloc()
	if err != nil {
		return err
	}
	c.chunk.emit(newABx(OpClosure, dst, uint16(idx)), line(s))
	c.chunk.emit(newABC(OpSpawn, dst, 0, 0), line(s))
	c.nextReg = mark
	return nil
}

// ---- expressions ----

func (c *compiler) compileExpr(e ast.Expr) (uint8, error) {
	switch x := e.(type) {
	case *ast.IntLit:
		r, err := c.alloc()
		if err != nil {
			return 0, err
		}
		c.chunk.emit(newABx(OpLoadConst, r, c.chunk.addConstInt(x.Value)), line(x))
		return r, nil
	case *ast.FloatLit:
		r, err := c.alloc()
		if err != nil {
			return 0, err
		}
		c.chunk.emit(newABx(OpLoadConst, r, c.chunk.addConstFloat(x.Value)), line(x))
		return r, nil
	case *ast.BoolLit:
		r, err := c.alloc()
		if err != nil {
			return 0, err
		}
		if x.Value {
			c.chunk.emit(newABC(OpLoadTrue, r, 0, 0), line(x))
		} else {
			c.chunk.emit(newABC(OpLoadFalse, r, 0, 0), line(x))
		}
		return r, nil
	case *ast.NullLit:
		r, err := c.alloc()
		if err != nil {
			return 0, err
		}
		c.chunk.emit(newABC(OpLoadNull, r, 0, 0), line(x))
		return r, nil
	case *ast.StringLit:
		return c.compileStringConst(x.Value, line(x))
	case *ast.InterpString:
		return c.compileInterp(x)
	case *ast.Ident:
		return c.compileIdent(x)
	case *ast.ArrayLit:
		return c.compileArray(x)
	case *ast.ObjectLit:
		return c.compileObject(x)
	case *ast.BinaryExpr:
		return c.compileBinary(x)
	case *ast.UnaryExpr:
		return c.compileUnary(x)
	case *ast.FieldExpr:
		return c.compileField(x)
	case *ast.IndexExpr:
		return c.compileIndex(x)
	case *ast.CallExpr:
		return c.compileCall(x)
	case *ast.LambdaExpr:
		return c.compileLambda(x)
	case *ast.TryExpr:
		return c.compileTry(x)
	default:
		return 0, errors.Errorf("vm: %T expressions are not supported by the bytecode backend", e)
	}
}

func (c *compiler) compileStringConst(s string, ln int) (uint8, error) {
	r, err := c.alloc()
	if err != nil {
		return 0, err
	}
	c.chunk.emit(newABx(OpLoadConst, r, c.chunk.addConstString(s)), ln)
	return r, nil
}

func (c *compiler) compileIdent(e *ast.Ident) (uint8, error) {
	if reg, ok := c.resolveLocal(e.Name); ok {
		dst, err := c.alloc()
		if err != nil {
			return 0, err
		}
		c.chunk.emit(newABC(OpGetLocal, dst, reg, 0), line(e))
		return dst, nil
	}
	if reg, ok, err := c.resolveCapture(e.Name); err != nil {
		return 0, err
	} else if ok {
		dst, err := c.alloc()
		if err != nil {
			return 0, err
		}
		c.chunk.emit(newABC(OpGetLocal, dst, reg, 0), line(e))
		return dst, nil
	}
	if c.capturedInEnclosing(e.Name) {
		return 0, errors.Errorf("vm: %s: capturing a variable from more than one enclosing function is not supported by the bytecode backend", e.Name)
	}
	dst, err := c.alloc()
	if err != nil {
		return 0, err
	}
	c.chunk.emit(newABx(OpGetGlobal, dst, c.chunk.addConstString(e.Name)), line(e))
	return dst, nil
}

func (c *compiler) compileArray(e *ast.ArrayLit) (uint8, error) {
	start := c.nextReg
	for _, el := range e.Elements {
		if _, err := c.compileExpr(el); err != nil {
			return 0, err
		}
	}
	n := len(e.Elements)
	dst := start
	if n == 0 {
		var err error
		dst, err = c.alloc()
		if err != nil {
			return 0, err
		}
	}
	if n > 0xFF {
		return 0, errors.New("vm: array literal exceeds 255 elements")
	}
	c.chunk.emit(newABC(OpNewArray, dst, uint8(n), start), line(e))
	c.nextReg = start + 1
	return dst, nil
}

func fieldName(e ast.Expr) (string, error) {
	switch k := e.(type) {
	case *ast.Ident:
		return k.Name, nil
	case *ast.StringLit:
		return k.Value, nil
	default:
		return "", errors.Errorf("vm: computed object keys are not supported by the bytecode backend")
	}
}

func (c *compiler) compileObject(e *ast.ObjectLit) (uint8, error) {
	start := c.nextReg
	dst, err := c.alloc()
	if err != nil {
		return 0, err
	}
	c.chunk.emit(newABC(OpNewObject, dst, 0, 0), line(e))
	for _, ent := range e.Entries {
		name, err := fieldName(ent.Key)
		if err != nil {
			return 0, err
		}
		mark := c.nextReg
		vreg, err := c.compileExpr(ent.Value)
		if err != nil {
			return 0, err
		}
		idx, err := c.constStrIdx8(name)
		if err != nil {
			return 0, err
		}
		c.chunk.emit(newABC(OpSetField, dst, idx, vreg), line(e))
		c.nextReg = mark
	}
	c.nextReg = start + 1
	return dst, nil
}

func binOpcode(k token.Kind) (Opcode, error) {
	switch k {
	case token.Plus:
		return OpAdd, nil
	case token.Minus:
		return OpSub, nil
	case token.Star:
		return OpMul, nil
	case token.Slash:
		return OpDiv, nil
	case token.Percent:
		return OpMod, nil
	case token.Eq:
		return OpEq, nil
	case token.NotEq:
		return OpNotEq, nil
	case token.Lt:
		return OpLt, nil
	case token.Gt:
		return OpGt, nil
	case token.LtEq:
		return OpLtEq, nil
	case token.GtEq:
		return OpGtEq, nil
	default:
		return 0, errors.Errorf("vm: unsupported binary operator %s", k)
	}
}

func (c *compiler) compileBinary(e *ast.BinaryExpr) (uint8, error) {
	switch e.Op {
	case token.And:
		return c.compileShortCircuit(e, true)
	case token.Or:
		return c.compileShortCircuit(e, false)
	}
	start := c.nextReg
	lreg, err := c.compileExpr(e.Left)
	if err != nil {
		return 0, err
	}
	rreg, err := c.compileExpr(e.Right)
	if err != nil {
		return 0, err
	}
	op, err := binOpcode(e.Op)
	if err != nil {
		return 0, err
	}
	c.chunk.emit(newABC(op, lreg, lreg, rreg), line(e))
	c.nextReg = start + 1
	return lreg, nil
}

// compileShortCircuit lowers `&&`/`||` via jumps instead of OpAnd/OpOr so
// the right operand is never evaluated once the left already decides the
// result (testable property: `false && f()` must never call f).
func (c *compiler) compileShortCircuit(e *ast.BinaryExpr, isAnd bool) (uint8, error) {
	start := c.nextReg
	if _, err := c.compileExpr(e.Left); err != nil {
		return 0, err
	}
	c.nextReg = start + 1
	var skip int
	if isAnd {
		skip = c.chunk.emit(newAsBx(OpJumpIfFalse, start, 0), line(e))
	} else {
		skip = c.chunk.emit(newAsBx(OpJumpIfTrue, start, 0), line(e))
	}
	c.nextReg = start
	if _, err := c.compileExpr(e.Right); err != nil {
		return 0, err
	}
	end := c.chunk.emit(newAsBx(OpJump, 0, 0), line(e))
	c.patchJumpHere(skip)
	c.patchJumpHere(end)
	c.nextReg = start + 1
	return start, nil
}

func (c *compiler) compileUnary(e *ast.UnaryExpr) (uint8, error) {
	start := c.nextReg
	xreg, err := c.compileExpr(e.X)
	if err != nil {
		return 0, err
	}
	var op Opcode
	switch e.Op {
	case token.Minus:
		op = OpNeg
	case token.Not:
		op = OpNot
	default:
		return 0, errors.Errorf("vm: unsupported unary operator %s", e.Op)
	}
	c.chunk.emit(newABC(op, xreg, xreg, 0), line(e))
	c.nextReg = start + 1
	return xreg, nil
}

func (c *compiler) compileField(e *ast.FieldExpr) (uint8, error) {
	start := c.nextReg
	xreg, err := c.compileExpr(e.X)
	if err != nil {
		return 0, err
	}
	idx, err := c.constStrIdx8(e.Field)
	if err != nil {
		return 0, err
	}
	c.chunk.emit(newABC(OpGetField, xreg, xreg, idx), line(e))
	c.nextReg = start + 1
	return xreg, nil
}

func (c *compiler) compileIndex(e *ast.IndexExpr) (uint8, error) {
	start := c.nextReg
	xreg, err := c.compileExpr(e.X)
	if err != nil {
		return 0, err
	}
	idxreg, err := c.compileExpr(e.Index)
	if err != nil {
		return 0, err
	}
	c.chunk.emit(newABC(OpGetIndex, xreg, xreg, idxreg), line(e))
	c.nextReg = start + 1
	return xreg, nil
}

func (c *compiler) compileCall(e *ast.CallExpr) (uint8, error) {
	start := c.nextReg
	calleeReg, err := c.compileExpr(e.Callee)
	if err != nil {
		return 0, err
	}
	for _, a := range e.Args {
		if _, err := c.compileExpr(a); err != nil {
			return 0, err
		}
	}
	argc := len(e.Args)
	if argc > 0xFF {
		return 0, errors.New("vm: call exceeds 255 arguments")
	}
	c.chunk.emit(newABC(OpCall, calleeReg, uint8(argc), calleeReg), line(e))
	c.nextReg = start + 1
	return calleeReg, nil
}

func (c *compiler) compileLambda(e *ast.LambdaExpr) (uint8, error) {
	child, err := c.compileFunctionBody("lambda", e.Params, e.Body)
	if err != nil {
		return 0, err
	}
	idx := len(c.chunk.Children)
	c.chunk.Children = append(c.chunk.Children, child)
	dst, err := c.alloc()
	if err != nil {
		return 0, err
	}
	c.chunk.emit(newABx(OpClosure, dst, uint16(idx)), line(e))
	return dst, nil
}

func (c *compiler) compileTry(e *ast.TryExpr) (uint8, error) {
	start := c.nextReg
	xreg, err := c.compileExpr(e.X)
	if err != nil {
		return 0, err
	}
	c.chunk.emit(newABC(OpTry, xreg, xreg, 0), line(e))
	c.nextReg = start + 1
	return xreg, nil
}

// compileInterp lowers a `"...{expr}..."` interpolation into a sequence of
// register loads followed by OpConcat (the common two-part case) or
// OpInterpolate (any other part count), joining each part's displayed form
// left to right.
func (c *compiler) compileInterp(e *ast.InterpString) (uint8, error) {
	start := c.nextReg
	count := 0
	for i, lit := range e.Literals {
		if lit != "" {
			if _, err := c.compileStringConst(lit, line(e)); err != nil {
				return 0, err
			}
			count++
		}
		if i < len(e.Fragments) {
			if _, err := c.compileExpr(e.Fragments[i]); err != nil {
				return 0, err
			}
			count++
		}
	}
	if count == 0 {
		return c.compileStringConst("", line(e))
	}
	if count > 0xFF {
		return 0, errors.New("vm: interpolated string exceeds 255 parts")
	}
	dst := start
	if count == 2 {
		c.chunk.emit(newABC(OpConcat, dst, start, start+1), line(e))
	} else {
		c.chunk.emit(newABC(OpInterpolate, dst, start, uint8(count)), line(e))
	}
	c.nextReg = start + 1
	return dst, nil
}
