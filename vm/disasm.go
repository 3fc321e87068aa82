package vm

import (
	"bytes"
	"fmt"
)

// Disassemble renders chunk and (recursively) its children as human-readable
// text, one instruction per line prefixed with its source line number, the
// way ngaro's own Image.Disassemble walks a cell stream one opcode at a
// time. It is a debugging aid; nothing in the VM itself reads this output.
func Disassemble(chunk *Chunk) string {
	var buf bytes.Buffer
	disassembleChunk(&buf, chunk, "")
	return buf.String()
}

func disassembleChunk(buf *bytes.Buffer, c *Chunk, indent string) {
	fmt.Fprintf(buf, "%schunk %s (arity=%d, registers=%d)\n", indent, chunkLabel(c), c.Arity, c.MaxRegisters)
	for pc, ins := range c.Code {
		line := 0
		if pc < len(c.Lines) {
			line = c.Lines[pc]
		}
		fmt.Fprintf(buf, "%s  %4d  [%4d]  %s\n", indent, pc, line, disassembleInstr(c, ins))
	}
	for i, child := range c.Children {
		fmt.Fprintf(buf, "%s  -- child %d --\n", indent, i)
		disassembleChunk(buf, child, indent+"  ")
	}
}

func chunkLabel(c *Chunk) string {
	if c.Name == "" {
		return "<anonymous>"
	}
	return c.Name
}

func disassembleInstr(c *Chunk, ins Instr) string {
	op := ins.Op()
	switch op {
	case OpLoadConst, OpGetGlobal, OpSetGlobal, OpClosure:
		return fmt.Sprintf("%-12s A=%d Bx=%d  %s", op, ins.A(), ins.Bx(), constOrChildComment(c, op, ins.Bx()))
	case OpJump, OpJumpIfFalse, OpJumpIfTrue, OpLoop:
		return fmt.Sprintf("%-12s A=%d sBx=%d", op, ins.A(), ins.SBx())
	case OpLoadNull, OpLoadTrue, OpLoadFalse, OpReturn, OpLen, OpSpawn, OpPop, OpReturnNull:
		return fmt.Sprintf("%-12s A=%d", op, ins.A())
	case OpMove, OpGetLocal, OpSetLocal, OpNeg, OpNot, OpTry:
		return fmt.Sprintf("%-12s A=%d B=%d", op, ins.A(), ins.B())
	default:
		return fmt.Sprintf("%-12s A=%d B=%d C=%d", op, ins.A(), ins.B(), ins.C())
	}
}

func constOrChildComment(c *Chunk, op Opcode, idx uint16) string {
	switch op {
	case OpClosure:
		if int(idx) < len(c.Children) {
			return "; " + chunkLabel(c.Children[idx])
		}
	case OpLoadConst, OpGetGlobal, OpSetGlobal:
		if int(idx) < len(c.Constants) {
			return "; " + constantComment(c.Constants[idx])
		}
	}
	return ""
}

func constantComment(k Constant) string {
	switch k.Kind {
	case ConstInt:
		return fmt.Sprintf("%d", k.Int)
	case ConstFloat:
		return fmt.Sprintf("%g", k.Flt)
	case ConstString:
		return fmt.Sprintf("%q", k.Str)
	case ConstBool:
		return fmt.Sprintf("%t", k.Bool)
	default:
		return ""
	}
}
