package vm

import (
	"github.com/pkg/errors"
)

// controlSignal is what a frame's execution loop hands back to its
// caller: an ordinary return, or an in-flight `?` propagation riding the
// call stack up to its enclosing function, mirroring interp's sentinel
// approach for the same construct.
type controlSignal int

const (
	sigReturn controlSignal = iota
	sigPropagate
)

// Run executes chunk as the program's top-level function (arity 0, no
// captured variables) and returns its final value.
func (i *Instance) Run(chunk *Chunk) (Value, error) {
	top := &closureData{proto: chunk}
	ref := i.heap.alloc(heapObject{kind: hClosure, closure: top})
	return i.call(ref, top, nil)
}

// call invokes a closure (native or compiled) with already-evaluated
// arguments and returns its result. A `?` that propagates partway through
// the callee's body (sigPropagate) is fully resolved here: it only means
// "stop running the callee's remaining instructions early," exactly the
// way interp's own question-mark sentinel is unwrapped at the call
// boundary into that call's ordinary return value — the caller never sees
// the distinction between an early-propagated result and a plain `return`.
func (i *Instance) call(calleeRef int, cd *closureData, args []Value) (Value, error) {
	if cd.isNative {
		return cd.nativeFn(i, args)
	}
	if len(i.frames) >= maxFrames {
		return Value{}, errors.New("vm: call stack exceeded maximum frame depth")
	}
	if len(args) != cd.proto.Arity {
		return Value{}, errors.Errorf("vm: %s expects %d argument(s), got %d", cd.proto.Name, cd.proto.Arity, len(args))
	}
	base := 0
	if n := len(i.frames); n > 0 {
		base = i.frames[n-1].base + maxRegistersPerFrame
	}
	if base+maxRegistersPerFrame > len(i.regs) {
		i.regs = append(i.regs, make([]Value, maxRegistersPerFrame)...)
	}
	window := i.regs[base : base+maxRegistersPerFrame]
	copy(window, args)
	for idx, u := range cd.proto.Upvalues {
		window[u.ChildReg] = cd.upvalues[idx]
	}
	i.frames = append(i.frames, frame{closure: cd, calleeRef: calleeRef, base: base})
	v, _, err := i.execFrame()
	i.frames = i.frames[:len(i.frames)-1]
	// Captured variables live in the closure's own upvalues slice between
	// calls (not the register window, which is reused by every call): write
	// back whatever this call left in its captured registers so the next
	// invocation of the same closure sees the mutation, the way the counter
	// closure's `n` must accumulate across repeated calls.
	for idx, u := range cd.proto.Upvalues {
		cd.upvalues[idx] = window[u.ChildReg]
	}
	return v, err
}

// execFrame runs the fetch-decode-execute loop for the current top frame
// until it returns, propagates a `?`, or faults.
func (i *Instance) execFrame() (Value, controlSignal, error) {
	fi := len(i.frames) - 1
	f := &i.frames[fi]
	chunk := f.closure.proto
	reg := i.regs[f.base : f.base+maxRegistersPerFrame]

	for {
		if f.ip >= len(chunk.Code) {
			return vNull(), sigReturn, nil
		}
		ins := chunk.Code[f.ip]
		f.ip++
		op := ins.Op()
		switch op {
		case OpLoadConst:
			reg[ins.A()] = constToValue(chunk.Constants[ins.Bx()])
		case OpLoadNull:
			reg[ins.A()] = vNull()
		case OpLoadTrue:
			reg[ins.A()] = vBool(true)
		case OpLoadFalse:
			reg[ins.A()] = vBool(false)

		case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpEq, OpNotEq, OpLt, OpGt, OpLtEq, OpGtEq, OpAnd, OpOr:
			v, err := i.binOp(op, reg[ins.B()], reg[ins.C()])
			if err != nil {
				return Value{}, sigReturn, err
			}
			reg[ins.A()] = v
		case OpNeg:
			v := reg[ins.B()]
			switch v.Kind {
			case VInt:
				reg[ins.A()] = vInt(-v.Int)
			case VFloat:
				reg[ins.A()] = vFloat(-v.Float)
			default:
				return Value{}, sigReturn, errors.Errorf("vm: cannot negate a %s", v.TypeName(i.heap))
			}
		case OpNot:
			reg[ins.A()] = vBool(!reg[ins.B()].Truthy(i.heap))

		case OpMove:
			reg[ins.A()] = reg[ins.B()]
		case OpGetLocal:
			reg[ins.A()] = reg[ins.B()]
		case OpSetLocal:
			reg[ins.B()] = reg[ins.A()]
		case OpGetGlobal:
			name := chunk.Constants[ins.Bx()].Str
			reg[ins.A()] = i.globals[name]
		case OpSetGlobal:
			name := chunk.Constants[ins.Bx()].Str
			i.globals[name] = reg[ins.A()]

		case OpNewArray:
			n := int(ins.B())
			elems := make([]Value, n)
			copy(elems, reg[ins.C():int(ins.C())+n])
			reg[ins.A()] = i.heap.allocArray(elems)
			i.maybeCollect()
		case OpNewObject:
			reg[ins.A()] = i.heap.allocObject(newObjData())
			i.maybeCollect()
		case OpGetField:
			v, err := i.getField(reg[ins.B()], chunk.Constants[ins.C()].Str)
			if err != nil {
				return Value{}, sigReturn, err
			}
			reg[ins.A()] = v
		case OpSetField:
			recv := reg[ins.A()]
			if recv.Kind != VHeap || i.heap.get(recv.Ref).kind != hObject {
				return Value{}, sigReturn, errors.Errorf("vm: cannot set a field on a %s", recv.TypeName(i.heap))
			}
			i.heap.get(recv.Ref).obj.set(chunk.Constants[ins.B()].Str, reg[ins.C()])
		case OpGetIndex:
			v, err := i.getIndex(reg[ins.B()], reg[ins.C()])
			if err != nil {
				return Value{}, sigReturn, err
			}
			reg[ins.A()] = v
		case OpSetIndex:
			if err := i.setIndex(reg[ins.A()], reg[ins.B()], reg[ins.C()]); err != nil {
				return Value{}, sigReturn, err
			}
		case OpConcat:
			reg[ins.A()] = vString(display(reg[ins.B()], i.heap) + display(reg[ins.C()], i.heap))
		case OpLen:
			n, err := i.length(reg[ins.B()])
			if err != nil {
				return Value{}, sigReturn, err
			}
			reg[ins.A()] = vInt(int64(n))
		case OpInterpolate:
			b, c := int(ins.B()), int(ins.C())
			var sb []byte
			for _, v := range reg[b : b+c] {
				sb = append(sb, display(v, i.heap)...)
			}
			reg[ins.A()] = vString(string(sb))
		case OpExtractField:
			if _, ok := wrapperTag(reg[ins.B()], i.heap); !ok {
				return Value{}, sigReturn, errors.Errorf("vm: %s is not a Result/Option wrapper", reg[ins.B()].TypeName(i.heap))
			}
			v, _ := i.getField(reg[ins.B()], "value")
			reg[ins.A()] = v

		case OpJump:
			f.ip += int(ins.SBx())
		case OpJumpIfFalse:
			if !reg[ins.A()].Truthy(i.heap) {
				f.ip += int(ins.SBx())
			}
		case OpJumpIfTrue:
			if reg[ins.A()].Truthy(i.heap) {
				f.ip += int(ins.SBx())
			}
		case OpLoop:
			f.ip += int(ins.SBx())

		case OpCall:
			calleeReg, argc, resultReg := ins.A(), int(ins.B()), ins.C()
			calleeVal := reg[calleeReg]
			if calleeVal.Kind != VHeap || i.heap.get(calleeVal.Ref).kind != hClosure {
				return Value{}, sigReturn, errors.Errorf("vm: %s is not callable", calleeVal.TypeName(i.heap))
			}
			cd := i.heap.get(calleeVal.Ref).closure
			args := append([]Value(nil), reg[int(calleeReg)+1:int(calleeReg)+1+argc]...)
			v, err := i.call(calleeVal.Ref, cd, args)
			// The nested call may have appended to i.frames and/or i.regs,
			// reallocating either backing array: re-derive both f and reg
			// from the frame's index rather than trusting the old pointer.
			f = &i.frames[fi]
			reg = i.regs[f.base : f.base+maxRegistersPerFrame]
			if err != nil {
				return Value{}, sigReturn, err
			}
			reg[resultReg] = v
			i.maybeCollect()
		case OpReturn:
			return reg[ins.A()], sigReturn, nil
		case OpReturnNull:
			return vNull(), sigReturn, nil
		case OpClosure:
			child := chunk.Children[ins.Bx()]
			upvals := make([]Value, len(child.Upvalues))
			for idx, d := range child.Upvalues {
				upvals[idx] = reg[d.ParentReg]
			}
			cd := &closureData{proto: child, upvalues: upvals}
			reg[ins.A()] = i.heap.allocClosure(cd)
			i.maybeCollect()

		case OpTry:
			v := reg[ins.B()]
			tag, ok := wrapperTag(v, i.heap)
			if !ok {
				return Value{}, sigReturn, errors.Errorf("vm: ? applied to a %s, not a Result/Option", v.TypeName(i.heap))
			}
			if tag == "Err" || tag == "None" {
				return v, sigPropagate, nil
			}
			inner, _ := i.getField(v, "value")
			reg[ins.A()] = inner
		case OpSpawn:
			v := reg[ins.A()]
			if v.Kind == VHeap && i.heap.get(v.Ref).kind == hClosure {
				i.spawned = append(i.spawned, i.heap.get(v.Ref).closure)
			}
		case OpPop:
			// Register lifetime bookkeeping only; no runtime effect.

		default:
			return Value{}, sigReturn, errors.Errorf("vm: unknown opcode %d", op)
		}
	}
}

// RunSpawned drains the green-thread scaffold's queue, running each
// queued task to completion before the next — cooperative in name,
// sequential in practice, per the VM's frozen scheduling policy.
func (i *Instance) RunSpawned() error {
	for len(i.spawned) > 0 {
		cd := i.spawned[0]
		i.spawned = i.spawned[1:]
		ref := i.heap.alloc(heapObject{kind: hClosure, closure: cd})
		if _, err := i.call(ref, cd, nil); err != nil {
			return err
		}
	}
	return nil
}

func constToValue(c Constant) Value {
	switch c.Kind {
	case ConstInt:
		return vInt(c.Int)
	case ConstFloat:
		return vFloat(c.Flt)
	case ConstString:
		return vString(c.Str)
	case ConstBool:
		return vBool(c.Bool)
	default:
		return vNull()
	}
}

func (i *Instance) binOp(op Opcode, l, r Value) (Value, error) {
	switch op {
	case OpAnd:
		return vBool(l.Truthy(i.heap) && r.Truthy(i.heap)), nil
	case OpOr:
		return vBool(l.Truthy(i.heap) || r.Truthy(i.heap)), nil
	case OpEq:
		return vBool(valuesEqual(l, r, i.heap)), nil
	case OpNotEq:
		return vBool(!valuesEqual(l, r, i.heap)), nil
	}
	if op == OpAdd && (l.Kind == VString || r.Kind == VString) {
		if l.Kind != VString || r.Kind != VString {
			return Value{}, errors.Errorf("vm: cannot add %s and %s", l.TypeName(i.heap), r.TypeName(i.heap))
		}
		return vString(l.Str + r.Str), nil
	}
	lf, lok := asFloat(l)
	rf, rok := asFloat(r)
	if !lok || !rok {
		return Value{}, errors.Errorf("vm: cannot apply %s to %s and %s", op, l.TypeName(i.heap), r.TypeName(i.heap))
	}
	bothInt := l.Kind == VInt && r.Kind == VInt
	switch op {
	case OpAdd:
		if bothInt {
			return vInt(l.Int + r.Int), nil
		}
		return vFloat(lf + rf), nil
	case OpSub:
		if bothInt {
			return vInt(l.Int - r.Int), nil
		}
		return vFloat(lf - rf), nil
	case OpMul:
		if bothInt {
			return vInt(l.Int * r.Int), nil
		}
		return vFloat(lf * rf), nil
	case OpDiv:
		if rf == 0 {
			return Value{}, errors.New("vm: division by zero")
		}
		if bothInt {
			return vInt(l.Int / r.Int), nil
		}
		return vFloat(lf / rf), nil
	case OpMod:
		if bothInt {
			if r.Int == 0 {
				return Value{}, errors.New("vm: division by zero")
			}
			return vInt(l.Int % r.Int), nil
		}
		return Value{}, errors.New("vm: mod requires int operands")
	case OpLt:
		return vBool(lf < rf), nil
	case OpGt:
		return vBool(lf > rf), nil
	case OpLtEq:
		return vBool(lf <= rf), nil
	case OpGtEq:
		return vBool(lf >= rf), nil
	}
	return Value{}, errors.Errorf("vm: unsupported binary opcode %s", op)
}

func asFloat(v Value) (float64, bool) {
	switch v.Kind {
	case VInt:
		return float64(v.Int), true
	case VFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

func (i *Instance) getField(recv Value, name string) (Value, error) {
	if recv.Kind != VHeap || i.heap.get(recv.Ref).kind != hObject {
		return Value{}, errors.Errorf("vm: cannot read field %q of a %s", name, recv.TypeName(i.heap))
	}
	o := i.heap.get(recv.Ref).obj
	v, ok := o.vals[name]
	if !ok {
		return Value{}, errors.Errorf("vm: object has no field %q", name)
	}
	return v, nil
}

func (i *Instance) getIndex(recv, idx Value) (Value, error) {
	switch {
	case recv.Kind == VHeap && i.heap.get(recv.Ref).kind == hArray:
		if idx.Kind != VInt {
			return Value{}, errors.New("vm: array index must be an int")
		}
		arr := i.heap.get(recv.Ref).arr
		n := int(idx.Int)
		if n < 0 || n >= len(arr) {
			return Value{}, errors.Errorf("vm: index %d out of bounds for array of length %d", n, len(arr))
		}
		return arr[n], nil
	case recv.Kind == VHeap && i.heap.get(recv.Ref).kind == hObject:
		if idx.Kind != VString {
			return Value{}, errors.New("vm: object key must be a string")
		}
		return i.heap.get(recv.Ref).obj.vals[idx.Str], nil
	case recv.Kind == VString:
		if idx.Kind != VInt {
			return Value{}, errors.New("vm: string index must be an int")
		}
		n := int(idx.Int)
		if n < 0 || n >= len(recv.Str) {
			return Value{}, errors.Errorf("vm: index %d out of bounds for string of length %d", n, len(recv.Str))
		}
		return vString(string(recv.Str[n])), nil
	default:
		return Value{}, errors.Errorf("vm: cannot index into a %s", recv.TypeName(i.heap))
	}
}

func (i *Instance) setIndex(recv, idx, val Value) error {
	switch {
	case recv.Kind == VHeap && i.heap.get(recv.Ref).kind == hArray:
		if idx.Kind != VInt {
			return errors.New("vm: array index must be an int")
		}
		arr := i.heap.get(recv.Ref).arr
		n := int(idx.Int)
		if n < 0 || n >= len(arr) {
			return errors.Errorf("vm: index %d out of bounds for array of length %d", n, len(arr))
		}
		arr[n] = val
		return nil
	case recv.Kind == VHeap && i.heap.get(recv.Ref).kind == hObject:
		if idx.Kind != VString {
			return errors.New("vm: object key must be a string")
		}
		i.heap.get(recv.Ref).obj.set(idx.Str, val)
		return nil
	default:
		return errors.Errorf("vm: cannot index-assign into a %s", recv.TypeName(i.heap))
	}
}

func (i *Instance) length(v Value) (int, error) {
	switch {
	case v.Kind == VString:
		return len(v.Str), nil
	case v.Kind == VHeap && i.heap.get(v.Ref).kind == hArray:
		return len(i.heap.get(v.Ref).arr), nil
	case v.Kind == VHeap && i.heap.get(v.Ref).kind == hObject:
		return len(i.heap.get(v.Ref).obj.keys), nil
	default:
		return 0, errors.Errorf("vm: %s has no length", v.TypeName(i.heap))
	}
}
