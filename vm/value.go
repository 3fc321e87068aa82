package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueKind discriminates a register Value. Scalars (int/float/bool/
// string/null) are copied inline; everything else is a reference into the
// Heap, carried by slot index.
type ValueKind uint8

const (
	VNull ValueKind = iota
	VInt
	VFloat
	VBool
	VString
	VHeap
)

// Value is one VM register's content.
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Bool  bool
	Str   string
	Ref   int // index into Heap.objects; valid when Kind == VHeap
}

func vNull() Value           { return Value{Kind: VNull} }
func vInt(i int64) Value     { return Value{Kind: VInt, Int: i} }
func vFloat(f float64) Value { return Value{Kind: VFloat, Float: f} }
func vBool(b bool) Value     { return Value{Kind: VBool, Bool: b} }
func vString(s string) Value { return Value{Kind: VString, Str: s} }
func vHeap(ref int) Value    { return Value{Kind: VHeap, Ref: ref} }

// Truthy mirrors the fixed falsy set from the language's truthiness rules:
// false, null, 0, 0.0, "" and empty arrays/objects; everything else is
// truthy.
func (v Value) Truthy(h *Heap) bool {
	switch v.Kind {
	case VNull:
		return false
	case VBool:
		return v.Bool
	case VInt:
		return v.Int != 0
	case VFloat:
		return v.Float != 0
	case VString:
		return v.Str != ""
	case VHeap:
		switch o := h.get(v.Ref); o.kind {
		case hArray:
			return len(o.arr) > 0
		case hObject:
			return len(o.obj.keys) > 0
		default:
			return true
		}
	default:
		return true
	}
}

func (v Value) TypeName(h *Heap) string {
	switch v.Kind {
	case VNull:
		return "null"
	case VInt:
		return "int"
	case VFloat:
		return "float"
	case VBool:
		return "bool"
	case VString:
		return "string"
	case VHeap:
		switch h.get(v.Ref).kind {
		case hArray:
			return "array"
		case hObject:
			return "object"
		case hClosure:
			return "function"
		}
	}
	return "unknown"
}

// heapKind discriminates a Heap slot's payload.
type heapKind uint8

const (
	hArray heapKind = iota
	hObject
	hClosure
)

// objData is an insertion-ordered string-keyed mapping, the heap's
// representation of both plain objects and the Ok/Err/Some/None wrapper
// tags (stored as ordinary objects with a "__type" field).
type objData struct {
	keys []string
	vals map[string]Value
}

func newObjData() *objData { return &objData{vals: map[string]Value{}} }

func (o *objData) set(key string, v Value) {
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

// closureData is a callable value: its prototype chunk plus the current
// values of every variable its defining scope captured. upvalues is seeded
// from the enclosing frame's registers at Closure-instruction time and
// written back after every call (see call in run.go), so mutations a call
// makes to a captured variable are visible to the closure's next call —
// but only within that one closure instance; a one-level-deep capture
// scheme, see DESIGN.md for the open question this leaves on deeper nesting.
type closureData struct {
	proto     *Chunk
	upvalues  []Value
	isNative  bool
	nativeFn  NativeFunc
	nativeTag string
}

// heapObject is one Heap slot.
type heapObject struct {
	kind    heapKind
	marked  bool
	free    bool
	arr     []Value
	obj     *objData
	closure *closureData
}

// NativeFunc is the VM's native-function contract, mirroring the
// interpreter's own invoke(name, args) -> Result contract (spec §6).
type NativeFunc func(vm *Instance, args []Value) (Value, error)

func wrapperTag(v Value, h *Heap) (string, bool) {
	if v.Kind != VHeap {
		return "", false
	}
	o := h.get(v.Ref)
	if o.kind != hObject {
		return "", false
	}
	tag, ok := o.obj.vals["__type"]
	if !ok || tag.Kind != VString {
		return "", false
	}
	return tag.Str, true
}

// display renders v the way `say`, string interpolation and Concat do.
func display(v Value, h *Heap) string {
	switch v.Kind {
	case VNull:
		return "null"
	case VInt:
		return strconv.FormatInt(v.Int, 10)
	case VFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case VBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case VString:
		return v.Str
	case VHeap:
		o := h.get(v.Ref)
		switch o.kind {
		case hArray:
			parts := make([]string, len(o.arr))
			for i, e := range o.arr {
				parts[i] = quoteIfString(e, h)
			}
			return "[" + strings.Join(parts, ", ") + "]"
		case hObject:
			if tag, ok := o.obj.vals["__type"]; ok && tag.Kind == VString {
				if inner, ok := o.obj.vals["value"]; ok {
					return fmt.Sprintf("%s(%s)", tag.Str, display(inner, h))
				}
				return tag.Str
			}
			parts := make([]string, 0, len(o.obj.keys))
			for _, k := range o.obj.keys {
				parts = append(parts, fmt.Sprintf("%s: %s", k, quoteIfString(o.obj.vals[k], h)))
			}
			return "{" + strings.Join(parts, ", ") + "}"
		case hClosure:
			return "<function>"
		}
	}
	return "?"
}

func quoteIfString(v Value, h *Heap) string {
	if v.Kind == VString {
		return strconv.Quote(v.Str)
	}
	return display(v, h)
}

// valuesEqual implements `==`/`!=`; arrays/objects compare structurally.
func valuesEqual(a, b Value, h *Heap) bool {
	if a.Kind != b.Kind {
		if a.Kind == VInt && b.Kind == VFloat {
			return float64(a.Int) == b.Float
		}
		if a.Kind == VFloat && b.Kind == VInt {
			return a.Float == float64(b.Int)
		}
		return false
	}
	switch a.Kind {
	case VNull:
		return true
	case VInt:
		return a.Int == b.Int
	case VFloat:
		return a.Float == b.Float
	case VBool:
		return a.Bool == b.Bool
	case VString:
		return a.Str == b.Str
	case VHeap:
		oa, ob := h.get(a.Ref), h.get(b.Ref)
		if oa.kind != ob.kind {
			return false
		}
		switch oa.kind {
		case hArray:
			if len(oa.arr) != len(ob.arr) {
				return false
			}
			for i := range oa.arr {
				if !valuesEqual(oa.arr[i], ob.arr[i], h) {
					return false
				}
			}
			return true
		case hObject:
			if len(oa.obj.keys) != len(ob.obj.keys) {
				return false
			}
			for _, k := range oa.obj.keys {
				bv, ok := ob.obj.vals[k]
				if !ok || !valuesEqual(oa.obj.vals[k], bv, h) {
					return false
				}
			}
			return true
		default:
			return a.Ref == b.Ref
		}
	}
	return false
}
