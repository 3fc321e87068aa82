package interp

import (
	"sort"

	"github.com/forge-lang/forge/token"
)

// collectionMethod is a built-in array/object/string method resolved
// directly on a MethodCallExpr, ahead of any field lookup.
type collectionMethod func(it *Interpreter, recv Value, args []Value, span token.Position) (Value, error)

var collectionMethods = map[string]collectionMethod{
	"len":     methodLen,
	"push":    methodPush,
	"pop":     methodPop,
	"map":     methodMap,
	"filter":  methodFilter,
	"reduce":  methodReduce,
	"keys":    methodKeys,
	"values":  methodValues,
	"has":     methodHas,
	"join":    methodJoin,
	"sort":    methodSort,
	"reverse": methodReverse,
	"contains": methodContains,
}

func methodLen(_ *Interpreter, recv Value, _ []Value, span token.Position) (Value, error) {
	switch recv.Kind {
	case KindArray:
		return Int(int64(len(recv.Arr.Elems))), nil
	case KindObject:
		return Int(int64(len(recv.Obj.Keys))), nil
	case KindString:
		return Int(int64(len([]rune(recv.Str)))), nil
	default:
		return Value{}, newRuntimeError(TypeMismatch, span, "len is not defined on a %s", recv.TypeName())
	}
}

func methodPush(_ *Interpreter, recv Value, args []Value, span token.Position) (Value, error) {
	if recv.Kind != KindArray {
		return Value{}, newRuntimeError(TypeMismatch, span, "push requires an array, got %s", recv.TypeName())
	}
	recv.Arr.Elems = append(recv.Arr.Elems, args...)
	return recv, nil
}

func methodPop(_ *Interpreter, recv Value, _ []Value, span token.Position) (Value, error) {
	if recv.Kind != KindArray {
		return Value{}, newRuntimeError(TypeMismatch, span, "pop requires an array, got %s", recv.TypeName())
	}
	n := len(recv.Arr.Elems)
	if n == 0 {
		return Value{}, newRuntimeError(IndexOutOfBounds, span, "pop on an empty array")
	}
	last := recv.Arr.Elems[n-1]
	recv.Arr.Elems = recv.Arr.Elems[:n-1]
	return last, nil
}

func methodMap(it *Interpreter, recv Value, args []Value, span token.Position) (Value, error) {
	if recv.Kind != KindArray {
		return Value{}, newRuntimeError(TypeMismatch, span, "map requires an array, got %s", recv.TypeName())
	}
	if len(args) != 1 {
		return Value{}, newRuntimeError(ArityMismatch, span, "map expects exactly one function argument")
	}
	out := make([]Value, len(recv.Arr.Elems))
	for i, e := range recv.Arr.Elems {
		v, err := it.callValue(args[0], []Value{e}, span)
		if err != nil {
			return Value{}, err
		}
		out[i] = v
	}
	return NewArray(out), nil
}

func methodFilter(it *Interpreter, recv Value, args []Value, span token.Position) (Value, error) {
	if recv.Kind != KindArray {
		return Value{}, newRuntimeError(TypeMismatch, span, "filter requires an array, got %s", recv.TypeName())
	}
	if len(args) != 1 {
		return Value{}, newRuntimeError(ArityMismatch, span, "filter expects exactly one function argument")
	}
	var out []Value
	for _, e := range recv.Arr.Elems {
		keep, err := it.callValue(args[0], []Value{e}, span)
		if err != nil {
			return Value{}, err
		}
		if keep.Truthy() {
			out = append(out, e)
		}
	}
	return NewArray(out), nil
}

func methodReduce(it *Interpreter, recv Value, args []Value, span token.Position) (Value, error) {
	if recv.Kind != KindArray {
		return Value{}, newRuntimeError(TypeMismatch, span, "reduce requires an array, got %s", recv.TypeName())
	}
	if len(args) != 2 {
		return Value{}, newRuntimeError(ArityMismatch, span, "reduce expects (fn, initial)")
	}
	acc := args[1]
	for _, e := range recv.Arr.Elems {
		v, err := it.callValue(args[0], []Value{acc, e}, span)
		if err != nil {
			return Value{}, err
		}
		acc = v
	}
	return acc, nil
}

func methodKeys(_ *Interpreter, recv Value, _ []Value, span token.Position) (Value, error) {
	if recv.Kind != KindObject {
		return Value{}, newRuntimeError(TypeMismatch, span, "keys requires an object, got %s", recv.TypeName())
	}
	out := make([]Value, len(recv.Obj.Keys))
	for i, k := range recv.Obj.Keys {
		out[i] = Str(k)
	}
	return NewArray(out), nil
}

func methodValues(_ *Interpreter, recv Value, _ []Value, span token.Position) (Value, error) {
	if recv.Kind != KindObject {
		return Value{}, newRuntimeError(TypeMismatch, span, "values requires an object, got %s", recv.TypeName())
	}
	out := make([]Value, len(recv.Obj.Keys))
	for i, k := range recv.Obj.Keys {
		out[i] = recv.Obj.Vals[k]
	}
	return NewArray(out), nil
}

func methodHas(_ *Interpreter, recv Value, args []Value, span token.Position) (Value, error) {
	if recv.Kind != KindObject {
		return Value{}, newRuntimeError(TypeMismatch, span, "has requires an object, got %s", recv.TypeName())
	}
	if len(args) != 1 || args[0].Kind != KindString {
		return Value{}, newRuntimeError(TypeMismatch, span, "has expects a single string key")
	}
	_, ok := recv.Obj.Vals[args[0].Str]
	return Bool(ok), nil
}

func methodContains(_ *Interpreter, recv Value, args []Value, span token.Position) (Value, error) {
	if recv.Kind != KindArray {
		return Value{}, newRuntimeError(TypeMismatch, span, "contains requires an array, got %s", recv.TypeName())
	}
	if len(args) != 1 {
		return Value{}, newRuntimeError(ArityMismatch, span, "contains expects exactly one argument")
	}
	for _, e := range recv.Arr.Elems {
		if Equal(e, args[0]) {
			return Bool(true), nil
		}
	}
	return Bool(false), nil
}

func methodJoin(_ *Interpreter, recv Value, args []Value, span token.Position) (Value, error) {
	if recv.Kind != KindArray {
		return Value{}, newRuntimeError(TypeMismatch, span, "join requires an array, got %s", recv.TypeName())
	}
	sep := ""
	if len(args) == 1 {
		if args[0].Kind != KindString {
			return Value{}, newRuntimeError(TypeMismatch, span, "join separator must be a string")
		}
		sep = args[0].Str
	}
	var out string
	for i, e := range recv.Arr.Elems {
		if i > 0 {
			out += sep
		}
		out += Display(e)
	}
	return Str(out), nil
}

func methodSort(it *Interpreter, recv Value, args []Value, span token.Position) (Value, error) {
	if recv.Kind != KindArray {
		return Value{}, newRuntimeError(TypeMismatch, span, "sort requires an array, got %s", recv.TypeName())
	}
	out := append([]Value(nil), recv.Arr.Elems...)
	var sortErr error
	less := func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		if len(args) == 1 {
			v, err := it.callValue(args[0], []Value{out[i], out[j]}, span)
			if err != nil {
				sortErr = err
				return false
			}
			return v.Truthy()
		}
		cmp, err := evalBinaryValues(lessThanOp, out[i], out[j], span)
		if err != nil {
			sortErr = err
			return false
		}
		return cmp.Truthy()
	}
	sort.SliceStable(out, less)
	if sortErr != nil {
		return Value{}, sortErr
	}
	return NewArray(out), nil
}

func methodReverse(_ *Interpreter, recv Value, _ []Value, span token.Position) (Value, error) {
	if recv.Kind != KindArray {
		return Value{}, newRuntimeError(TypeMismatch, span, "reverse requires an array, got %s", recv.TypeName())
	}
	out := append([]Value(nil), recv.Arr.Elems...)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return NewArray(out), nil
}

const lessThanOp = token.Lt
