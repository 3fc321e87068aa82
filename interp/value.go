// Package interp implements Forge's tree-walk execution backend: it walks
// an ast.Program directly against a scoped Environment, the way a
// reference implementation would before a bytecode backend exists.
package interp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/forge-lang/forge/ast"
)

// Kind discriminates the tagged Value union.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
	KindBool
	KindArray
	KindObject
	KindClosure
	KindNative
	KindOk
	KindErr
	KindSome
	KindNone
)

// Array is a mutable, reference-identity sequence; sharing a *Array between
// Values is how a captured closure cell or an aliased binding observes
// mutation.
type Array struct {
	Elems []Value
}

// Object is an insertion-ordered string-keyed mapping. Keys records
// insertion order; deleting a key removes it from Keys as well as Vals so
// iteration never revisits it.
type Object struct {
	Keys []string
	Vals map[string]Value
}

// NewObject returns an empty, ready-to-use Object.
func NewObject() *Object {
	return &Object{Vals: map[string]Value{}}
}

// Set inserts or updates key, preserving first-insertion position.
func (o *Object) Set(key string, v Value) {
	if _, ok := o.Vals[key]; !ok {
		o.Keys = append(o.Keys, key)
	}
	o.Vals[key] = v
}

// Delete removes key, if present.
func (o *Object) Delete(key string) {
	if _, ok := o.Vals[key]; !ok {
		return
	}
	delete(o.Vals, key)
	for i, k := range o.Keys {
		if k == key {
			o.Keys = append(o.Keys[:i], o.Keys[i+1:]...)
			break
		}
	}
}

// Closure is a function value: its parameter list and body come straight
// from the defining ast.FnStmt/LambdaExpr; Env is a snapshot of the
// defining scope chain, shared by reference so mutable captures stay live.
type Closure struct {
	Name    string
	Params  []ast.Param
	Body    []ast.Stmt
	Env     *Environment
	IsAsync bool
}

// Value is Forge's runtime value: exactly one of the fields below is
// meaningful, selected by Kind. Passed by value throughout the
// interpreter; Array/Object/Closure carry their mutable state behind a
// pointer so copying a Value never copies identity.
type Value struct {
	Kind    Kind
	Int     int64
	Float   float64
	Str     string
	Bool    bool
	Arr     *Array
	Obj     *Object
	Closure *Closure
	Native  string
	Inner   *Value // Ok/Err/Some payload; unused (nil) for None/Null
}

func Null() Value                 { return Value{Kind: KindNull} }
func Int(i int64) Value           { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value       { return Value{Kind: KindFloat, Float: f} }
func Str(s string) Value          { return Value{Kind: KindString, Str: s} }
func Bool(b bool) Value           { return Value{Kind: KindBool, Bool: b} }
func NewArray(elems []Value) Value {
	return Value{Kind: KindArray, Arr: &Array{Elems: elems}}
}
func NewObjectValue(o *Object) Value { return Value{Kind: KindObject, Obj: o} }
func NativeRef(name string) Value    { return Value{Kind: KindNative, Native: name} }
func OkValue(inner Value) Value      { return Value{Kind: KindOk, Inner: &inner} }
func ErrValue(inner Value) Value     { return Value{Kind: KindErr, Inner: &inner} }
func SomeValue(inner Value) Value    { return Value{Kind: KindSome, Inner: &inner} }
func NoneValue() Value               { return Value{Kind: KindNone} }
func ClosureValue(c *Closure) Value  { return Value{Kind: KindClosure, Closure: c} }

// Truthy implements the fixed falsy set from §4.4: false, null, 0, 0.0, "",
// and empty sequences/mappings; everything else is truthy.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNull:
		return false
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int != 0
	case KindFloat:
		return v.Float != 0
	case KindString:
		return v.Str != ""
	case KindArray:
		return len(v.Arr.Elems) > 0
	case KindObject:
		return len(v.Obj.Keys) > 0
	default:
		return true
	}
}

// TypeName names a Value's kind for diagnostics.
func (v Value) TypeName() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindClosure:
		return "function"
	case KindNative:
		return "native"
	case KindOk:
		return "Ok"
	case KindErr:
		return "Err"
	case KindSome:
		return "Some"
	case KindNone:
		return "None"
	default:
		return "unknown"
	}
}

// Display renders a Value the way string interpolation and `say` do:
// integers/floats in their natural decimal form, booleans as true/false,
// null as the word null, and sequences/mappings as recursive bracketed,
// comma-joined forms.
func Display(v Value) string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindString:
		return v.Str
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindArray:
		parts := make([]string, len(v.Arr.Elems))
		for i, e := range v.Arr.Elems {
			parts[i] = quoteIfString(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindObject:
		parts := make([]string, 0, len(v.Obj.Keys))
		for _, k := range v.Obj.Keys {
			parts = append(parts, fmt.Sprintf("%s: %s", k, quoteIfString(v.Obj.Vals[k])))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindClosure:
		return "<function>"
	case KindNative:
		return "<native " + v.Native + ">"
	case KindOk:
		return "Ok(" + Display(*v.Inner) + ")"
	case KindErr:
		return "Err(" + Display(*v.Inner) + ")"
	case KindSome:
		return "Some(" + Display(*v.Inner) + ")"
	case KindNone:
		return "None"
	default:
		return "?"
	}
}

func quoteIfString(v Value) string {
	if v.Kind == KindString {
		return strconv.Quote(v.Str)
	}
	return Display(v)
}

// Equal implements `==`/`!=` value equality; Array/Object compare by
// identity only when both are nil (they never are), otherwise structurally.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		// int/float compare numerically across kinds, matching arithmetic's
		// own promotion rule.
		if a.Kind == KindInt && b.Kind == KindFloat {
			return float64(a.Int) == b.Float
		}
		if a.Kind == KindFloat && b.Kind == KindInt {
			return a.Float == float64(b.Int)
		}
		return false
	}
	switch a.Kind {
	case KindNull, KindNone:
		return true
	case KindInt:
		return a.Int == b.Int
	case KindFloat:
		return a.Float == b.Float
	case KindString:
		return a.Str == b.Str
	case KindBool:
		return a.Bool == b.Bool
	case KindArray:
		if len(a.Arr.Elems) != len(b.Arr.Elems) {
			return false
		}
		for i := range a.Arr.Elems {
			if !Equal(a.Arr.Elems[i], b.Arr.Elems[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.Obj.Keys) != len(b.Obj.Keys) {
			return false
		}
		for _, k := range a.Obj.Keys {
			bv, ok := b.Obj.Vals[k]
			if !ok || !Equal(a.Obj.Vals[k], bv) {
				return false
			}
		}
		return true
	case KindOk, KindErr, KindSome:
		return Equal(*a.Inner, *b.Inner)
	case KindNative:
		return a.Native == b.Native
	default:
		return false
	}
}
