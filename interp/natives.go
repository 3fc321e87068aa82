package interp

import (
	"fmt"
	"strconv"

	"github.com/forge-lang/forge/token"
)

// NativeFunc is the host-function contract from the external-interfaces
// surface: every native takes the interpreter invoking it, its already
// evaluated arguments, and the call site, and returns a Value or a
// RuntimeError — there is no other way for a native to fail.
type NativeFunc func(it *Interpreter, args []Value, span token.Position) (Value, error)

// registerBuiltins installs the natives every Interpreter ships with,
// ahead of any host-supplied WithNative overrides.
func registerBuiltins(it *Interpreter) {
	add := func(name string, fn NativeFunc) {
		it.natives[name] = fn
		it.env.Define(name, NativeRef(name), false)
	}
	add("is_ok", nativeIsOk)
	add("is_err", nativeIsErr)
	add("is_some", nativeIsSome)
	add("is_none", nativeIsNone)
	add("unwrap", nativeUnwrap)
	add("unwrap_or", nativeUnwrapOr)
	add("range", nativeRange)
	add("enumerate", nativeEnumerate)
	add("type_of", nativeTypeOf)
	add("to_string", nativeToString)
	add("parse_int", nativeParseInt)
	add("parse_float", nativeParseFloat)
	add("ask", nativeAsk)
}

func (it *Interpreter) invokeNative(name string, args []Value, span token.Position) (Value, error) {
	fn, ok := it.natives[name]
	if !ok {
		return Value{}, newRuntimeError(NotCallable, span, "native %q is not registered", name)
	}
	return fn(it, args, span)
}

func arg0(args []Value) Value {
	if len(args) == 0 {
		return Null()
	}
	return args[0]
}

func nativeIsOk(_ *Interpreter, args []Value, _ token.Position) (Value, error) {
	return Bool(arg0(args).Kind == KindOk), nil
}

func nativeIsErr(_ *Interpreter, args []Value, _ token.Position) (Value, error) {
	return Bool(arg0(args).Kind == KindErr), nil
}

func nativeIsSome(_ *Interpreter, args []Value, _ token.Position) (Value, error) {
	return Bool(arg0(args).Kind == KindSome), nil
}

func nativeIsNone(_ *Interpreter, args []Value, _ token.Position) (Value, error) {
	return Bool(arg0(args).Kind == KindNone), nil
}

func nativeUnwrap(_ *Interpreter, args []Value, span token.Position) (Value, error) {
	v := arg0(args)
	switch v.Kind {
	case KindOk, KindSome:
		return *v.Inner, nil
	case KindErr:
		return Value{}, newRuntimeError(MustOnErr, span, "unwrap on Err(%s)", Display(*v.Inner))
	case KindNone:
		return Value{}, newRuntimeError(MustOnErr, span, "unwrap on None")
	default:
		return v, nil
	}
}

func nativeUnwrapOr(_ *Interpreter, args []Value, _ token.Position) (Value, error) {
	v := arg0(args)
	var fallback Value = Null()
	if len(args) > 1 {
		fallback = args[1]
	}
	switch v.Kind {
	case KindOk, KindSome:
		return *v.Inner, nil
	default:
		return fallback, nil
	}
}

func nativeRange(_ *Interpreter, args []Value, span token.Position) (Value, error) {
	var start, end, step int64 = 0, 0, 1
	switch len(args) {
	case 1:
		end = args[0].Int
	case 2:
		start, end = args[0].Int, args[1].Int
	case 3:
		start, end, step = args[0].Int, args[1].Int, args[2].Int
	default:
		return Value{}, newRuntimeError(ArityMismatch, span, "range expects 1-3 arguments, got %d", len(args))
	}
	if step == 0 {
		return Value{}, newRuntimeError(DivisionByZero, span, "range step cannot be zero")
	}
	var out []Value
	if step > 0 {
		for i := start; i < end; i += step {
			out = append(out, Int(i))
		}
	} else {
		for i := start; i > end; i += step {
			out = append(out, Int(i))
		}
	}
	return NewArray(out), nil
}

func nativeEnumerate(_ *Interpreter, args []Value, span token.Position) (Value, error) {
	v := arg0(args)
	if v.Kind != KindArray {
		return Value{}, newRuntimeError(TypeMismatch, span, "enumerate requires an array, got %s", v.TypeName())
	}
	out := make([]Value, len(v.Arr.Elems))
	for i, e := range v.Arr.Elems {
		out[i] = NewArray([]Value{Int(int64(i)), e})
	}
	return NewArray(out), nil
}

func nativeTypeOf(_ *Interpreter, args []Value, _ token.Position) (Value, error) {
	return Str(arg0(args).TypeName()), nil
}

func nativeToString(_ *Interpreter, args []Value, _ token.Position) (Value, error) {
	return Str(Display(arg0(args))), nil
}

func nativeParseInt(_ *Interpreter, args []Value, span token.Position) (Value, error) {
	v := arg0(args)
	if v.Kind != KindString {
		return Value{}, newRuntimeError(TypeMismatch, span, "parse_int requires a string, got %s", v.TypeName())
	}
	n, err := strconv.ParseInt(v.Str, 10, 64)
	if err != nil {
		return ErrValue(Str(fmt.Sprintf("cannot parse %q as an int", v.Str))), nil
	}
	return OkValue(Int(n)), nil
}

func nativeParseFloat(_ *Interpreter, args []Value, span token.Position) (Value, error) {
	v := arg0(args)
	if v.Kind != KindString {
		return Value{}, newRuntimeError(TypeMismatch, span, "parse_float requires a string, got %s", v.TypeName())
	}
	f, err := strconv.ParseFloat(v.Str, 64)
	if err != nil {
		return ErrValue(Str(fmt.Sprintf("cannot parse %q as a float", v.Str))), nil
	}
	return OkValue(Float(f)), nil
}

// nativeAsk is the natural-language query native; without a host
// collaborator wired in via WithNative("ask", ...), it reports back an
// Err so scripts that use `ask` still observe a well-formed Result.
func nativeAsk(_ *Interpreter, args []Value, _ token.Position) (Value, error) {
	return ErrValue(Str("ask: no host collaborator registered for prompt " + strconv.Quote(Display(arg0(args))))), nil
}
