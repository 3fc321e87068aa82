package vm

import (
	"github.com/forge-lang/forge/internal/hostio"
)

// registerBuiltinNatives installs the wrapper constructors and the output
// verbs as native closures in the global table, so ordinary OpCall/OpGetGlobal
// instructions reach them with no opcode of their own — exactly how the
// tree-walk interpreter's natives registry is exposed to user code.
func registerBuiltinNatives(i *Instance) {
	wrap := func(tag string) NativeFunc {
		return func(vm *Instance, args []Value) (Value, error) {
			var inner Value = vNull()
			if len(args) > 0 {
				inner = args[0]
			}
			o := newObjData()
			o.set("__type", vString(tag))
			o.set("value", inner)
			return vm.heap.allocObject(o), nil
		}
	}
	i.defineNative("Ok", wrap("Ok"))
	i.defineNative("Err", wrap("Err"))
	i.defineNative("Some", wrap("Some"))
	i.defineNative("None", func(vm *Instance, args []Value) (Value, error) {
		o := newObjData()
		o.set("__type", vString("None"))
		return vm.heap.allocObject(o), nil
	})

	i.defineNative("say", func(vm *Instance, args []Value) (Value, error) {
		hostio.WriteLine(vm.stdoutW, arg0Display(args, vm))
		return vNull(), vm.stdoutW.Err
	})
	i.defineNative("yell", func(vm *Instance, args []Value) (Value, error) {
		hostio.WriteLine(vm.stderrW, "warning: "+arg0Display(args, vm))
		return vNull(), vm.stderrW.Err
	})
	i.defineNative("whisper", func(vm *Instance, args []Value) (Value, error) {
		hostio.WriteLine(vm.stderrW, "trace: "+arg0Display(args, vm))
		return vNull(), vm.stderrW.Err
	})
	i.defineNative("type_of", func(vm *Instance, args []Value) (Value, error) {
		if len(args) == 0 {
			return vString("null"), nil
		}
		return vString(args[0].TypeName(vm.heap)), nil
	})
	i.defineNative("to_string", func(vm *Instance, args []Value) (Value, error) {
		return vString(arg0Display(args, vm)), nil
	})
}

func arg0Display(args []Value, vm *Instance) string {
	if len(args) == 0 {
		return ""
	}
	return display(args[0], vm.heap)
}

// defineNative installs fn as a native closure under name in both the
// natives table (for WithNative overrides) and the globals table (so
// ordinary GetGlobal/Call instructions reach it).
func (i *Instance) defineNative(name string, fn NativeFunc) {
	if override, ok := i.natives[name]; ok {
		fn = override
	} else {
		i.natives[name] = fn
	}
	cd := &closureData{isNative: true, nativeFn: fn, nativeTag: name}
	i.globals[name] = i.heap.allocClosure(cd)
}
