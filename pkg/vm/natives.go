// Native function bindings.
//
// The teacher's equivalent file wires a large stdlib surface (HTTP, AES,
// gzip, JSON, regex, wall-clock formatting, crypto/rand) into the globals
// table. Lox's call protocol requires natives to "not fail and return
// promptly" (see pkg/vm's call-protocol doc comment): there is no mechanism
// for a native to raise a RuntimeError, so anything that can block, hit the
// network, touch the filesystem, or depend on unpredictable external state
// has no home here. What remains is the pure arithmetic/introspection
// surface plus the one native Lox itself mandates, clock.
package vm

import (
	"math"
	"time"

	"github.com/kristofer/loxvm/pkg/object"
	"github.com/kristofer/loxvm/pkg/value"
)

// defineNatives binds every native function into vm's globals table. str
// and type allocate an ObjString from vm's heap, so they are bound as
// closures; the rest are free functions satisfying object.NativeFn directly.
func (vm *VM) defineNatives() {
	vm.defineNative("clock", vm.nativeClock())
	vm.defineNative("sqrt", nativeSqrt)
	vm.defineNative("pow", nativePow)
	vm.defineNative("abs", nativeAbs)
	vm.defineNative("floor", nativeFloor)
	vm.defineNative("ceil", nativeCeil)
	vm.defineNative("len", nativeLen)
	vm.defineNative("str", vm.nativeStr())
	vm.defineNative("type", vm.nativeType())
}

// defineNative interns name and defines it as a global bound to fn.
func (vm *VM) defineNative(name string, fn object.NativeFn) {
	nameObj := vm.heap.InternString(name)
	native := vm.heap.NewNative(name, fn)
	vm.globals.Set(nameObj, value.FromObj(native))
}

func arg(args []value.Value, i int) value.Value {
	if i < len(args) {
		return args[i]
	}
	return value.Nil
}

func argNumber(args []value.Value, i int) float64 {
	v := arg(args, i)
	if !v.IsNumber() {
		return 0
	}
	return v.AsNumber()
}

// nativeClock returns fractional seconds of real time elapsed since the VM
// was created. It does not measure process CPU time.
func (vm *VM) nativeClock() object.NativeFn {
	return func(args []value.Value) value.Value {
		return value.Number(time.Since(vm.startTime).Seconds())
	}
}

func nativeSqrt(args []value.Value) value.Value {
	return value.Number(math.Sqrt(argNumber(args, 0)))
}

func nativePow(args []value.Value) value.Value {
	return value.Number(math.Pow(argNumber(args, 0), argNumber(args, 1)))
}

func nativeAbs(args []value.Value) value.Value {
	return value.Number(math.Abs(argNumber(args, 0)))
}

func nativeFloor(args []value.Value) value.Value {
	return value.Number(math.Floor(argNumber(args, 0)))
}

func nativeCeil(args []value.Value) value.Value {
	return value.Number(math.Ceil(argNumber(args, 0)))
}

// nativeLen reports the byte length of a string argument; any other
// argument type reports 0 rather than failing.
func nativeLen(args []value.Value) value.Value {
	v := arg(args, 0)
	if !v.IsObj() {
		return value.Number(0)
	}
	s, ok := v.AsObj().(*object.ObjString)
	if !ok {
		return value.Number(0)
	}
	return value.Number(float64(len(s.Chars)))
}

// nativeStr renders any Value the way print would, as a Lox string.
func (vm *VM) nativeStr() object.NativeFn {
	return func(args []value.Value) value.Value {
		return value.FromObj(vm.heap.InternString(value.Print(arg(args, 0))))
	}
}

// nativeType reports the variant name of a Value (e.g. "number", "string",
// "instance"), for introspective tests.
func (vm *VM) nativeType() object.NativeFn {
	return func(args []value.Value) value.Value {
		return value.FromObj(vm.heap.InternString(value.TypeName(arg(args, 0))))
	}
}
