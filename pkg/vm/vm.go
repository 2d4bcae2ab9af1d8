// Package vm implements the bytecode virtual machine for loxvm.
//
// The VM is a stack-based interpreter that executes bytecode instructions.
// It's the final stage in the execution pipeline:
//
//	Source Code -> Lexer -> Parser -> AST -> Compiler -> Bytecode -> VM -> Execution
//
// Virtual Machine Architecture:
//
// The VM is a single process-wide record (no global state) holding:
//
//  1. Stack: a fixed-size array of Values, never reallocated. Open
//     upvalues hold pointers directly into it, so growth-by-reallocation
//     would invalidate every live upvalue.
//  2. Call frames: one per active function invocation, each recording its
//     closure, instruction pointer, and the stack slot its locals start at.
//  3. Globals: a single Table keyed by interned string.
//  4. Open upvalues: an intrusive list, sorted by stack slot descending,
//     shared across every frame.
//
// Execution Model:
//
// run() is a straight-line dispatch loop over one byte of opcode at a
// time. Per-instruction operands are decoded immediately after the opcode,
// in the order the compiler wrote them. The current frame's instruction
// pointer is cached in a local variable for the loop's duration and written
// back to the frame only before CALL, INVOKE and SUPER_INVOKE and before a
// runtime error is raised; after a call or RETURN the cache is reloaded
// from the frame that is now executing — see the comment at the top of
// run().
//
// Call Protocol:
//
// OP_CALL, OP_INVOKE, and OP_SUPER_INVOKE all bottom out in callValue,
// which dispatches on the callee's runtime type: a Closure pushes a new
// frame, a Native invokes the host function directly and never suspends,
// a Class constructs an Instance (and chains into its "init" method if one
// exists), and a BoundMethod rebinds its receiver before recursing into the
// same machinery as a plain Closure call.
//
// Error Handling:
//
// Runtime errors (wrong operand types, an undefined name, stack overflow,
// calling a non-callable) unwind the dispatch loop immediately: the VM
// writes the message and a stack trace to stderr, resets both stacks, and
// returns a *RuntimeError. Compile errors short-circuit before any
// bytecode runs at all.
package vm

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/compiler"
	"github.com/kristofer/loxvm/pkg/object"
	"github.com/kristofer/loxvm/pkg/parser"
	"github.com/kristofer/loxvm/pkg/value"
)

const (
	// FramesMax bounds call depth; exceeding it is "Stack overflow.", not a
	// panic.
	FramesMax = 64
	// StackMax is the fixed capacity of the operand stack, sized the way
	// the reference implementation sizes it: enough slots for every frame
	// up to FramesMax to hold a full complement of locals and temporaries.
	StackMax = FramesMax * 256
)

// CallFrame is one activation record: the closure being executed, its
// instruction pointer (an index into closure.Function.Chunk.Code), and the
// stack index its local slot 0 occupies.
type CallFrame struct {
	closure *object.ObjClosure
	ip      int
	slots   int
}

// VM is the virtual machine. The zero value is not usable; construct one
// with New.
type VM struct {
	heap    *object.Heap
	globals *object.Table

	frames     [FramesMax]CallFrame
	frameCount int

	stack    [StackMax]value.Value
	stackTop int

	openUpvalues *object.ObjUpvalue

	initString *object.ObjString

	out    io.Writer
	errOut io.Writer
	trace  bool

	debugger *Debugger

	startTime time.Time
}

// New returns a VM with its natives bound and stdout/stderr as its output
// streams. The same VM can run multiple Interpret calls; globals and the
// heap persist across them the way a REPL needs them to.
func New() *VM {
	vm := &VM{
		heap:      object.NewHeap(),
		globals:   object.NewTable(),
		out:       os.Stdout,
		errOut:    os.Stderr,
		startTime: time.Now(),
	}
	vm.initString = vm.heap.InternString("init")
	vm.defineNatives()
	return vm
}

// SetOutput redirects PRINT output and error/trace text, for embedding the
// VM in a host that doesn't want it writing directly to the process's
// stdout/stderr (tests, a REPL with its own framing).
func (vm *VM) SetOutput(out, errOut io.Writer) {
	vm.out = out
	vm.errOut = errOut
}

// SetTrace toggles the execution tracer (disassembles and prints the stack
// before every instruction, to errOut). Off by default; the CLI's -trace
// flag is the only intended caller outside tests.
func (vm *VM) SetTrace(on bool) {
	vm.trace = on
}

// Heap exposes the VM's heap, e.g. for a host that wants to pre-intern
// strings or inspect allocation counts.
func (vm *VM) Heap() *object.Heap { return vm.heap }

// Interpret compiles source and runs it to completion. A compile failure
// returns *CompileError without executing any bytecode; a failure during
// execution returns *RuntimeError after the error text has already been
// written to errOut.
func (vm *VM) Interpret(source string) error {
	p := parser.New(source)
	program := p.Parse()
	if errs := p.Errors(); len(errs) > 0 {
		return &CompileError{Errors: errs}
	}
	fn, errs := compiler.Compile(vm.heap, program)
	if len(errs) > 0 {
		return &CompileError{Errors: errs}
	}
	return vm.InterpretFunction(fn)
}

// InterpretFunction runs an already-compiled top-level function to
// completion, skipping the lex/parse/compile front end entirely. This is
// the entry point a .loxc file uses: decode it into an *object.ObjFunction
// against this VM's heap, then hand it here.
func (vm *VM) InterpretFunction(fn *object.ObjFunction) error {
	vm.resetStack()
	closure := vm.heap.NewClosure(fn)
	vm.push(value.FromObj(closure))
	if err := vm.call(closure, 0); err != nil {
		return err
	}
	return vm.run()
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

func (vm *VM) push(v value.Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() value.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.stackTop-1-distance]
}

// run is the dispatch loop. frame, code, and ip are cached locals rebound
// at every point a CALL/INVOKE/SUPER_INVOKE/RETURN might swap which frame
// is executing; frame.ip itself is written back immediately before
// CALL/INVOKE/SUPER_INVOKE (and before any runtime error) so a runtime
// error raised from deeper in the call stack sees an accurate instruction
// pointer for every suspended frame. RETURN discards its frame, so it has
// nothing to write back.
func (vm *VM) run() error {
	frame := &vm.frames[vm.frameCount-1]
	code := frame.closure.Function.Chunk.Code
	ip := frame.ip

	readByte := func() byte {
		b := code[ip]
		ip++
		return b
	}
	readUint16 := func() uint16 {
		hi, lo := code[ip], code[ip+1]
		ip += 2
		return uint16(hi)<<8 | uint16(lo)
	}
	readConstant := func() value.Value {
		return frame.closure.Function.Chunk.Constants[readByte()]
	}
	readString := func() *object.ObjString {
		return readConstant().AsObj().(*object.ObjString)
	}
	rtErr := func(format string, args ...interface{}) error {
		frame.ip = ip
		return vm.runtimeError(format, args...)
	}
	syncFrame := func() {
		frame = &vm.frames[vm.frameCount-1]
		code = frame.closure.Function.Chunk.Code
		ip = frame.ip
	}

	for {
		if vm.trace {
			vm.traceStep(frame, ip)
		}
		if vm.debugger != nil {
			line := frame.closure.Function.Chunk.Lines[ip]
			if vm.debugger.shouldPause(line) {
				if !vm.debugger.interactivePrompt(frame, ip) {
					return fmt.Errorf("debugging session terminated")
				}
			}
		}

		switch op := chunk.OpCode(readByte()); op {
		case chunk.OpConstant:
			vm.push(readConstant())
		case chunk.OpNil:
			vm.push(value.Nil)
		case chunk.OpTrue:
			vm.push(value.True)
		case chunk.OpFalse:
			vm.push(value.False)
		case chunk.OpPop:
			vm.pop()

		case chunk.OpGetLocal:
			vm.push(vm.stack[frame.slots+int(readByte())])
		case chunk.OpSetLocal:
			vm.stack[frame.slots+int(readByte())] = vm.peek(0)

		case chunk.OpGetGlobal:
			name := readString()
			v, ok := vm.globals.Get(name)
			if !ok {
				return rtErr("Undefined variable '%s'.", name.Chars)
			}
			vm.push(v)
		case chunk.OpDefineGlobal:
			name := readString()
			vm.globals.Set(name, vm.peek(0))
			vm.pop()
		case chunk.OpSetGlobal:
			name := readString()
			if !vm.globals.Has(name) {
				return rtErr("Undefined variable '%s'.", name.Chars)
			}
			vm.globals.Set(name, vm.peek(0))

		case chunk.OpGetUpvalue:
			slot := readByte()
			vm.push(*frame.closure.Upvalues[slot].Location)
		case chunk.OpSetUpvalue:
			slot := readByte()
			*frame.closure.Upvalues[slot].Location = vm.peek(0)

		case chunk.OpGetProperty:
			name := readString()
			receiver := vm.peek(0)
			instance, ok := asInstance(receiver)
			if !ok {
				return rtErr("Only instances have properties.")
			}
			if v, ok := instance.Fields.Get(name); ok {
				vm.pop()
				vm.push(v)
				break
			}
			frame.ip = ip
			if err := vm.bindMethod(instance.Class, name); err != nil {
				return err
			}
		case chunk.OpSetProperty:
			name := readString()
			instance, ok := asInstance(vm.peek(1))
			if !ok {
				return rtErr("Only instances have properties.")
			}
			v := vm.peek(0)
			instance.Fields.Set(name, v)
			vm.pop()
			vm.pop()
			vm.push(v)
		case chunk.OpGetSuper:
			name := readString()
			superclass := vm.pop().AsObj().(*object.ObjClass)
			frame.ip = ip
			if err := vm.bindMethod(superclass, name); err != nil {
				return err
			}

		case chunk.OpEqual:
			b, a := vm.pop(), vm.pop()
			vm.push(value.Bool(value.Equal(a, b)))
		case chunk.OpGreater, chunk.OpLess:
			a, b, ok := vm.popTwoNumbers()
			if !ok {
				return rtErr("Operands must be numbers.")
			}
			if op == chunk.OpGreater {
				vm.push(value.Bool(a > b))
			} else {
				vm.push(value.Bool(a < b))
			}
		case chunk.OpAdd:
			if !vm.add() {
				return rtErr("Operands must be two numbers or two strings.")
			}
		case chunk.OpSubtract, chunk.OpMultiply, chunk.OpDivide:
			a, b, ok := vm.popTwoNumbers()
			if !ok {
				return rtErr("Operands must be numbers.")
			}
			switch op {
			case chunk.OpSubtract:
				vm.push(value.Number(a - b))
			case chunk.OpMultiply:
				vm.push(value.Number(a * b))
			case chunk.OpDivide:
				vm.push(value.Number(a / b))
			}
		case chunk.OpNot:
			vm.push(value.Bool(vm.pop().IsFalsey()))
		case chunk.OpNegate:
			if !vm.peek(0).IsNumber() {
				return rtErr("Operand must be a number.")
			}
			vm.push(value.Number(-vm.pop().AsNumber()))

		case chunk.OpPrint:
			fmt.Fprintln(vm.out, value.Print(vm.pop()))

		case chunk.OpJump:
			ip += int(readUint16())
		case chunk.OpJumpIfFalse:
			offset := readUint16()
			if vm.peek(0).IsFalsey() {
				ip += int(offset)
			}
		case chunk.OpLoop:
			ip -= int(readUint16())

		case chunk.OpCall:
			argc := int(readByte())
			frame.ip = ip
			if err := vm.callValue(vm.peek(argc), argc); err != nil {
				return err
			}
			syncFrame()
		case chunk.OpInvoke:
			name := readString()
			argc := int(readByte())
			frame.ip = ip
			if err := vm.invoke(name, argc); err != nil {
				return err
			}
			syncFrame()
		case chunk.OpSuperInvoke:
			name := readString()
			argc := int(readByte())
			superclass := vm.pop().AsObj().(*object.ObjClass)
			frame.ip = ip
			if err := vm.invokeFromClass(superclass, name, argc); err != nil {
				return err
			}
			syncFrame()

		case chunk.OpClosure:
			fn := readConstant().AsObj().(*object.ObjFunction)
			closure := vm.heap.NewClosure(fn)
			vm.push(value.FromObj(closure))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := readByte()
				index := int(readByte())
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.slots + index)
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}
		case chunk.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case chunk.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slots)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return nil
			}
			vm.stackTop = frame.slots
			vm.push(result)
			syncFrame()

		case chunk.OpClass:
			vm.push(value.FromObj(vm.heap.NewClass(readString())))
		case chunk.OpInherit:
			superVal := vm.peek(1)
			subVal := vm.peek(0)
			superclass, ok := asClass(superVal)
			if !ok {
				return rtErr("Superclass must be a class.")
			}
			superclass.Methods.CopyInto(subVal.AsObj().(*object.ObjClass).Methods)
			vm.pop()
		case chunk.OpMethod:
			name := readString()
			methodVal := vm.pop()
			class := vm.peek(0).AsObj().(*object.ObjClass)
			class.Methods.Set(name, methodVal)

		default:
			return rtErr("Unknown opcode %d.", byte(op))
		}
	}
}

func asInstance(v value.Value) (*object.ObjInstance, bool) {
	if !v.IsObj() {
		return nil, false
	}
	i, ok := v.AsObj().(*object.ObjInstance)
	return i, ok
}

func asClass(v value.Value) (*object.ObjClass, bool) {
	if !v.IsObj() {
		return nil, false
	}
	c, ok := v.AsObj().(*object.ObjClass)
	return c, ok
}

func (vm *VM) popTwoNumbers() (float64, float64, bool) {
	b, a := vm.peek(0), vm.peek(1)
	if !a.IsNumber() || !b.IsNumber() {
		return 0, 0, false
	}
	vm.pop()
	vm.pop()
	return a.AsNumber(), b.AsNumber(), true
}

// add implements OP_ADD's dual numeric/string behavior. Reports false,
// leaving the stack untouched, if the operands are neither both numbers
// nor both strings.
func (vm *VM) add() bool {
	b, a := vm.peek(0), vm.peek(1)
	switch {
	case a.IsNumber() && b.IsNumber():
		vm.pop()
		vm.pop()
		vm.push(value.Number(a.AsNumber() + b.AsNumber()))
	case a.IsObjType("string") && b.IsObjType("string"):
		vm.pop()
		vm.pop()
		as := a.AsObj().(*object.ObjString)
		bs := b.AsObj().(*object.ObjString)
		vm.push(value.FromObj(vm.heap.Concat(as, bs)))
	default:
		return false
	}
	return true
}

// bindMethod looks up name in class's method table and, replacing the
// receiver (vm.peek(0)) on the stack, pushes a BoundMethod pairing them.
func (vm *VM) bindMethod(class *object.ObjClass, name *object.ObjString) error {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	bound := vm.heap.NewBoundMethod(vm.peek(0), method.AsObj().(*object.ObjClosure))
	vm.pop()
	vm.push(value.FromObj(bound))
	return nil
}

// captureUpvalue returns the open upvalue for the stack slot at index,
// creating one if none exists yet. The open list is kept sorted by Slot
// descending (spec's "slot address descending" invariant, expressed here
// as a stack index since Go gives no raw pointer comparison) so that two
// closures capturing the same local share one upvalue.
func (vm *VM) captureUpvalue(slot int) *object.ObjUpvalue {
	var prev *object.ObjUpvalue
	cur := vm.openUpvalues
	for cur != nil && cur.Slot > slot {
		prev = cur
		cur = cur.Next
	}
	if cur != nil && cur.Slot == slot {
		return cur
	}
	created := vm.heap.NewUpvalue(&vm.stack[slot])
	created.Slot = slot
	created.Next = cur
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above stack index floor,
// unlinking each from the open list as it goes.
func (vm *VM) closeUpvalues(floor int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Slot >= floor {
		up := vm.openUpvalues
		up.Close()
		vm.openUpvalues = up.Next
	}
}

// callValue dispatches OP_CALL's callee resolution (spec's call protocol):
// a Closure pushes a frame, a Native runs to completion immediately, a
// Class constructs an instance (chaining into "init" if present), and a
// BoundMethod rebinds its receiver before recursing as a Closure call.
func (vm *VM) callValue(callee value.Value, argc int) error {
	if callee.IsObj() {
		switch c := callee.AsObj().(type) {
		case *object.ObjClosure:
			return vm.call(c, argc)
		case *object.ObjNative:
			args := vm.stack[vm.stackTop-argc : vm.stackTop]
			result := c.Fn(args)
			vm.stackTop -= argc + 1
			vm.push(result)
			return nil
		case *object.ObjClass:
			vm.stack[vm.stackTop-argc-1] = value.FromObj(vm.heap.NewInstance(c))
			if init, ok := c.Methods.Get(vm.initString); ok {
				return vm.call(init.AsObj().(*object.ObjClosure), argc)
			}
			if argc != 0 {
				return vm.runtimeError("Expected 0 arguments but got %d.", argc)
			}
			return nil
		case *object.ObjBoundMethod:
			vm.stack[vm.stackTop-argc-1] = c.Receiver
			return vm.call(c.Method, argc)
		}
	}
	return vm.runtimeError("Can only call functions and classes.")
}

// call pushes a new frame for closure, making it the frame run()'s caller
// will resume into.
func (vm *VM) call(closure *object.ObjClosure, argc int) error {
	if argc != closure.Function.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", closure.Function.Arity, argc)
	}
	if vm.frameCount == FramesMax {
		return vm.runtimeError("Stack overflow.")
	}
	frame := &vm.frames[vm.frameCount]
	vm.frameCount++
	frame.closure = closure
	frame.ip = 0
	frame.slots = vm.stackTop - argc - 1
	return nil
}

// invoke fuses OP_GET_PROPERTY+OP_CALL for a method-call site, falling
// back to field access (the field's value may itself be callable) before
// treating name as a method lookup.
func (vm *VM) invoke(name *object.ObjString, argc int) error {
	receiver := vm.peek(argc)
	instance, ok := asInstance(receiver)
	if !ok {
		return vm.runtimeError("Only instances have properties.")
	}
	if field, ok := instance.Fields.Get(name); ok {
		vm.stack[vm.stackTop-argc-1] = field
		return vm.callValue(field, argc)
	}
	return vm.invokeFromClass(instance.Class, name, argc)
}

func (vm *VM) invokeFromClass(class *object.ObjClass, name *object.ObjString, argc int) error {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	return vm.call(method.AsObj().(*object.ObjClosure), argc)
}

// runtimeError formats message, writes it and a stack trace (innermost
// frame first, per spec's error format) to errOut, resets both stacks, and
// returns the *RuntimeError Interpret will propagate.
func (vm *VM) runtimeError(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	frames := make([]StackFrame, 0, vm.frameCount)
	for i := vm.frameCount - 1; i >= 0; i-- {
		f := &vm.frames[i]
		fn := f.closure.Function
		line := 0
		if idx := f.ip - 1; idx >= 0 && idx < len(fn.Chunk.Lines) {
			line = fn.Chunk.Lines[idx]
		}
		name := "script"
		if fn.Name != nil {
			name = fn.Name.Chars
		}
		frames = append(frames, StackFrame{Name: name, Line: line})
	}

	fmt.Fprintln(vm.errOut, msg)
	for _, fr := range frames {
		fmt.Fprintf(vm.errOut, "[line %d] in %s\n", fr.Line, fr.Name)
	}
	vm.resetStack()
	return newRuntimeError(msg, frames)
}

// traceStep prints the current stack contents and the instruction about to
// execute, in the disassembler's own notation, to errOut.
func (vm *VM) traceStep(frame *CallFrame, ip int) {
	fmt.Fprint(vm.errOut, "          ")
	for i := 0; i < vm.stackTop; i++ {
		fmt.Fprintf(vm.errOut, "[ %s ]", value.Print(vm.stack[i]))
	}
	fmt.Fprintln(vm.errOut)
	_, text := chunk.DisassembleInstruction(frame.closure.Function.Chunk, ip)
	fmt.Fprintf(vm.errOut, "%04d %s\n", ip, text)
}
