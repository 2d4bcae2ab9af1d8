package compiler_test

import (
	"testing"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/compiler"
	"github.com/kristofer/loxvm/pkg/object"
	"github.com/kristofer/loxvm/pkg/parser"
)

func compile(t *testing.T, src string) (*object.ObjFunction, *object.Heap) {
	t.Helper()
	p := parser.New(src)
	prog := p.Parse()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parse(%q) errors: %v", src, errs)
	}
	heap := object.NewHeap()
	fn, errs := compiler.Compile(heap, prog)
	if len(errs) > 0 {
		t.Fatalf("compile(%q) errors: %v", src, errs)
	}
	return fn, heap
}

// opsOf decodes c's opcode sequence via the real disassembler, so operand
// widths (including OP_CLOSURE's variable-length upvalue descriptors) are
// never duplicated or allowed to drift from pkg/chunk's own decoding.
func opsOf(c *chunk.Chunk) []chunk.OpCode {
	var ops []chunk.OpCode
	for offset := 0; offset < len(c.Code); {
		ops = append(ops, chunk.OpCode(c.Code[offset]))
		next, _ := chunk.DisassembleInstruction(c, offset)
		offset = next
	}
	return ops
}

func TestCompileLiteralEndsWithImplicitReturn(t *testing.T) {
	fn, _ := compile(t, "1;")
	ops := opsOf(fn.Chunk)
	want := []chunk.OpCode{chunk.OpConstant, chunk.OpPop, chunk.OpNil, chunk.OpReturn}
	if len(ops) != len(want) {
		t.Fatalf("ops = %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("ops[%d] = %s, want %s", i, ops[i], want[i])
		}
	}
}

func TestGlobalVarRoundTrip(t *testing.T) {
	fn, _ := compile(t, "var x = 1; print x;")
	ops := opsOf(fn.Chunk)
	want := []chunk.OpCode{
		chunk.OpConstant, chunk.OpDefineGlobal,
		chunk.OpGetGlobal, chunk.OpPrint,
		chunk.OpNil, chunk.OpReturn,
	}
	if len(ops) != len(want) {
		t.Fatalf("ops = %v, want %v", ops, want)
	}
}

func TestLocalDoesNotTouchGlobalOpcodes(t *testing.T) {
	fn, _ := compile(t, "{ var x = 1; print x; }")
	for _, op := range opsOf(fn.Chunk) {
		if op == chunk.OpDefineGlobal || op == chunk.OpGetGlobal {
			t.Fatalf("local variable compiled to a global opcode: %s", op)
		}
	}
}

func TestIfElseEmitsJumps(t *testing.T) {
	fn, _ := compile(t, "if (true) { print 1; } else { print 2; }")
	var sawJumpIfFalse, sawJump bool
	for _, op := range opsOf(fn.Chunk) {
		if op == chunk.OpJumpIfFalse {
			sawJumpIfFalse = true
		}
		if op == chunk.OpJump {
			sawJump = true
		}
	}
	if !sawJumpIfFalse || !sawJump {
		t.Fatalf("if/else did not emit both jump kinds: ops=%v", opsOf(fn.Chunk))
	}
}

func TestWhileLoopEmitsLoop(t *testing.T) {
	fn, _ := compile(t, "while (true) { print 1; }")
	var sawLoop bool
	for _, op := range opsOf(fn.Chunk) {
		if op == chunk.OpLoop {
			sawLoop = true
		}
	}
	if !sawLoop {
		t.Fatal("while loop did not emit OP_LOOP")
	}
}

func TestFunctionCallCompilesToClosureAndCall(t *testing.T) {
	fn, _ := compile(t, "fun greet() { print 1; } greet();")
	var sawClosure, sawCall bool
	for _, op := range opsOf(fn.Chunk) {
		if op == chunk.OpClosure {
			sawClosure = true
		}
		if op == chunk.OpCall {
			sawCall = true
		}
	}
	if !sawClosure || !sawCall {
		t.Fatalf("expected OP_CLOSURE and OP_CALL, got %v", opsOf(fn.Chunk))
	}
}

func TestMethodCallFusesIntoInvoke(t *testing.T) {
	fn, _ := compile(t, "class C { greet() { print 1; } } var c = C(); c.greet();")
	var sawInvoke, sawGetProperty bool
	for _, op := range opsOf(fn.Chunk) {
		if op == chunk.OpInvoke {
			sawInvoke = true
		}
		if op == chunk.OpGetProperty {
			sawGetProperty = true
		}
	}
	if !sawInvoke {
		t.Fatal("method call site did not compile to OP_INVOKE")
	}
	if sawGetProperty {
		t.Fatal("method call site should not also emit a separate OP_GET_PROPERTY")
	}
}

func TestClassWithSuperclassEmitsInherit(t *testing.T) {
	fn, _ := compile(t, "class A {} class B < A {}")
	var sawInherit bool
	for _, op := range opsOf(fn.Chunk) {
		if op == chunk.OpInherit {
			sawInherit = true
		}
	}
	if !sawInherit {
		t.Fatal("subclass declaration did not emit OP_INHERIT")
	}
}

func TestInitializerWithBareReturnIsNotAnError(t *testing.T) {
	p := parser.New("class C { init() { return; } }")
	prog := p.Parse()
	heap := object.NewHeap()
	_, errs := compiler.Compile(heap, prog)
	if len(errs) > 0 {
		t.Fatalf("compile errors: %v", errs)
	}
}

func TestInitializerWithValueReturnIsAnError(t *testing.T) {
	p := parser.New("class C { init() { return 1; } }")
	prog := p.Parse()
	heap := object.NewHeap()
	_, errs := compiler.Compile(heap, prog)
	if len(errs) == 0 {
		t.Fatal("expected an error for returning a value from an initializer")
	}
}

func TestReturnOutsideFunctionIsAnError(t *testing.T) {
	p := parser.New("return 1;")
	prog := p.Parse()
	heap := object.NewHeap()
	_, errs := compiler.Compile(heap, prog)
	if len(errs) == 0 {
		t.Fatal("expected an error for a top-level return")
	}
}

func TestTooManyArgumentsIsAnError(t *testing.T) {
	args := ""
	for i := 0; i < 256; i++ {
		if i > 0 {
			args += ","
		}
		args += "1"
	}
	p := parser.New("fun f() {} f(" + args + ");")
	prog := p.Parse()
	// The parser reports the overflow too, but still keeps every argument
	// in the AST, so the compiler's own check is exercised as well.
	if len(p.Errors()) == 0 {
		t.Fatal("expected a parse error for more than 255 arguments")
	}
	heap := object.NewHeap()
	_, errs := compiler.Compile(heap, prog)
	if len(errs) == 0 {
		t.Fatal("expected an error for more than 255 arguments")
	}
}
