package chunk_test

import (
	"strconv"
	"strings"
	"testing"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/value"
)

func TestWriteAndAddConstantRoundTrip(t *testing.T) {
	c := chunk.New()
	idx := c.AddConstant(value.Number(42))
	c.WriteOp(chunk.OpConstant, 3)
	c.Write(byte(idx), 3)
	c.WriteOp(chunk.OpReturn, 3)

	if len(c.Code) != 3 {
		t.Fatalf("Code has %d bytes, want 3", len(c.Code))
	}
	if len(c.Lines) != len(c.Code) {
		t.Fatalf("Lines has %d entries, want %d (one per code byte)", len(c.Lines), len(c.Code))
	}
	for _, line := range c.Lines {
		if line != 3 {
			t.Errorf("line = %d, want 3", line)
		}
	}
}

func TestUint16RoundTrip(t *testing.T) {
	c := chunk.New()
	c.WriteUint16(0xBEEF, 1)
	if got := c.ReadUint16(0); got != 0xBEEF {
		t.Errorf("ReadUint16 = 0x%04X, want 0xBEEF", got)
	}
}

// TestDisassembleRecoversOperands disassembles one instruction of every
// opcode family and checks the printed operand (constant index, local
// slot, jump target, or argument count) can be parsed back out of the
// rendered text — catching drift between the opcode table the VM switches
// on and the one the disassembler decodes.
func TestDisassembleRecoversOperands(t *testing.T) {
	c := chunk.New()

	// OP_CONSTANT: constant-indexed instruction. A throwaway constant is
	// added first so the index (1) and the printed value (7) differ,
	// otherwise the assertion below could pass by coincidence.
	c.AddConstant(value.Number(999))
	constIdx := c.AddConstant(value.Number(7))
	c.WriteOp(chunk.OpConstant, 1)
	c.Write(byte(constIdx), 1)
	_, text := chunk.DisassembleInstruction(c, 0)
	assertContainsInt(t, text, constIdx)

	// OP_GET_LOCAL: byte (stack slot) instruction.
	c2 := chunk.New()
	c2.WriteOp(chunk.OpGetLocal, 1)
	c2.Write(5, 1)
	_, text = chunk.DisassembleInstruction(c2, 0)
	assertContainsInt(t, text, 5)

	// OP_JUMP: jump instruction; target = offset+3+jump.
	c3 := chunk.New()
	c3.WriteOp(chunk.OpJump, 1)
	c3.WriteUint16(10, 1)
	next, text := chunk.DisassembleInstruction(c3, 0)
	if next != 3 {
		t.Fatalf("OP_JUMP next offset = %d, want 3", next)
	}
	assertContainsInt(t, text, 13) // 0 + 3 + 10

	// OP_INVOKE: constant index + arg count.
	c4 := chunk.New()
	nameIdx := c4.AddConstant(value.FromObj(stubObj{"greet"}))
	c4.WriteOp(chunk.OpInvoke, 1)
	c4.Write(byte(nameIdx), 1)
	c4.Write(2, 1)
	_, text = chunk.DisassembleInstruction(c4, 0)
	assertContainsInt(t, text, 2)
	if !strings.Contains(text, "greet") {
		t.Errorf("OP_INVOKE disassembly %q does not mention the method name", text)
	}
}

func assertContainsInt(t *testing.T, text string, want int) {
	t.Helper()
	for _, field := range strings.Fields(text) {
		field = strings.Trim(field, "'()->,")
		if n, err := strconv.Atoi(field); err == nil && n == want {
			return
		}
	}
	t.Errorf("disassembly %q does not contain operand %d", text, want)
}

// stubObj is a minimal value.Obj for tests that need a printable constant
// without pulling in pkg/object (which already imports pkg/chunk).
type stubObj struct{ name string }

func (s stubObj) ObjType() string { return "stub" }
func (s stubObj) String() string  { return s.name }
