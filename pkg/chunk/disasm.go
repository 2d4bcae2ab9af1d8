package chunk

import (
	"fmt"
	"strings"

	"github.com/kristofer/loxvm/pkg/value"
)

// Disassemble renders every instruction in c as a human-readable listing
// under the given name, in the same style `clox`'s debug.c prints: offset,
// source line (or "|" when it repeats the previous line), mnemonic, operand.
func Disassemble(c *Chunk, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	for offset := 0; offset < len(c.Code); {
		var line string
		next, text := DisassembleInstruction(c, offset)
		if offset > 0 && c.Lines[offset] == c.Lines[offset-1] {
			line = "   |"
		} else {
			line = fmt.Sprintf("%4d", c.Lines[offset])
		}
		fmt.Fprintf(&b, "%04d %s %s\n", offset, line, text)
		offset = next
	}
	return b.String()
}

// DisassembleInstruction decodes the instruction at offset and returns the
// offset of the next instruction plus its rendered text. It never panics on
// a truncated chunk; a short read renders as a decode error instead, since
// disassembly is a debugging aid and must survive a half-written chunk.
func DisassembleInstruction(c *Chunk, offset int) (next int, text string) {
	if offset >= len(c.Code) {
		return offset + 1, "(out of range)"
	}
	op := OpCode(c.Code[offset])
	// An operand read past the end of Code means the chunk is truncated.
	defer func() {
		if r := recover(); r != nil {
			next, text = len(c.Code), fmt.Sprintf("%s (truncated operand)", op)
		}
	}()
	switch op {
	case OpConstant:
		return constantInstruction(op, c, offset)
	case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue, OpCall:
		return byteInstruction(op, c, offset)
	case OpGetGlobal, OpDefineGlobal, OpSetGlobal, OpGetProperty, OpSetProperty,
		OpClass, OpMethod, OpGetSuper:
		return constantInstruction(op, c, offset)
	case OpInvoke, OpSuperInvoke:
		return invokeInstruction(op, c, offset)
	case OpJump, OpJumpIfFalse:
		return jumpInstruction(op, c, offset, 1)
	case OpLoop:
		return jumpInstruction(op, c, offset, -1)
	case OpClosure:
		return closureInstruction(c, offset)
	case OpNil, OpTrue, OpFalse, OpPop, OpEqual, OpGreater, OpLess, OpAdd,
		OpSubtract, OpMultiply, OpDivide, OpNot, OpNegate, OpPrint,
		OpCloseUpvalue, OpReturn, OpInherit:
		return offset + 1, op.String()
	default:
		return offset + 1, fmt.Sprintf("unknown opcode %d", op)
	}
}

func constantInstruction(op OpCode, c *Chunk, offset int) (int, string) {
	idx := int(c.Code[offset+1])
	var v string
	if idx < len(c.Constants) {
		v = value.Print(c.Constants[idx])
	} else {
		v = "?"
	}
	return offset + 2, fmt.Sprintf("%-16s %4d '%s'", op, idx, v)
}

func byteInstruction(op OpCode, c *Chunk, offset int) (int, string) {
	slot := c.Code[offset+1]
	return offset + 2, fmt.Sprintf("%-16s %4d", op, slot)
}

func jumpInstruction(op OpCode, c *Chunk, offset int, sign int) (int, string) {
	jump := int(c.ReadUint16(offset + 1))
	target := offset + 3 + sign*jump
	return offset + 3, fmt.Sprintf("%-16s %4d -> %d", op, offset, target)
}

func invokeInstruction(op OpCode, c *Chunk, offset int) (int, string) {
	idx := int(c.Code[offset+1])
	argCount := int(c.Code[offset+2])
	name := "?"
	if idx < len(c.Constants) {
		name = value.Print(c.Constants[idx])
	}
	return offset + 3, fmt.Sprintf("%-16s (%d args) %4d '%s'", op, argCount, idx, name)
}

func closureInstruction(c *Chunk, offset int) (int, string) {
	idx := int(c.Code[offset+1])
	name := "?"
	upvalueCount := 0
	if idx < len(c.Constants) {
		name = value.Print(c.Constants[idx])
		if fn, ok := c.Constants[idx].AsObj().(interface{ NumUpvalues() int }); ok {
			upvalueCount = fn.NumUpvalues()
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %4d '%s'", OpClosure, idx, name)
	next := offset + 2
	for i := 0; i < upvalueCount; i++ {
		isLocal := c.Code[next]
		index := c.Code[next+1]
		kind := "upvalue"
		if isLocal != 0 {
			kind = "local"
		}
		fmt.Fprintf(&b, "\n%04d    |                     %s %d", next, kind, index)
		next += 2
	}
	return next, b.String()
}
