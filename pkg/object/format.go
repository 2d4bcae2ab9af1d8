// Binary .loxc container: lets `lox compile` produce a file `lox run` can
// load directly, skipping the lex/parse/compile front end.
//
// File Format Layout:
//
//	[Header]
//	  Magic (4 bytes): "LOXC"
//	  Version (4 bytes, big-endian uint32): currently 1
//
//	[Function] (recursive; the top-level <script> function)
//	  HasName (1 byte): 0 or 1
//	  Name (if HasName): 4-byte length + UTF-8 bytes
//	  Arity (1 byte)
//	  UpvalueCount (1 byte)
//	  Chunk:
//	    Code:      4-byte count + raw bytes
//	    Lines:     4-byte count + one int32 per entry (parallel to Code)
//	    Constants: 4-byte count, then per constant: type byte + data
//
// Constant Types:
//
//	0x01 = Number (float64, 8 bytes)
//	0x02 = String (4-byte length + UTF-8 bytes, interned on decode)
//	0x03 = Function (nested, recursive per the layout above)
//	0x04 = Bool (1 byte: 0 or 1)
//	0x05 = Nil (0 bytes)
//
// This format carries no cross-host portability guarantee: it is a
// development convenience for round-tripping a compiled program through
// this VM's exact object layout, not a wire protocol for other consumers.
package object

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/value"
)

// Magic is the 4-byte file signature for .loxc files.
var Magic = [4]byte{'L', 'O', 'X', 'C'}

// FormatVersion is the current .loxc format version.
const FormatVersion uint32 = 1

const (
	constTypeNumber   byte = 0x01
	constTypeString   byte = 0x02
	constTypeFunction byte = 0x03
	constTypeBool     byte = 0x04
	constTypeNil      byte = 0x05
)

// EncodeFunction writes fn to w in .loxc format, preceded by the file
// header. fn is typically the top-level <script> function the compiler
// produced; nested functions referenced from its constant pool (one per
// `fun`/method declaration) are encoded recursively by writeConstant.
func EncodeFunction(w io.Writer, fn *ObjFunction) error {
	if _, err := w.Write(Magic[:]); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, FormatVersion); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	return writeFunction(w, fn)
}

func writeFunction(w io.Writer, fn *ObjFunction) error {
	hasName := fn.Name != nil
	if err := writeBool(w, hasName); err != nil {
		return err
	}
	if hasName {
		if err := writeString(w, fn.Name.Chars); err != nil {
			return fmt.Errorf("write name: %w", err)
		}
	}
	if err := writeByte(w, byte(fn.Arity)); err != nil {
		return fmt.Errorf("write arity: %w", err)
	}
	if err := writeByte(w, byte(fn.UpvalueCount)); err != nil {
		return fmt.Errorf("write upvalue count: %w", err)
	}
	return writeChunk(w, fn.Chunk)
}

func writeChunk(w io.Writer, c *chunk.Chunk) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(c.Code))); err != nil {
		return fmt.Errorf("write code count: %w", err)
	}
	if _, err := w.Write(c.Code); err != nil {
		return fmt.Errorf("write code: %w", err)
	}

	if err := binary.Write(w, binary.BigEndian, uint32(len(c.Lines))); err != nil {
		return fmt.Errorf("write lines count: %w", err)
	}
	for _, line := range c.Lines {
		if err := binary.Write(w, binary.BigEndian, int32(line)); err != nil {
			return fmt.Errorf("write line: %w", err)
		}
	}

	if err := binary.Write(w, binary.BigEndian, uint32(len(c.Constants))); err != nil {
		return fmt.Errorf("write constants count: %w", err)
	}
	for i, v := range c.Constants {
		if err := writeConstant(w, v); err != nil {
			return fmt.Errorf("write constant %d: %w", i, err)
		}
	}
	return nil
}

func writeConstant(w io.Writer, v value.Value) error {
	switch {
	case v.IsNumber():
		if err := writeByte(w, constTypeNumber); err != nil {
			return err
		}
		return binary.Write(w, binary.BigEndian, v.AsNumber())

	case v.IsBool():
		if err := writeByte(w, constTypeBool); err != nil {
			return err
		}
		return writeBool(w, v.AsBool())

	case v.IsNil():
		return writeByte(w, constTypeNil)

	case v.IsObj():
		switch o := v.AsObj().(type) {
		case *ObjString:
			if err := writeByte(w, constTypeString); err != nil {
				return err
			}
			return writeString(w, o.Chars)
		case *ObjFunction:
			if err := writeByte(w, constTypeFunction); err != nil {
				return err
			}
			return writeFunction(w, o)
		default:
			return fmt.Errorf("constant of type %q cannot be encoded in .loxc", o.ObjType())
		}

	default:
		return fmt.Errorf("constant of unknown kind cannot be encoded in .loxc")
	}
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func writeBool(w io.Writer, b bool) error {
	if b {
		return writeByte(w, 1)
	}
	return writeByte(w, 0)
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

// DecodeFunction reads a .loxc file written by EncodeFunction, allocating
// every object (strings interned, functions tracked) on heap exactly the
// way the compiler would have. The returned function is ready to wrap in a
// closure and run.
func DecodeFunction(r io.Reader, heap *Heap) (*ObjFunction, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if magic != Magic {
		return nil, fmt.Errorf("not a .loxc file: bad magic %q", magic)
	}

	var version uint32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("unsupported .loxc version: %d (expected %d)", version, FormatVersion)
	}

	return readFunction(r, heap)
}

func readFunction(r io.Reader, heap *Heap) (*ObjFunction, error) {
	hasName, err := readBool(r)
	if err != nil {
		return nil, fmt.Errorf("read has-name: %w", err)
	}
	var name *ObjString
	if hasName {
		s, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("read name: %w", err)
		}
		name = heap.InternString(s)
	}

	arity, err := readByte(r)
	if err != nil {
		return nil, fmt.Errorf("read arity: %w", err)
	}
	upvalueCount, err := readByte(r)
	if err != nil {
		return nil, fmt.Errorf("read upvalue count: %w", err)
	}

	c, err := readChunk(r, heap)
	if err != nil {
		return nil, err
	}

	fn := heap.NewFunction(c)
	fn.Name = name
	fn.Arity = int(arity)
	fn.UpvalueCount = int(upvalueCount)
	return fn, nil
}

func readChunk(r io.Reader, heap *Heap) (*chunk.Chunk, error) {
	var codeCount uint32
	if err := binary.Read(r, binary.BigEndian, &codeCount); err != nil {
		return nil, fmt.Errorf("read code count: %w", err)
	}
	code := make([]byte, codeCount)
	if _, err := io.ReadFull(r, code); err != nil {
		return nil, fmt.Errorf("read code: %w", err)
	}

	var lineCount uint32
	if err := binary.Read(r, binary.BigEndian, &lineCount); err != nil {
		return nil, fmt.Errorf("read line count: %w", err)
	}
	lines := make([]int, lineCount)
	for i := range lines {
		var line int32
		if err := binary.Read(r, binary.BigEndian, &line); err != nil {
			return nil, fmt.Errorf("read line %d: %w", i, err)
		}
		lines[i] = int(line)
	}

	var constCount uint32
	if err := binary.Read(r, binary.BigEndian, &constCount); err != nil {
		return nil, fmt.Errorf("read constant count: %w", err)
	}
	constants := make([]value.Value, constCount)
	for i := range constants {
		v, err := readConstant(r, heap)
		if err != nil {
			return nil, fmt.Errorf("read constant %d: %w", i, err)
		}
		constants[i] = v
	}

	return &chunk.Chunk{Code: code, Lines: lines, Constants: constants}, nil
}

func readConstant(r io.Reader, heap *Heap) (value.Value, error) {
	kind, err := readByte(r)
	if err != nil {
		return value.Nil, err
	}
	switch kind {
	case constTypeNumber:
		var n float64
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return value.Nil, err
		}
		return value.Number(n), nil
	case constTypeString:
		s, err := readString(r)
		if err != nil {
			return value.Nil, err
		}
		return value.FromObj(heap.InternString(s)), nil
	case constTypeFunction:
		fn, err := readFunction(r, heap)
		if err != nil {
			return value.Nil, err
		}
		return value.FromObj(fn), nil
	case constTypeBool:
		b, err := readBool(r)
		if err != nil {
			return value.Nil, err
		}
		return value.Bool(b), nil
	case constTypeNil:
		return value.Nil, nil
	default:
		return value.Nil, fmt.Errorf("unknown constant type 0x%02x", kind)
	}
}

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	_, err := io.ReadFull(r, b[:])
	return b[0], err
}

func readBool(r io.Reader) (bool, error) {
	b, err := readByte(r)
	return b != 0, err
}

func readString(r io.Reader) (string, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
