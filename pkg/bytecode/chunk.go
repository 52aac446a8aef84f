package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chazu/loxvm/pkg/buffer"
)

// BytecodeVersion is the current bytecode format version.
// Increment when making incompatible changes to the format.
const BytecodeVersion uint16 = 1

// BytecodeMagic prefixes serialized chunks: "LXBC" (Lox ByteCode).
var BytecodeMagic = []byte{'L', 'X', 'B', 'C'}

// Chunk is a unit of bytecode: the instruction stream, the source line of
// every byte, and the constant pool the instructions index into.
//
// A chunk is built append-only and then treated as read-only input to the
// VM and the disassembler. The zero value is an empty chunk.
type Chunk struct {
	code      buffer.Buffer[byte]
	lines     buffer.Buffer[int]
	constants ConstantPool
}

// NewChunk creates a new empty chunk.
func NewChunk() *Chunk {
	return &Chunk{}
}

// Write appends one instruction or operand byte produced by source line.
func (c *Chunk) Write(b byte, line int) {
	c.code.Append(b)
	c.lines.Append(line)
}

// WriteOp appends an opcode byte.
func (c *Chunk) WriteOp(op Opcode, line int) {
	c.Write(byte(op), line)
}

// AddConstant adds v to the constant pool and returns its index.
// The index is only meaningful for this chunk. AddConstant does not check
// the operand width; use EmitConstant when emitting OpConstant.
func (c *Chunk) AddConstant(v Value) int {
	return c.constants.Add(v)
}

// EmitConstant adds v to the pool and writes OpConstant <index>.
// Returns ErrTooManyConstants if the index does not fit in one byte, in
// which case nothing is written.
func (c *Chunk) EmitConstant(v Value, line int) (int, error) {
	if c.constants.Len() >= MaxConstants {
		return 0, ErrTooManyConstants
	}
	idx := c.AddConstant(v)
	c.WriteOp(OpConstant, line)
	c.Write(byte(idx), line)
	return idx, nil
}

// Free releases the code, line and constant tables and resets the chunk to
// empty. Calling Free twice is harmless.
func (c *Chunk) Free() {
	c.code.Free()
	c.lines.Free()
	c.constants.Free()
}

// Code returns the instruction bytes. The result is read-only.
func (c *Chunk) Code() []byte {
	return c.code.Slice()
}

// Lines returns the source line of each code byte. The result is read-only.
func (c *Chunk) Lines() []int {
	return c.lines.Slice()
}

// Constants returns the chunk's constant pool.
func (c *Chunk) Constants() *ConstantPool {
	return &c.constants
}

// Len returns the length of the code section in bytes.
func (c *Chunk) Len() int {
	return c.code.Len()
}

// Cap returns the allocated capacity of the code section.
func (c *Chunk) Cap() int {
	return c.code.Cap()
}

// LineAt returns the source line for the byte at offset, or 0 if offset is
// out of range.
func (c *Chunk) LineAt(offset int) int {
	if offset < 0 || offset >= c.lines.Len() {
		return 0
	}
	return c.lines.At(offset)
}

// Serialize encodes the chunk to bytes for storage.
// Format:
//
//	[magic:4] [version:2]
//	[code_len:4] [code:...]
//	[lines:4*code_len]
//	[const_count:2] [constants:8*const_count]
//
// Lines are stored as int32 and constants as IEEE-754 bits, big-endian.
func (c *Chunk) Serialize() ([]byte, error) {
	code := c.Code()
	lines := c.Lines()
	consts := c.constants.Values()

	if len(consts) > math.MaxUint16 {
		return nil, fmt.Errorf("cannot serialize %d constants: limit is %d", len(consts), math.MaxUint16)
	}

	buf := make([]byte, 0, 12+len(code)*5+len(consts)*8)

	buf = append(buf, BytecodeMagic...)
	buf = binary.BigEndian.AppendUint16(buf, BytecodeVersion)

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(code)))
	buf = append(buf, code...)
	for _, line := range lines {
		if line < math.MinInt32 || line > math.MaxInt32 {
			return nil, fmt.Errorf("line %d does not fit in 32 bits", line)
		}
		buf = binary.BigEndian.AppendUint32(buf, uint32(int32(line)))
	}

	buf = binary.BigEndian.AppendUint16(buf, uint16(len(consts)))
	for _, v := range consts {
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(float64(v)))
	}

	return buf, nil
}

// Deserialize decodes a chunk from bytes produced by Serialize.
func Deserialize(data []byte) (*Chunk, error) {
	if len(data) < 6 {
		return nil, fmt.Errorf("bytecode too short: need at least 6 bytes, got %d", len(data))
	}

	if string(data[0:4]) != string(BytecodeMagic) {
		return nil, fmt.Errorf("invalid bytecode magic: expected %q, got %q", BytecodeMagic, data[0:4])
	}

	version := binary.BigEndian.Uint16(data[4:6])
	if version > BytecodeVersion {
		return nil, fmt.Errorf("bytecode version %d is newer than supported version %d", version, BytecodeVersion)
	}
	pos := 6

	// Code section
	if pos+4 > len(data) {
		return nil, fmt.Errorf("unexpected end of bytecode reading code length at pos %d", pos)
	}
	codeLen := int(binary.BigEndian.Uint32(data[pos:]))
	pos += 4

	if codeLen < 0 || codeLen > len(data)-pos || codeLen*4 > len(data)-pos-codeLen {
		return nil, fmt.Errorf("unexpected end of bytecode reading code section: need %d bytes at pos %d", codeLen*5, pos)
	}
	code := data[pos : pos+codeLen]
	pos += codeLen

	c := NewChunk()
	for i := 0; i < codeLen; i++ {
		line := int(int32(binary.BigEndian.Uint32(data[pos:])))
		pos += 4
		c.Write(code[i], line)
	}

	// Constants
	if pos+2 > len(data) {
		return nil, fmt.Errorf("unexpected end of bytecode reading constant count")
	}
	constCount := int(binary.BigEndian.Uint16(data[pos:]))
	pos += 2

	for i := 0; i < constCount; i++ {
		if pos+8 > len(data) {
			return nil, fmt.Errorf("unexpected end of bytecode reading constant %d", i)
		}
		c.AddConstant(Value(math.Float64frombits(binary.BigEndian.Uint64(data[pos:]))))
		pos += 8
	}

	if pos != len(data) {
		return nil, fmt.Errorf("%d trailing bytes after constant pool", len(data)-pos)
	}

	return c, nil
}
