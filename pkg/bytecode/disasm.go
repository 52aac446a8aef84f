package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the chunk under a
// "== name ==" header, one instruction per line.
func (c *Chunk) Disassemble(name string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "== %s ==\n", name)
	for _, line := range c.DisassembleToLines() {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	return sb.String()
}

// DisassembleInstruction renders the instruction at offset and returns the
// offset of the next one. Malformed input never panics: unknown opcodes
// advance by one byte and truncated operands end the listing.
func (c *Chunk) DisassembleInstruction(offset int) (string, int) {
	code := c.Code()
	if offset < 0 || offset >= len(code) {
		return "<end of code>", len(code)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%04d ", offset)
	if offset > 0 && c.LineAt(offset) == c.LineAt(offset-1) {
		sb.WriteString("   | ")
	} else {
		fmt.Fprintf(&sb, "%4d ", c.LineAt(offset))
	}

	op := Opcode(code[offset])
	info, ok := GetOpcodeInfo(op)
	if !ok {
		fmt.Fprintf(&sb, "Unknown opcode %d", byte(op))
		return sb.String(), offset + 1
	}

	switch op {
	case OpConstant:
		return c.constantInstruction(&sb, info.Name, offset)
	default:
		sb.WriteString(info.Name)
		return sb.String(), offset + 1
	}
}

func (c *Chunk) constantInstruction(sb *strings.Builder, name string, offset int) (string, int) {
	code := c.Code()
	if offset+1 >= len(code) {
		fmt.Fprintf(sb, "%-16s <truncated>", name)
		return sb.String(), len(code)
	}

	idx := code[offset+1]
	if v, ok := c.constants.At(int(idx)); ok {
		fmt.Fprintf(sb, "%-16s %4d '%s'", name, idx, v)
	} else {
		fmt.Fprintf(sb, "%-16s %4d <invalid constant>", name, idx)
	}
	return sb.String(), offset + 2
}

// DisassembleToLines returns the listing without a header, one entry per
// instruction.
func (c *Chunk) DisassembleToLines() []string {
	var lines []string
	for offset := 0; offset < c.Len(); {
		line, next := c.DisassembleInstruction(offset)
		lines = append(lines, line)
		offset = next
	}
	return lines
}

// InstructionCount returns the number of instructions in the chunk.
func (c *Chunk) InstructionCount() int {
	count := 0
	for offset := 0; offset < c.Len(); {
		_, offset = c.DisassembleInstruction(offset)
		count++
	}
	return count
}
