// Package bytecode defines the instruction encoding executed by the loxvm
// virtual machine.
//
// The format is deliberately small:
//   - Values are 64-bit floats, held in a per-chunk constant pool
//   - Instructions are one opcode byte followed by zero or more operand bytes
//   - Every code byte carries the source line that produced it
//
// # Architecture Overview
//
//   - Opcodes: seven instructions (RETURN, CONSTANT, NEGATE and the four
//     arithmetic operators). An OpcodeInfo table records name, stack effect
//     and operand length for each one.
//
//   - Chunk: the unit of bytecode. Parallel code and line tables plus a
//     ConstantPool, all backed by buffer.Buffer so growth follows the
//     0, 8, 16, 32, ... policy. Chunks serialize to the "LXBC" binary format
//     for storage and to CBOR for transport.
//
//   - Disassembler: renders a chunk as a text listing. It never mutates the
//     chunk and degrades one byte at a time on malformed input.
//
// A chunk performs no validation when bytes are appended; any byte sequence
// is representable. Validation happens when the VM executes it.
package bytecode
