package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
type Opcode byte

const (
	OpReturn   Opcode = 0 // Pop top of stack and return it as the result
	OpConstant Opcode = 1 // Push constant from pool: OpConstant <index:u8>
	OpNegate   Opcode = 2 // Negate top of stack
	OpAdd      Opcode = 3 // Pop two, push sum
	OpSubtract Opcode = 4 // Pop two, push difference (a - b where b is TOS)
	OpMultiply Opcode = 5 // Pop two, push product
	OpDivide   Opcode = 6 // Pop two, push quotient (IEEE-754, no zero check)
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name       string // Mnemonic used in listings
	StackPop   int    // How many values popped from stack
	StackPush  int    // How many values pushed to stack
	OperandLen int    // Number of operand bytes following the opcode
}

// opcodeInfoTable is indexed by opcode byte.
var opcodeInfoTable = [...]OpcodeInfo{
	OpReturn:   {"OP_RETURN", 1, 0, 0},
	OpConstant: {"OP_CONSTANT", 0, 1, 1},
	OpNegate:   {"OP_NEGATE", 1, 1, 0},
	OpAdd:      {"OP_ADD", 2, 1, 0},
	OpSubtract: {"OP_SUBTRACT", 2, 1, 0},
	OpMultiply: {"OP_MULTIPLY", 2, 1, 0},
	OpDivide:   {"OP_DIVIDE", 2, 1, 0},
}

// GetOpcodeInfo returns metadata for an opcode.
// The second result is false if the opcode is not recognized, in which case
// the returned info has an "UNKNOWN(0xNN)" name and no operands.
func GetOpcodeInfo(op Opcode) (OpcodeInfo, bool) {
	if op.Valid() {
		return opcodeInfoTable[op], true
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}, false
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	return int(op) < len(opcodeInfoTable)
}

// String returns the mnemonic of an opcode.
func (op Opcode) String() string {
	info, _ := GetOpcodeInfo(op)
	return info.Name
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	info, _ := GetOpcodeInfo(op)
	return info.OperandLen
}

// InstructionLen returns the total length of an instruction (1 + operand bytes).
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsBinary reports whether op pops two operands and pushes one result.
func (op Opcode) IsBinary() bool {
	return op >= OpAdd && op <= OpDivide
}

// AllOpcodes returns every defined opcode in byte order.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, len(opcodeInfoTable))
	for i := range opcodeInfoTable {
		ops[i] = Opcode(i)
	}
	return ops
}
