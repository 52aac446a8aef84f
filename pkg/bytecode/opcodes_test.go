package bytecode

import (
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	for _, op := range AllOpcodes() {
		info, ok := GetOpcodeInfo(op)
		if !ok || info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode 0x%02X has no metadata", byte(op))
		}
	}
}

func TestOpcodeByteValues(t *testing.T) {
	tests := []struct {
		op   Opcode
		want byte
	}{
		{OpReturn, 0},
		{OpConstant, 1},
		{OpNegate, 2},
		{OpAdd, 3},
		{OpSubtract, 4},
		{OpMultiply, 5},
		{OpDivide, 6},
	}

	for _, tt := range tests {
		if byte(tt.op) != tt.want {
			t.Errorf("%s = %d, want %d", tt.op, byte(tt.op), tt.want)
		}
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpReturn, "OP_RETURN"},
		{OpConstant, "OP_CONSTANT"},
		{OpNegate, "OP_NEGATE"},
		{OpAdd, "OP_ADD"},
		{OpSubtract, "OP_SUBTRACT"},
		{OpMultiply, "OP_MULTIPLY"},
		{OpDivide, "OP_DIVIDE"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", byte(tt.op), got, tt.want)
		}
	}
}

func TestUnknownOpcode(t *testing.T) {
	op := Opcode(0xEE)
	if op.Valid() {
		t.Error("Opcode(0xEE).Valid() = true")
	}
	if got := op.String(); got != "UNKNOWN(0xEE)" {
		t.Errorf("String() = %q, want UNKNOWN(0xEE)", got)
	}
	if op.InstructionLen() != 1 {
		t.Errorf("InstructionLen() = %d, want 1", op.InstructionLen())
	}
}

func TestOpcodeInstructionLen(t *testing.T) {
	for _, op := range AllOpcodes() {
		want := 1
		if op == OpConstant {
			want = 2
		}
		if got := op.InstructionLen(); got != want {
			t.Errorf("%s.InstructionLen() = %d, want %d", op, got, want)
		}
	}
}

func TestOpcodeStackEffects(t *testing.T) {
	tests := []struct {
		op        Opcode
		pop, push int
	}{
		{OpReturn, 1, 0},
		{OpConstant, 0, 1},
		{OpNegate, 1, 1},
		{OpAdd, 2, 1},
		{OpSubtract, 2, 1},
		{OpMultiply, 2, 1},
		{OpDivide, 2, 1},
	}

	for _, tt := range tests {
		info, _ := GetOpcodeInfo(tt.op)
		if info.StackPop != tt.pop || info.StackPush != tt.push {
			t.Errorf("%s stack effect = -%d +%d, want -%d +%d", tt.op, info.StackPop, info.StackPush, tt.pop, tt.push)
		}
	}
}

func TestIsBinary(t *testing.T) {
	binary := map[Opcode]bool{OpAdd: true, OpSubtract: true, OpMultiply: true, OpDivide: true}
	for _, op := range AllOpcodes() {
		if op.IsBinary() != binary[op] {
			t.Errorf("%s.IsBinary() = %v", op, op.IsBinary())
		}
	}
}
