package vm

import (
	"fmt"
	"strings"
)

// traceInstruction writes the current stack followed by the disassembly of
// the instruction at offset.
func (vm *VM) traceInstruction(offset int) {
	var sb strings.Builder
	sb.WriteString("          ")
	for _, v := range vm.Stack() {
		fmt.Fprintf(&sb, "[ %s ]", v)
	}
	sb.WriteByte('\n')

	text, _ := vm.chunk.DisassembleInstruction(offset)
	sb.WriteString(text)
	sb.WriteByte('\n')

	fmt.Fprint(vm.trace, sb.String())
}
