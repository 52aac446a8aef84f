package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/loxvm/pkg/bytecode"
)

var (
	ErrStackOverflow  = errors.New("stack overflow")
	ErrStackUnderflow = errors.New("stack underflow")
	ErrUnknownOpcode  = errors.New("unknown opcode")
	ErrConstantIndex  = errors.New("constant index out of range")
	ErrCodeOverrun    = errors.New("instruction pointer ran past end of chunk")
	ErrNilChunk       = errors.New("no chunk to execute")
)

// RuntimeError describes a failure detected while executing a chunk.
// Err is one of the sentinel errors above.
type RuntimeError struct {
	Err    error
	Op     bytecode.Opcode // Opcode being executed. For ErrCodeOverrun, the last one executed
	Offset int             // Offset of the failing instruction
	Line   int             // Source line of the failing instruction, 0 if unknown
}

func (e *RuntimeError) Error() string {
	switch {
	case errors.Is(e.Err, ErrUnknownOpcode):
		return fmt.Sprintf("%v %d at offset %04d", e.Err, byte(e.Op), e.Offset)
	case errors.Is(e.Err, ErrCodeOverrun), errors.Is(e.Err, ErrNilChunk):
		return fmt.Sprintf("%v at offset %04d", e.Err, e.Offset)
	}
	return fmt.Sprintf("%v in %s at offset %04d", e.Err, e.Op, e.Offset)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// InterpretResult is the completion status reported to hosts.
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

func (r InterpretResult) String() string {
	switch r {
	case InterpretOK:
		return "OK"
	case InterpretCompileError:
		return "COMPILE_ERROR"
	case InterpretRuntimeError:
		return "RUNTIME_ERROR"
	default:
		return fmt.Sprintf("InterpretResult(%d)", int(r))
	}
}

// ResultOf maps an error from assembling or executing a chunk to its
// InterpretResult. A nil error is InterpretOK; errors matching
// bytecode.ErrCompile are compile errors; anything else is a runtime error.
func ResultOf(err error) InterpretResult {
	switch {
	case err == nil:
		return InterpretOK
	case errors.Is(err, bytecode.ErrCompile):
		return InterpretCompileError
	default:
		return InterpretRuntimeError
	}
}
