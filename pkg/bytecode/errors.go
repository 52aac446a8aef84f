package bytecode

import "errors"

// ErrCompile marks errors produced while building a chunk: malformed
// assembly, or a program that cannot be represented in the encoding.
// Hosts test for it with errors.Is to choose a compile-error exit status.
var ErrCompile = errors.New("compile error")

// ErrTooManyConstants is returned when a chunk would need a constant index
// that does not fit in OpConstant's one-byte operand.
var ErrTooManyConstants = &compileError{msg: "too many constants in one chunk"}

type compileError struct {
	msg string
}

func (e *compileError) Error() string {
	return e.msg
}

func (e *compileError) Unwrap() error {
	return ErrCompile
}
