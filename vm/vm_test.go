package vm

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/chazu/loxvm/pkg/bytecode"
)

// chunkOf builds a chunk from alternating constants and opcodes.
// A float64 argument emits OP_CONSTANT; a bytecode.Opcode is written as is.
func chunkOf(t *testing.T, items ...any) *bytecode.Chunk {
	t.Helper()
	c := bytecode.NewChunk()
	for _, item := range items {
		switch v := item.(type) {
		case float64:
			if _, err := c.EmitConstant(bytecode.Value(v), 1); err != nil {
				t.Fatalf("EmitConstant(%v): %v", v, err)
			}
		case bytecode.Opcode:
			c.WriteOp(v, 1)
		case byte:
			c.Write(v, 1)
		default:
			t.Fatalf("chunkOf: unsupported item %T", item)
		}
	}
	return c
}

func newTestVM(opts ...Option) (*VM, *bytes.Buffer) {
	var errOut bytes.Buffer
	opts = append([]Option{WithErrorOutput(&errOut)}, opts...)
	return New(opts...), &errOut
}

func TestExecuteArithmetic(t *testing.T) {
	tests := []struct {
		name  string
		items []any
		want  bytecode.Value
	}{
		{"constant", []any{21.0, bytecode.OpReturn}, 21},
		{"negate", []any{5.0, bytecode.OpNegate, bytecode.OpReturn}, -5},
		{"add", []any{1.0, 2.0, bytecode.OpAdd, bytecode.OpReturn}, 3},
		{"subtract order", []any{10.0, 4.0, bytecode.OpSubtract, bytecode.OpReturn}, 6},
		{"divide order", []any{8.0, 2.0, bytecode.OpDivide, bytecode.OpReturn}, 4},
		{"multiply", []any{6.0, 7.0, bytecode.OpMultiply, bytecode.OpReturn}, 42},
		{
			"(1 + 2) * 3",
			[]any{1.0, 2.0, bytecode.OpAdd, 3.0, bytecode.OpMultiply, bytecode.OpReturn},
			9,
		},
		{
			"-((1.2 + 3.4) / 5.6)",
			[]any{1.2, 3.4, bytecode.OpAdd, 5.6, bytecode.OpDivide, bytecode.OpNegate, bytecode.OpReturn},
			-((1.2 + 3.4) / 5.6),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm, _ := newTestVM()
			got, err := vm.Execute(chunkOf(t, tt.items...))
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if got != tt.want {
				t.Errorf("result = %v, want %v", got, tt.want)
			}
			if len(vm.Stack()) != 0 {
				t.Errorf("stack after return = %v, want empty", vm.Stack())
			}
		})
	}
}

func TestDivideByZeroFollowsIEEE(t *testing.T) {
	vm, _ := newTestVM()

	got, err := vm.Execute(chunkOf(t, 1.0, 0.0, bytecode.OpDivide, bytecode.OpReturn))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !math.IsInf(float64(got), 1) {
		t.Errorf("1/0 = %v, want +Inf", got)
	}

	got, err = vm.Execute(chunkOf(t, 0.0, 0.0, bytecode.OpDivide, bytecode.OpReturn))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !math.IsNaN(float64(got)) {
		t.Errorf("0/0 = %v, want NaN", got)
	}
}

func TestInterpretOK(t *testing.T) {
	vm, errOut := newTestVM()

	result, value := vm.Interpret(chunkOf(t, 1.0, 2.0, bytecode.OpAdd, bytecode.OpReturn))
	if result != InterpretOK {
		t.Errorf("result = %v, want %v", result, InterpretOK)
	}
	if value != 3 {
		t.Errorf("value = %v, want 3", value)
	}
	if errOut.Len() != 0 {
		t.Errorf("unexpected error output %q", errOut.String())
	}
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		name   string
		build  func(t *testing.T) *bytecode.Chunk
		want   error
		offset int
	}{
		{
			name: "unknown opcode",
			build: func(t *testing.T) *bytecode.Chunk {
				return chunkOf(t, byte(0xFF), bytecode.OpReturn)
			},
			want:   ErrUnknownOpcode,
			offset: 0,
		},
		{
			name: "missing return",
			build: func(t *testing.T) *bytecode.Chunk {
				return chunkOf(t, 1.0)
			},
			want:   ErrCodeOverrun,
			offset: 2,
		},
		{
			name: "truncated constant",
			build: func(t *testing.T) *bytecode.Chunk {
				return chunkOf(t, bytecode.OpConstant)
			},
			want:   ErrCodeOverrun,
			offset: 0,
		},
		{
			name: "dangling constant index",
			build: func(t *testing.T) *bytecode.Chunk {
				c := bytecode.NewChunk()
				c.WriteOp(bytecode.OpConstant, 1)
				c.Write(3, 1)
				c.WriteOp(bytecode.OpReturn, 1)
				return c
			},
			want:   ErrConstantIndex,
			offset: 0,
		},
		{
			name: "binary underflow",
			build: func(t *testing.T) *bytecode.Chunk {
				return chunkOf(t, 1.0, bytecode.OpAdd, bytecode.OpReturn)
			},
			want:   ErrStackUnderflow,
			offset: 2,
		},
		{
			name: "negate underflow",
			build: func(t *testing.T) *bytecode.Chunk {
				return chunkOf(t, bytecode.OpNegate, bytecode.OpReturn)
			},
			want:   ErrStackUnderflow,
			offset: 0,
		},
		{
			name: "return on empty stack",
			build: func(t *testing.T) *bytecode.Chunk {
				return chunkOf(t, bytecode.OpReturn)
			},
			want:   ErrStackUnderflow,
			offset: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm, errOut := newTestVM()
			_, err := vm.Execute(tt.build(t))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}

			var rerr *RuntimeError
			if !errors.As(err, &rerr) {
				t.Fatalf("err is %T, want *RuntimeError", err)
			}
			if rerr.Offset != tt.offset {
				t.Errorf("Offset = %d, want %d", rerr.Offset, tt.offset)
			}
			if ResultOf(err) != InterpretRuntimeError {
				t.Errorf("ResultOf = %v, want %v", ResultOf(err), InterpretRuntimeError)
			}

			result, _ := vm.Interpret(tt.build(t))
			if result != InterpretRuntimeError {
				t.Errorf("Interpret = %v, want %v", result, InterpretRuntimeError)
			}
			if !strings.Contains(errOut.String(), "[line 1] in script") {
				t.Errorf("error output %q missing line report", errOut.String())
			}
		})
	}
}

func TestStackOverflow(t *testing.T) {
	c := bytecode.NewChunk()
	idx := c.AddConstant(1)
	for i := 0; i < StackMax+1; i++ {
		c.WriteOp(bytecode.OpConstant, 1)
		c.Write(byte(idx), 1)
	}
	c.WriteOp(bytecode.OpReturn, 1)

	vm, _ := newTestVM()
	_, err := vm.Execute(c)
	if !errors.Is(err, ErrStackOverflow) {
		t.Fatalf("err = %v, want %v", err, ErrStackOverflow)
	}
	if len(vm.Stack()) != StackMax {
		t.Errorf("stack depth = %d, want %d", len(vm.Stack()), StackMax)
	}
}

func TestStackHoldsExactlyStackMax(t *testing.T) {
	c := bytecode.NewChunk()
	idx := c.AddConstant(1)
	for i := 0; i < StackMax; i++ {
		c.WriteOp(bytecode.OpConstant, 1)
		c.Write(byte(idx), 1)
	}
	c.WriteOp(bytecode.OpReturn, 1)

	vm, _ := newTestVM()
	if _, err := vm.Execute(c); err != nil {
		t.Fatalf("Execute with a full stack: %v", err)
	}
	if len(vm.Stack()) != StackMax-1 {
		t.Errorf("stack depth = %d, want %d", len(vm.Stack()), StackMax-1)
	}
}

func TestNilChunk(t *testing.T) {
	vm, _ := newTestVM()
	if _, err := vm.Execute(nil); !errors.Is(err, ErrNilChunk) {
		t.Errorf("err = %v, want %v", err, ErrNilChunk)
	}
}

func TestReuseAfterError(t *testing.T) {
	vm, _ := newTestVM()

	if _, err := vm.Execute(chunkOf(t, 1.0, 2.0, byte(0xEE))); err == nil {
		t.Fatal("expected error")
	}

	got, err := vm.Execute(chunkOf(t, 4.0, bytecode.OpNegate, bytecode.OpReturn))
	if err != nil {
		t.Fatalf("Execute after error: %v", err)
	}
	if got != -4 {
		t.Errorf("result = %v, want -4", got)
	}
}

func TestResetAndFree(t *testing.T) {
	vm, _ := newTestVM()
	vm.Execute(chunkOf(t, 1.0, 2.0, bytecode.OpReturn))
	if len(vm.Stack()) != 1 {
		t.Fatalf("stack depth = %d, want 1", len(vm.Stack()))
	}

	vm.Reset()
	if len(vm.Stack()) != 0 {
		t.Errorf("stack depth after Reset = %d, want 0", len(vm.Stack()))
	}

	vm.Free()
	vm.Free()
	if got, err := vm.Execute(chunkOf(t, 2.0, bytecode.OpReturn)); err != nil || got != 2 {
		t.Errorf("Execute after Free = %v, %v", got, err)
	}
}

func TestTrace(t *testing.T) {
	var trace bytes.Buffer
	vm, _ := newTestVM(WithTrace(&trace))

	c := bytecode.NewChunk()
	c.EmitConstant(1, 123)
	c.EmitConstant(2, 123)
	c.WriteOp(bytecode.OpAdd, 123)
	c.WriteOp(bytecode.OpReturn, 124)

	if _, err := vm.Execute(c); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := strings.Join([]string{
		"          ",
		"0000  123 OP_CONSTANT         0 '1'",
		"          [ 1 ]",
		"0002    | OP_CONSTANT         1 '2'",
		"          [ 1 ][ 2 ]",
		"0004    | OP_ADD",
		"          [ 3 ]",
		"0005  124 OP_RETURN",
		"",
	}, "\n")
	if trace.String() != want {
		t.Errorf("trace =\n%s\nwant\n%s", trace.String(), want)
	}
}

func TestSetTraceDisables(t *testing.T) {
	var trace bytes.Buffer
	vm, _ := newTestVM(WithTrace(&trace))
	vm.SetTrace(nil)

	vm.Execute(chunkOf(t, 1.0, bytecode.OpReturn))
	if trace.Len() != 0 {
		t.Errorf("trace written after SetTrace(nil): %q", trace.String())
	}
}

func TestRuntimeErrorMessage(t *testing.T) {
	c := bytecode.NewChunk()
	c.WriteOp(bytecode.OpAdd, 7)

	vm, _ := newTestVM()
	_, err := vm.Execute(c)

	want := "stack underflow in OP_ADD at offset 0000"
	if err == nil || err.Error() != want {
		t.Errorf("err = %v, want %q", err, want)
	}

	_, err = vm.Execute(chunkOf(t, byte(200)))
	want = "unknown opcode 200 at offset 0000"
	if err == nil || err.Error() != want {
		t.Errorf("err = %v, want %q", err, want)
	}
}

func TestInterpretResultString(t *testing.T) {
	tests := []struct {
		r    InterpretResult
		want string
	}{
		{InterpretOK, "OK"},
		{InterpretCompileError, "COMPILE_ERROR"},
		{InterpretRuntimeError, "RUNTIME_ERROR"},
		{InterpretResult(9), "InterpretResult(9)"},
	}
	for _, tt := range tests {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", int(tt.r), got, tt.want)
		}
	}
}

func TestResultOfCompileError(t *testing.T) {
	if got := ResultOf(bytecode.ErrTooManyConstants); got != InterpretCompileError {
		t.Errorf("ResultOf(ErrTooManyConstants) = %v, want %v", got, InterpretCompileError)
	}
	if got := ResultOf(nil); got != InterpretOK {
		t.Errorf("ResultOf(nil) = %v, want %v", got, InterpretOK)
	}
}

func TestIndependentVMsRunConcurrently(t *testing.T) {
	c := chunkOf(t, 2.0, 3.0, bytecode.OpMultiply, bytecode.OpReturn)
	p := NewProfiler()

	done := make(chan bytecode.Value, 8)
	for i := 0; i < 8; i++ {
		go func() {
			vm, _ := newTestVM(WithProfiler(p))
			v, _ := vm.Execute(c)
			done <- v
		}()
	}
	for i := 0; i < 8; i++ {
		if v := <-done; v != 6 {
			t.Errorf("result = %v, want 6", v)
		}
	}
	if got := p.Stats().Runs; got != 8 {
		t.Errorf("Runs = %d, want 8", got)
	}
}

func TestCodeOverrunMessage(t *testing.T) {
	vm, _ := newTestVM()
	_, err := vm.Execute(chunkOf(t, 1.0))

	want := "instruction pointer ran past end of chunk at offset 0002"
	if err == nil || err.Error() != want {
		t.Errorf("err = %v, want %q", err, want)
	}
}

func TestCodeOverrunBlamesLastInstruction(t *testing.T) {
	tests := []struct {
		name  string
		chunk *bytecode.Chunk
		op    bytecode.Opcode
	}{
		{"after constant", chunkOf(t, 1.0), bytecode.OpConstant},
		{"after negate", chunkOf(t, 1.0, bytecode.OpNegate), bytecode.OpNegate},
		{"after add", chunkOf(t, 1.0, 2.0, bytecode.OpAdd), bytecode.OpAdd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm, _ := newTestVM()
			_, err := vm.Execute(tt.chunk)

			var rerr *RuntimeError
			if !errors.As(err, &rerr) || !errors.Is(err, ErrCodeOverrun) {
				t.Fatalf("err = %v, want %v", err, ErrCodeOverrun)
			}
			if rerr.Op != tt.op {
				t.Errorf("Op = %s, want %s", rerr.Op, tt.op)
			}
			if rerr.Line != 1 {
				t.Errorf("Line = %d, want 1", rerr.Line)
			}
		})
	}
}
