package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/loxvm/pkg/bytecode"
)

// StackMax is the capacity of the value stack.
const StackMax = 256

var log = commonlog.GetLogger("loxvm.vm")

// VM executes bytecode chunks.
type VM struct {
	// Current execution state
	chunk *bytecode.Chunk
	ip    int // Offset of the next byte to fetch
	stack [StackMax]bytecode.Value
	sp    int // Number of live stack slots

	trace    io.Writer // Nil disables tracing
	errOut   io.Writer
	profiler *Profiler
}

// Option configures a VM.
type Option func(*VM)

// WithTrace writes the stack and the next instruction to w before every
// instruction executes.
func WithTrace(w io.Writer) Option {
	return func(vm *VM) { vm.trace = w }
}

// WithErrorOutput sets where Interpret reports runtime errors.
// Defaults to os.Stderr.
func WithErrorOutput(w io.Writer) Option {
	return func(vm *VM) { vm.errOut = w }
}

// WithProfiler records executed instructions in p.
func WithProfiler(p *Profiler) Option {
	return func(vm *VM) { vm.profiler = p }
}

// New creates a VM in the ready state.
func New(opts ...Option) *VM {
	vm := &VM{errOut: os.Stderr}
	for _, opt := range opts {
		opt(vm)
	}
	vm.Reset()
	return vm
}

// Reset clears the cursor and the stack.
func (vm *VM) Reset() {
	vm.chunk = nil
	vm.ip = 0
	vm.sp = 0
}

// Free tears the VM down. The VM owns no heap objects, so this only resets
// state; it is safe to call more than once.
func (vm *VM) Free() {
	vm.Reset()
}

// SetTrace enables tracing to w, or disables it when w is nil.
func (vm *VM) SetTrace(w io.Writer) {
	vm.trace = w
}

// Stack returns the live stack slots, bottom first.
func (vm *VM) Stack() []bytecode.Value {
	return vm.stack[:vm.sp]
}

// Execute runs chunk until OpReturn and returns the popped value.
// Any failure is a *RuntimeError. The stack left behind by a failed run is
// discarded by the next call.
func (vm *VM) Execute(chunk *bytecode.Chunk) (bytecode.Value, error) {
	if chunk == nil {
		return 0, &RuntimeError{Err: ErrNilChunk}
	}

	vm.chunk = chunk
	vm.ip = 0
	vm.sp = 0

	log.Debugf("executing chunk: %d bytes, %d constants", chunk.Len(), chunk.Constants().Len())

	result, err := vm.run()
	if vm.profiler != nil {
		vm.profiler.RecordRun(err)
	}
	if err != nil {
		log.Debugf("execution failed: %s", err)
		return 0, err
	}
	return result, nil
}

// Interpret runs chunk and reports the outcome the way a host expects:
// a completion status plus the result value. Runtime errors are written to
// the error output as "message\n[line N] in script".
func (vm *VM) Interpret(chunk *bytecode.Chunk) (InterpretResult, bytecode.Value) {
	result, err := vm.Execute(chunk)
	if err != nil {
		vm.reportError(err)
		return ResultOf(err), 0
	}
	return InterpretOK, result
}

func (vm *VM) reportError(err error) {
	if vm.errOut == nil {
		return
	}
	fmt.Fprintln(vm.errOut, err)
	if rerr, ok := err.(*RuntimeError); ok && rerr.Line > 0 {
		fmt.Fprintf(vm.errOut, "[line %d] in script\n", rerr.Line)
	}
}

// run is the main execution loop.
func (vm *VM) run() (bytecode.Value, error) {
	// last is the previous instruction, blamed when the cursor runs off the end
	last := bytecode.OpReturn
	for {
		start := vm.ip
		if vm.trace != nil {
			vm.traceInstruction(start)
		}

		b, ok := vm.readByte()
		if !ok {
			return 0, vm.runtimeError(start, last, ErrCodeOverrun)
		}
		op := bytecode.Opcode(b)
		last = op

		if vm.profiler != nil {
			vm.profiler.RecordInstruction(op)
		}

		switch {
		case op == bytecode.OpConstant:
			idx, ok := vm.readByte()
			if !ok {
				return 0, vm.runtimeError(start, op, ErrCodeOverrun)
			}
			constant, ok := vm.chunk.Constants().At(int(idx))
			if !ok {
				return 0, vm.runtimeError(start, op, ErrConstantIndex)
			}
			if !vm.push(constant) {
				return 0, vm.runtimeError(start, op, ErrStackOverflow)
			}

		case op == bytecode.OpNegate:
			if vm.sp < 1 {
				return 0, vm.runtimeError(start, op, ErrStackUnderflow)
			}
			vm.stack[vm.sp-1] = -vm.stack[vm.sp-1]

		case op.IsBinary():
			a, b, ok := vm.popOperands()
			if !ok {
				return 0, vm.runtimeError(start, op, ErrStackUnderflow)
			}
			vm.push(arithmetic(op, a, b))

		case op == bytecode.OpReturn:
			result, ok := vm.pop()
			if !ok {
				return 0, vm.runtimeError(start, op, ErrStackUnderflow)
			}
			return result, nil

		default:
			return 0, vm.runtimeError(start, op, ErrUnknownOpcode)
		}
	}
}

// arithmetic applies a binary opcode. Division follows IEEE-754.
func arithmetic(op bytecode.Opcode, a, b bytecode.Value) bytecode.Value {
	switch op {
	case bytecode.OpAdd:
		return a + b
	case bytecode.OpSubtract:
		return a - b
	case bytecode.OpMultiply:
		return a * b
	default:
		return a / b
	}
}

// readByte fetches the byte at the cursor and advances it.
func (vm *VM) readByte() (byte, bool) {
	code := vm.chunk.Code()
	if vm.ip >= len(code) {
		return 0, false
	}
	b := code[vm.ip]
	vm.ip++
	return b, true
}

func (vm *VM) push(v bytecode.Value) bool {
	if vm.sp >= StackMax {
		return false
	}
	vm.stack[vm.sp] = v
	vm.sp++
	return true
}

func (vm *VM) pop() (bytecode.Value, bool) {
	if vm.sp <= 0 {
		return 0, false
	}
	vm.sp--
	return vm.stack[vm.sp], true
}

// popOperands pops the right operand, then the left, and returns them in
// source order. On underflow the stack is left untouched.
func (vm *VM) popOperands() (left, right bytecode.Value, ok bool) {
	if vm.sp < 2 {
		return 0, 0, false
	}
	right, _ = vm.pop()
	left, _ = vm.pop()
	return left, right, true
}

func (vm *VM) runtimeError(offset int, op bytecode.Opcode, err error) *RuntimeError {
	line := vm.chunk.LineAt(offset)
	if line == 0 && offset > 0 {
		// Overran the end: blame the last instruction's line
		line = vm.chunk.LineAt(offset - 1)
	}
	return &RuntimeError{
		Err:    err,
		Op:     op,
		Offset: offset,
		Line:   line,
	}
}
