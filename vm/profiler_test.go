package vm

import (
	"errors"
	"sync"
	"testing"

	"github.com/chazu/loxvm/pkg/bytecode"
)

func TestProfilerCountsInstructions(t *testing.T) {
	p := NewProfiler()
	vm, _ := newTestVM(WithProfiler(p))

	c := chunkOf(t, 1.0, 2.0, bytecode.OpAdd, 3.0, bytecode.OpMultiply, bytecode.OpReturn)
	if _, err := vm.Execute(c); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := p.Count(bytecode.OpConstant); got != 3 {
		t.Errorf("Count(OP_CONSTANT) = %d, want 3", got)
	}
	if got := p.Count(bytecode.OpAdd); got != 1 {
		t.Errorf("Count(OP_ADD) = %d, want 1", got)
	}
	if got := p.Count(bytecode.OpNegate); got != 0 {
		t.Errorf("Count(OP_NEGATE) = %d, want 0", got)
	}

	stats := p.Stats()
	if stats.Runs != 1 || stats.Errors != 0 {
		t.Errorf("Runs=%d Errors=%d, want 1 and 0", stats.Runs, stats.Errors)
	}
	if stats.Instructions != 6 {
		t.Errorf("Instructions = %d, want 6", stats.Instructions)
	}
	if stats.ByOpcode["OP_CONSTANT"] != 3 {
		t.Errorf("ByOpcode[OP_CONSTANT] = %d, want 3", stats.ByOpcode["OP_CONSTANT"])
	}
	if _, ok := stats.ByOpcode["OP_NEGATE"]; ok {
		t.Error("ByOpcode includes an opcode that never ran")
	}
}

func TestProfilerRecordsErrors(t *testing.T) {
	p := NewProfiler()
	p.RecordRun(nil)
	p.RecordRun(errors.New("boom"))

	stats := p.Stats()
	if stats.Runs != 2 {
		t.Errorf("Runs = %d, want 2", stats.Runs)
	}
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
}

func TestProfilerTopOpcodes(t *testing.T) {
	p := NewProfiler()
	for i := 0; i < 5; i++ {
		p.RecordInstruction(bytecode.OpConstant)
	}
	for i := 0; i < 3; i++ {
		p.RecordInstruction(bytecode.OpAdd)
	}
	p.RecordInstruction(bytecode.OpReturn)

	top := p.TopOpcodes(2)
	if len(top) != 2 {
		t.Fatalf("len(TopOpcodes(2)) = %d, want 2", len(top))
	}
	if top[0] != bytecode.OpConstant || top[1] != bytecode.OpAdd {
		t.Errorf("TopOpcodes(2) = %v, want [OP_CONSTANT OP_ADD]", top)
	}

	if got := p.TopOpcodes(10); len(got) != 3 {
		t.Errorf("len(TopOpcodes(10)) = %d, want 3", len(got))
	}
}

func TestProfilerReset(t *testing.T) {
	p := NewProfiler()
	p.RecordInstruction(bytecode.OpReturn)
	p.RecordRun(nil)
	p.Reset()

	stats := p.Stats()
	if stats.Runs != 0 || stats.Instructions != 0 || len(stats.ByOpcode) != 0 {
		t.Errorf("Stats after Reset = %+v", stats)
	}
}

func TestProfilerConcurrentAccess(t *testing.T) {
	p := NewProfiler()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p.RecordInstruction(bytecode.OpAdd)
			}
		}()
	}
	wg.Wait()

	if got := p.Count(bytecode.OpAdd); got != 1000 {
		t.Errorf("Count(OP_ADD) = %d, want 1000", got)
	}
}
