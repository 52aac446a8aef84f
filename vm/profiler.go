package vm

import (
	"sync/atomic"

	"github.com/chazu/loxvm/pkg/bytecode"
)

// Profiler counts executed instructions per opcode and completed runs.
// All counters are atomic, so one Profiler may be shared by VMs running on
// different goroutines.
type Profiler struct {
	byOpcode [256]uint64 // Indexed by opcode byte, including unknown opcodes
	runs     uint64
	errors   uint64
}

// NewProfiler creates an empty profiler.
func NewProfiler() *Profiler {
	return &Profiler{}
}

// RecordInstruction counts one fetched instruction.
func (p *Profiler) RecordInstruction(op bytecode.Opcode) {
	atomic.AddUint64(&p.byOpcode[op], 1)
}

// RecordRun counts a finished Execute call. A non-nil err also counts as a
// failed run.
func (p *Profiler) RecordRun(err error) {
	atomic.AddUint64(&p.runs, 1)
	if err != nil {
		atomic.AddUint64(&p.errors, 1)
	}
}

// Count returns how many times op was executed.
func (p *Profiler) Count(op bytecode.Opcode) uint64 {
	return atomic.LoadUint64(&p.byOpcode[op])
}

// ProfilerStats holds aggregate profiling statistics.
type ProfilerStats struct {
	Runs         uint64            // Completed Execute calls
	Errors       uint64            // Runs that ended in a runtime error
	Instructions uint64            // Total fetched instructions
	ByOpcode     map[string]uint64 // Mnemonic -> count, nonzero entries only
}

// Stats returns a snapshot of the counters.
func (p *Profiler) Stats() ProfilerStats {
	stats := ProfilerStats{
		Runs:     atomic.LoadUint64(&p.runs),
		Errors:   atomic.LoadUint64(&p.errors),
		ByOpcode: make(map[string]uint64),
	}
	for i := range p.byOpcode {
		n := atomic.LoadUint64(&p.byOpcode[i])
		if n == 0 {
			continue
		}
		stats.Instructions += n
		stats.ByOpcode[bytecode.Opcode(i).String()] = n
	}
	return stats
}

// TopOpcodes returns up to n opcodes ordered by execution count, highest
// first. Opcodes that never ran are omitted.
func (p *Profiler) TopOpcodes(n int) []bytecode.Opcode {
	type opCount struct {
		op    bytecode.Opcode
		count uint64
	}

	var all []opCount
	for i := range p.byOpcode {
		if c := atomic.LoadUint64(&p.byOpcode[i]); c > 0 {
			all = append(all, opCount{bytecode.Opcode(i), c})
		}
	}

	// Selection sort for top N
	for i := 0; i < n && i < len(all); i++ {
		maxIdx := i
		for j := i + 1; j < len(all); j++ {
			if all[j].count > all[maxIdx].count {
				maxIdx = j
			}
		}
		all[i], all[maxIdx] = all[maxIdx], all[i]
	}

	result := make([]bytecode.Opcode, 0, n)
	for i := 0; i < n && i < len(all); i++ {
		result = append(result, all[i].op)
	}
	return result
}

// Reset zeroes every counter.
func (p *Profiler) Reset() {
	for i := range p.byOpcode {
		atomic.StoreUint64(&p.byOpcode[i], 0)
	}
	atomic.StoreUint64(&p.runs, 0)
	atomic.StoreUint64(&p.errors, 0)
}
