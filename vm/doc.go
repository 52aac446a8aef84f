// Package vm implements the loxvm stack machine.
//
// This package contains:
//   - The fetch-decode-execute loop over a bytecode.Chunk
//   - A fixed 256-slot value stack with checked push and pop
//   - Runtime errors carrying the failing offset, opcode and source line
//   - Optional execution tracing and an opcode profiler
//
// A VM is not reentrant. Hosts that share one across goroutines serialize
// access (see server.VMWorker). Independent VMs may run concurrently.
package vm
