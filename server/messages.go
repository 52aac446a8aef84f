package server

import "github.com/chazu/loxvm/pkg/bytecode"

// RunRequest executes a program. Exactly one of Source, Chunk or Name is
// set: assembly text, an encoded chunk, or the name of a stored chunk.
type RunRequest struct {
	Source string              `cbor:"1,keyasint,omitempty" json:"source,omitempty"`
	Chunk  *bytecode.WireChunk `cbor:"2,keyasint,omitempty" json:"chunk,omitempty"`
	Name   string              `cbor:"3,keyasint,omitempty" json:"name,omitempty"`
	Trace  bool                `cbor:"4,keyasint,omitempty" json:"trace,omitempty"`
}

// RunResponse reports the outcome of a run. Compile and runtime errors are
// results, not RPC failures.
type RunResponse struct {
	Result string         `cbor:"1,keyasint" json:"result"` // OK, COMPILE_ERROR or RUNTIME_ERROR
	Value  bytecode.Value `cbor:"2,keyasint" json:"value"`
	Error  string         `cbor:"3,keyasint,omitempty" json:"error,omitempty"`
	Line   int            `cbor:"4,keyasint,omitempty" json:"line,omitempty"`
	Trace  string         `cbor:"5,keyasint,omitempty" json:"trace,omitempty"`
	RunID  string         `cbor:"6,keyasint,omitempty" json:"run_id,omitempty"` // Set when a stored chunk ran
}

// AssembleRequest carries assembly text to translate without running.
type AssembleRequest struct {
	Source string `cbor:"1,keyasint" json:"source"`
}

// AssembleResponse holds the assembled chunk and its listing.
type AssembleResponse struct {
	Chunk   *bytecode.WireChunk `cbor:"1,keyasint" json:"chunk"`
	Listing string              `cbor:"2,keyasint" json:"listing"`
}

// DisassembleRequest names a stored chunk or carries one inline.
type DisassembleRequest struct {
	Chunk *bytecode.WireChunk `cbor:"1,keyasint,omitempty" json:"chunk,omitempty"`
	Name  string              `cbor:"2,keyasint,omitempty" json:"name,omitempty"`
}

// DisassembleResponse holds a "== name ==" listing.
type DisassembleResponse struct {
	Listing string `cbor:"1,keyasint" json:"listing"`
}

// SaveChunkRequest stores Source assembled, or Chunk as is, under Name.
type SaveChunkRequest struct {
	Name   string              `cbor:"1,keyasint" json:"name"`
	Source string              `cbor:"2,keyasint,omitempty" json:"source,omitempty"`
	Chunk  *bytecode.WireChunk `cbor:"3,keyasint,omitempty" json:"chunk,omitempty"`
}

// SaveChunkResponse describes the chunk just stored.
type SaveChunkResponse struct {
	Info ChunkInfo `cbor:"1,keyasint" json:"info"`
}

// ListChunksRequest has no fields; every stored chunk is listed.
type ListChunksRequest struct{}

// ListChunksResponse lists stored chunks ordered by name.
type ListChunksResponse struct {
	Chunks []ChunkInfo `cbor:"1,keyasint" json:"chunks"`
}

// ChunkInfo summarizes a stored chunk.
type ChunkInfo struct {
	Name          string `cbor:"1,keyasint" json:"name"`
	Size          int    `cbor:"2,keyasint" json:"size"`
	Constants     int    `cbor:"3,keyasint" json:"constants"`
	UpdatedUnixNs int64  `cbor:"4,keyasint,omitempty" json:"updated_unix_ns,omitempty"`
	Instructions  int    `cbor:"5,keyasint,omitempty" json:"instructions,omitempty"`
}

// DeleteChunkRequest removes a stored chunk and its run history.
type DeleteChunkRequest struct {
	Name string `cbor:"1,keyasint" json:"name"`
}

// DeleteChunkResponse is empty on success.
type DeleteChunkResponse struct{}

// ListRunsRequest asks for the run history of a stored chunk.
type ListRunsRequest struct {
	Name string `cbor:"1,keyasint" json:"name"`
}

// ListRunsResponse holds runs oldest first.
type ListRunsResponse struct {
	Runs []RunInfo `cbor:"1,keyasint" json:"runs"`
}

// RunInfo is one recorded run of a stored chunk.
type RunInfo struct {
	ID            string         `cbor:"1,keyasint" json:"id"`
	Chunk         string         `cbor:"2,keyasint" json:"chunk"`
	Result        string         `cbor:"3,keyasint" json:"result"`
	Value         bytecode.Value `cbor:"4,keyasint" json:"value"`
	Error         string         `cbor:"5,keyasint,omitempty" json:"error,omitempty"`
	StartedUnixNs int64          `cbor:"6,keyasint" json:"started_unix_ns"`
}

// StatsRequest has no fields.
type StatsRequest struct{}

// StatsResponse mirrors vm.ProfilerStats for the server's VM. Top lists
// the most executed opcodes, highest count first.
type StatsResponse struct {
	Runs         uint64            `cbor:"1,keyasint" json:"runs"`
	Errors       uint64            `cbor:"2,keyasint" json:"errors"`
	Instructions uint64            `cbor:"3,keyasint" json:"instructions"`
	ByOpcode     map[string]uint64 `cbor:"4,keyasint,omitempty" json:"by_opcode,omitempty"`
	Top          []string          `cbor:"5,keyasint,omitempty" json:"top,omitempty"`
}
