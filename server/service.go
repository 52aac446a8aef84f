package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"

	"github.com/chazu/loxvm/asm"
	"github.com/chazu/loxvm/pkg/bytecode"
	"github.com/chazu/loxvm/store"
	"github.com/chazu/loxvm/vm"
)

// ServiceName is the fully-qualified name of the interpreter service.
const ServiceName = "loxvm.v1.InterpreterService"

// Procedure paths, in the form connect and gRPC clients dial.
const (
	RunProcedure         = "/" + ServiceName + "/Run"
	AssembleProcedure    = "/" + ServiceName + "/Assemble"
	DisassembleProcedure = "/" + ServiceName + "/Disassemble"
	SaveChunkProcedure   = "/" + ServiceName + "/SaveChunk"
	ListChunksProcedure  = "/" + ServiceName + "/ListChunks"
	DeleteChunkProcedure = "/" + ServiceName + "/DeleteChunk"
	ListRunsProcedure    = "/" + ServiceName + "/ListRuns"
	StatsProcedure       = "/" + ServiceName + "/Stats"
)

// topOpcodes is how many opcodes Stats ranks.
const topOpcodes = 3

// InterpreterService implements the interpreter procedures on top of a
// VMWorker and an optional chunk store.
type InterpreterService struct {
	worker   *VMWorker
	store    *store.Store // Nil disables the chunk procedures and runs by name
	profiler *vm.Profiler
}

// NewInterpreterService creates an InterpreterService. st may be nil.
func NewInterpreterService(worker *VMWorker, st *store.Store, profiler *vm.Profiler) *InterpreterService {
	return &InterpreterService{
		worker:   worker,
		store:    st,
		profiler: profiler,
	}
}

// NewInterpreterServiceHandler builds an HTTP handler serving every
// procedure of svc. It returns the path prefix to mount it on.
func NewInterpreterServiceHandler(svc *InterpreterService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{
		connect.WithCodec(CBORCodec{}),
		connect.WithCodec(JSONCodec{}),
	}, opts...)

	mux := http.NewServeMux()
	mux.Handle(RunProcedure, connect.NewUnaryHandler(RunProcedure, svc.Run, opts...))
	mux.Handle(AssembleProcedure, connect.NewUnaryHandler(AssembleProcedure, svc.Assemble, opts...))
	mux.Handle(DisassembleProcedure, connect.NewUnaryHandler(DisassembleProcedure, svc.Disassemble, opts...))
	mux.Handle(SaveChunkProcedure, connect.NewUnaryHandler(SaveChunkProcedure, svc.SaveChunk, opts...))
	mux.Handle(ListChunksProcedure, connect.NewUnaryHandler(ListChunksProcedure, svc.ListChunks, opts...))
	mux.Handle(DeleteChunkProcedure, connect.NewUnaryHandler(DeleteChunkProcedure, svc.DeleteChunk, opts...))
	mux.Handle(ListRunsProcedure, connect.NewUnaryHandler(ListRunsProcedure, svc.ListRuns, opts...))
	mux.Handle(StatsProcedure, connect.NewUnaryHandler(StatsProcedure, svc.Stats, opts...))
	return "/" + ServiceName + "/", mux
}

// Run assembles or loads a chunk and executes it on the shared VM.
func (s *InterpreterService) Run(
	ctx context.Context,
	req *connect.Request[RunRequest],
) (*connect.Response[RunResponse], error) {
	msg := req.Msg

	var chunk *bytecode.Chunk
	switch {
	case msg.Name != "":
		c, err := s.loadChunk(ctx, msg.Name)
		if err != nil {
			return nil, err
		}
		chunk = c
	case msg.Chunk != nil:
		c, err := msg.Chunk.ToChunk()
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		chunk = c
	case msg.Source != "":
		c, err := asm.Assemble(msg.Source, asm.WithImplicitReturn())
		if err != nil {
			return connect.NewResponse(compileFailure(err)), nil
		}
		chunk = c
	default:
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source, chunk or name is required"))
	}

	out, err := s.worker.Do(func(v *vm.VM) any {
		return execute(v, chunk, msg.Trace)
	})
	if err != nil {
		log.Errorf("run failed: %s", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	resp := out.(*RunResponse)

	if msg.Name != "" && s.store != nil {
		run := &store.Run{Chunk: msg.Name, Result: resp.Result, Value: resp.Value, Error: resp.Error}
		if err := s.store.RecordRun(ctx, run); err != nil {
			log.Warningf("recording run of %s: %s", msg.Name, err)
		} else {
			resp.RunID = run.ID
		}
	}

	return connect.NewResponse(resp), nil
}

// execute runs chunk on v. Called on the worker goroutine.
func execute(v *vm.VM, chunk *bytecode.Chunk, trace bool) *RunResponse {
	var traceBuf bytes.Buffer
	if trace {
		v.SetTrace(&traceBuf)
		defer v.SetTrace(nil)
	}

	value, err := v.Execute(chunk)
	resp := &RunResponse{
		Result: vm.ResultOf(err).String(),
		Value:  value,
		Trace:  traceBuf.String(),
	}
	if err != nil {
		resp.Error = err.Error()
		var rerr *vm.RuntimeError
		if errors.As(err, &rerr) {
			resp.Line = rerr.Line
		}
	}
	return resp
}

func compileFailure(err error) *RunResponse {
	resp := &RunResponse{
		Result: vm.InterpretCompileError.String(),
		Error:  err.Error(),
	}
	var aerr *asm.Error
	if errors.As(err, &aerr) {
		resp.Line = aerr.Line
	}
	return resp
}

// Assemble translates source into a chunk without running it.
func (s *InterpreterService) Assemble(
	ctx context.Context,
	req *connect.Request[AssembleRequest],
) (*connect.Response[AssembleResponse], error) {
	chunk, err := asm.Assemble(req.Msg.Source)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return connect.NewResponse(&AssembleResponse{
		Chunk:   chunk.Wire(),
		Listing: chunk.Disassemble("source"),
	}), nil
}

// Disassemble renders an inline or stored chunk.
func (s *InterpreterService) Disassemble(
	ctx context.Context,
	req *connect.Request[DisassembleRequest],
) (*connect.Response[DisassembleResponse], error) {
	var (
		chunk *bytecode.Chunk
		title string
		err   error
	)
	switch {
	case req.Msg.Name != "":
		title = req.Msg.Name
		chunk, err = s.loadChunk(ctx, req.Msg.Name)
		if err != nil {
			return nil, err
		}
	case req.Msg.Chunk != nil:
		title = "chunk"
		chunk, err = req.Msg.Chunk.ToChunk()
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
	default:
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("chunk or name is required"))
	}
	return connect.NewResponse(&DisassembleResponse{Listing: chunk.Disassemble(title)}), nil
}

// SaveChunk stores a chunk under a name.
func (s *InterpreterService) SaveChunk(
	ctx context.Context,
	req *connect.Request[SaveChunkRequest],
) (*connect.Response[SaveChunkResponse], error) {
	if s.store == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, fmt.Errorf("no chunk store configured"))
	}
	msg := req.Msg
	if msg.Name == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("name is required"))
	}

	var (
		chunk *bytecode.Chunk
		err   error
	)
	switch {
	case msg.Chunk != nil:
		chunk, err = msg.Chunk.ToChunk()
	case msg.Source != "":
		chunk, err = asm.Assemble(msg.Source, asm.WithImplicitReturn())
	default:
		err = fmt.Errorf("source or chunk is required")
	}
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	if err := s.store.Put(ctx, msg.Name, chunk); err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&SaveChunkResponse{Info: ChunkInfo{
		Name:         msg.Name,
		Size:         chunk.Len(),
		Constants:    chunk.Constants().Len(),
		Instructions: chunk.InstructionCount(),
	}}), nil
}

// ListChunks lists stored chunks by name.
func (s *InterpreterService) ListChunks(
	ctx context.Context,
	req *connect.Request[ListChunksRequest],
) (*connect.Response[ListChunksResponse], error) {
	if s.store == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, fmt.Errorf("no chunk store configured"))
	}
	entries, err := s.store.List(ctx)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	resp := &ListChunksResponse{Chunks: make([]ChunkInfo, 0, len(entries))}
	for _, e := range entries {
		resp.Chunks = append(resp.Chunks, ChunkInfo{
			Name:          e.Name,
			Size:          e.Size,
			Constants:     e.Constants,
			UpdatedUnixNs: e.UpdatedAt.UnixNano(),
		})
	}
	return connect.NewResponse(resp), nil
}

// DeleteChunk removes a stored chunk and its run history.
func (s *InterpreterService) DeleteChunk(
	ctx context.Context,
	req *connect.Request[DeleteChunkRequest],
) (*connect.Response[DeleteChunkResponse], error) {
	if s.store == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, fmt.Errorf("no chunk store configured"))
	}
	err := s.store.Delete(ctx, req.Msg.Name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&DeleteChunkResponse{}), nil
}

// ListRuns returns the recorded runs of a stored chunk, oldest first.
func (s *InterpreterService) ListRuns(
	ctx context.Context,
	req *connect.Request[ListRunsRequest],
) (*connect.Response[ListRunsResponse], error) {
	if s.store == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, fmt.Errorf("no chunk store configured"))
	}
	if req.Msg.Name == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("name is required"))
	}
	runs, err := s.store.Runs(ctx, req.Msg.Name)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	resp := &ListRunsResponse{Runs: make([]RunInfo, 0, len(runs))}
	for _, r := range runs {
		resp.Runs = append(resp.Runs, RunInfo{
			ID:            r.ID,
			Chunk:         r.Chunk,
			Result:        r.Result,
			Value:         r.Value,
			Error:         r.Error,
			StartedUnixNs: r.StartedAt.UnixNano(),
		})
	}
	return connect.NewResponse(resp), nil
}

// Stats reports the profiler counters of the server's VM.
func (s *InterpreterService) Stats(
	ctx context.Context,
	req *connect.Request[StatsRequest],
) (*connect.Response[StatsResponse], error) {
	if s.profiler == nil {
		return connect.NewResponse(&StatsResponse{}), nil
	}
	stats := s.profiler.Stats()
	resp := &StatsResponse{
		Runs:         stats.Runs,
		Errors:       stats.Errors,
		Instructions: stats.Instructions,
		ByOpcode:     stats.ByOpcode,
	}
	for _, op := range s.profiler.TopOpcodes(topOpcodes) {
		resp.Top = append(resp.Top, op.String())
	}
	return connect.NewResponse(resp), nil
}

func (s *InterpreterService) loadChunk(ctx context.Context, name string) (*bytecode.Chunk, error) {
	if s.store == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, fmt.Errorf("no chunk store configured"))
	}
	chunk, err := s.store.Get(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return chunk, nil
}
