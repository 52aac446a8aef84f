package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/loxvm/store"
	"github.com/chazu/loxvm/vm"
)

var log = commonlog.GetLogger("loxvm.server")

// LoxServer serves the interpreter service over Connect, gRPC and gRPC-Web
// on one port. Unencrypted HTTP/2 is enabled so gRPC clients can dial it
// without TLS.
type LoxServer struct {
	worker   *VMWorker
	profiler *vm.Profiler
	mux      *http.ServeMux

	mu         sync.Mutex
	httpServer *http.Server
}

// ServerOption configures a LoxServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	store       *store.Store
	handlerOpts []connect.HandlerOption
}

// WithStore enables the chunk store procedures.
func WithStore(st *store.Store) ServerOption {
	return func(c *serverConfig) { c.store = st }
}

// WithHandlerOptions passes extra options to every connect handler.
func WithHandlerOptions(opts ...connect.HandlerOption) ServerOption {
	return func(c *serverConfig) { c.handlerOpts = append(c.handlerOpts, opts...) }
}

// New creates a LoxServer with its own VM.
func New(opts ...ServerOption) *LoxServer {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	profiler := vm.NewProfiler()
	machine := vm.New(vm.WithProfiler(profiler), vm.WithErrorOutput(io.Discard))
	worker := NewVMWorker(machine)

	s := &LoxServer{
		worker:   worker,
		profiler: profiler,
		mux:      http.NewServeMux(),
	}

	svc := NewInterpreterService(worker, cfg.store, profiler)
	path, handler := NewInterpreterServiceHandler(svc, cfg.handlerOpts...)
	s.mux.Handle(path, handler)

	return s
}

// Profiler returns the profiler attached to the server's VM.
func (s *LoxServer) Profiler() *vm.Profiler {
	return s.profiler
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *LoxServer) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown.
func (s *LoxServer) Serve(l net.Listener) error {
	var protocols http.Protocols
	protocols.SetHTTP1(true)
	protocols.SetUnencryptedHTTP2(true)

	srv := &http.Server{Handler: s.mux, Protocols: &protocols}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	log.Noticef("loxvm server listening on %s", l.Addr())
	log.Infof("  Connect: http://%s%s", l.Addr(), RunProcedure)
	log.Infof("  gRPC:    grpc://%s", l.Addr())

	err := srv.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections, waits for in-flight requests and
// stops the VM worker.
func (s *LoxServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.worker.Stop()
	return err
}
