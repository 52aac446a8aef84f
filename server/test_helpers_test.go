package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/chazu/loxvm/store"
	"github.com/chazu/loxvm/vm"
)

// newTestService creates an InterpreterService with its own VM and a
// SQLite store in a temp directory.
func newTestService(t *testing.T) *InterpreterService {
	t.Helper()
	st, err := store.Open("sqlite", filepath.Join(t.TempDir(), "chunks.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	profiler := vm.NewProfiler()
	worker := NewVMWorker(vm.New(vm.WithProfiler(profiler), vm.WithErrorOutput(io.Discard)))
	t.Cleanup(worker.Stop)

	return NewInterpreterService(worker, st, profiler)
}

// startTestServer runs a LoxServer on a loopback port and returns its
// address ("127.0.0.1:port").
func startTestServer(t *testing.T) string {
	t.Helper()
	st, err := store.Open("sqlite", filepath.Join(t.TempDir(), "chunks.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := New(WithStore(st))
	go srv.Serve(l)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	return l.Addr().String()
}

func newTestClient(t *testing.T, addr string, opts ...connect.ClientOption) *Client {
	t.Helper()
	return NewClient(http.DefaultClient, "http://"+addr, opts...)
}

func connectReq[T any](msg *T) *connect.Request[T] {
	return connect.NewRequest(msg)
}

func bg() context.Context {
	return context.Background()
}
