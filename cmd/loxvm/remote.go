package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"connectrpc.com/connect"

	"github.com/chazu/loxvm/server"
	"github.com/chazu/loxvm/vm"
)

// remoteClient is the method set shared by server.Client and
// server.GRPCClient.
type remoteClient interface {
	Run(context.Context, *server.RunRequest) (*server.RunResponse, error)
	Assemble(context.Context, *server.AssembleRequest) (*server.AssembleResponse, error)
	Disassemble(context.Context, *server.DisassembleRequest) (*server.DisassembleResponse, error)
	SaveChunk(context.Context, *server.SaveChunkRequest) (*server.SaveChunkResponse, error)
	ListChunks(context.Context) (*server.ListChunksResponse, error)
	DeleteChunk(context.Context, string) error
	ListRuns(context.Context, string) (*server.ListRunsResponse, error)
	Stats(context.Context) (*server.StatsResponse, error)
	Close() error
}

// dialRemote picks the Connect client for http(s) URLs and the gRPC client
// for plain host:port addresses.
func dialRemote(addr string) (remoteClient, error) {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return server.NewClient(http.DefaultClient, addr), nil
	}
	return server.DialGRPC(addr)
}

// runRemote performs the requested operation on the server at c.addr.
func (c *cli) runRemote(paths []string) int {
	client, err := dialRemote(c.addr)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return exitIOError
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch {
	case c.stats:
		return c.remoteStats(ctx, client)
	case c.list:
		resp, err := client.ListChunks(ctx)
		if err != nil {
			return c.remoteFailure(err)
		}
		for _, info := range resp.Chunks {
			c.printChunk(info.Name, info.Size, info.Constants, time.Unix(0, info.UpdatedUnixNs))
		}
		return exitOK
	case c.runs != "":
		resp, err := client.ListRuns(ctx, c.runs)
		if err != nil {
			return c.remoteFailure(err)
		}
		for _, r := range resp.Runs {
			c.printRun(time.Unix(0, r.StartedUnixNs), r.Result, r.Value, r.Error)
		}
		return exitOK
	case c.delete != "":
		if err := client.DeleteChunk(ctx, c.delete); err != nil {
			return c.remoteFailure(err)
		}
		fmt.Fprintf(c.stdout, "deleted %s\n", c.delete)
		return exitOK
	case c.load != "":
		if c.disasm {
			resp, err := client.Disassemble(ctx, &server.DisassembleRequest{Name: c.load})
			if err != nil {
				return c.remoteFailure(err)
			}
			fmt.Fprint(c.stdout, resp.Listing)
			return exitOK
		}
		resp, err := client.Run(ctx, &server.RunRequest{Name: c.load, Trace: c.trace})
		if err != nil {
			return c.remoteFailure(err)
		}
		return c.reportRemoteRun(resp)
	case len(paths) == 1:
		return c.remoteFile(ctx, client, paths[0])
	default:
		fmt.Fprintln(c.stderr, "a source file is required")
		return exitUsage
	}
}

// remoteFile assembles, stores or runs a source file on the server.
func (c *cli) remoteFile(ctx context.Context, client remoteClient, path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(c.stderr, "Could not read file %q: %v\n", path, err)
		return exitIOError
	}
	src := string(data)

	switch {
	case c.disasm:
		resp, err := client.Assemble(ctx, &server.AssembleRequest{Source: src})
		if err != nil {
			return c.remoteFailure(err)
		}
		fmt.Fprint(c.stdout, resp.Listing)
		return exitOK
	case c.save != "":
		resp, err := client.SaveChunk(ctx, &server.SaveChunkRequest{Name: c.save, Source: src})
		if err != nil {
			return c.remoteFailure(err)
		}
		fmt.Fprintf(c.stdout, "saved %s (%d instructions, %d bytes, %d constants)\n",
			resp.Info.Name, resp.Info.Instructions, resp.Info.Size, resp.Info.Constants)
		return exitOK
	}

	resp, err := client.Run(ctx, &server.RunRequest{Source: src, Trace: c.trace})
	if err != nil {
		return c.remoteFailure(err)
	}
	return c.reportRemoteRun(resp)
}

func (c *cli) reportRemoteRun(resp *server.RunResponse) int {
	fmt.Fprint(c.stdout, resp.Trace)
	switch resp.Result {
	case vm.InterpretOK.String():
		fmt.Fprintln(c.stdout, resp.Value)
		return exitOK
	case vm.InterpretCompileError.String():
		fmt.Fprintln(c.stderr, resp.Error)
		return exitCompileError
	default:
		fmt.Fprintln(c.stderr, resp.Error)
		if resp.Line > 0 {
			fmt.Fprintf(c.stderr, "[line %d] in script\n", resp.Line)
		}
		return exitRuntimeError
	}
}

func (c *cli) remoteStats(ctx context.Context, client remoteClient) int {
	stats, err := client.Stats(ctx)
	if err != nil {
		return c.remoteFailure(err)
	}
	fmt.Fprintf(c.stdout, "runs %d  errors %d  instructions %d\n", stats.Runs, stats.Errors, stats.Instructions)
	for _, name := range stats.Top {
		fmt.Fprintf(c.stdout, "  %-16s %d\n", name, stats.ByOpcode[name])
	}
	return exitOK
}

// remoteFailure maps an RPC error to an exit status. Rejected source is a
// compile error and a missing chunk a usage error.
func (c *cli) remoteFailure(err error) int {
	fmt.Fprintf(c.stderr, "Error: %v\n", err)
	switch connect.CodeOf(err) {
	case connect.CodeInvalidArgument:
		return exitCompileError
	case connect.CodeNotFound:
		return exitUsage
	default:
		return exitIOError
	}
}
