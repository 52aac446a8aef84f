// loxvm CLI - assembles and runs loxvm bytecode
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/loxvm/asm"
	"github.com/chazu/loxvm/manifest"
	"github.com/chazu/loxvm/pkg/bytecode"
	"github.com/chazu/loxvm/server"
	"github.com/chazu/loxvm/store"
	"github.com/chazu/loxvm/vm"

	_ "github.com/tliron/commonlog/simple"
)

// Exit statuses, following the BSD sysexits convention.
const (
	exitOK           = 0
	exitUsage        = 64
	exitCompileError = 65
	exitRuntimeError = 70
	exitIOError      = 74
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// cli holds the parsed flags and the streams one invocation works with.
type cli struct {
	disasm     bool
	trace      bool
	configPath string
	verbosity  int
	save       string
	load       string
	list       bool
	runs       string
	delete     string
	stats      bool
	serve      bool
	lsp        bool
	remote     bool
	addr       string

	stdin          io.Reader
	stdout, stderr io.Writer
	config         *manifest.Manifest
	profiler       *vm.Profiler
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr}

	fs := flag.NewFlagSet("loxvm", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&c.disasm, "disasm", false, "Print the disassembly instead of running")
	fs.BoolVar(&c.trace, "trace", false, "Trace the stack and each instruction while running")
	fs.StringVar(&c.configPath, "config", "", "Path to a loxvm.toml (default: search upward from the working directory)")
	fs.IntVar(&c.verbosity, "v", 0, "Log verbosity (-4 silent .. 2 debug)")
	fs.StringVar(&c.save, "save", "", "Store the assembled chunk under `name` instead of running it")
	fs.StringVar(&c.load, "load", "", "Run the stored chunk `name`")
	fs.BoolVar(&c.list, "list", false, "List stored chunks")
	fs.StringVar(&c.runs, "runs", "", "Show the run history of the stored chunk `name`")
	fs.StringVar(&c.delete, "delete", "", "Delete the stored chunk `name` and its history")
	fs.BoolVar(&c.stats, "stats", false, "Print the server's profiler counters (with -remote)")
	fs.BoolVar(&c.serve, "serve", false, "Serve the interpreter RPC service")
	fs.BoolVar(&c.lsp, "lsp", false, "Run the language server on stdio")
	fs.BoolVar(&c.remote, "remote", false, "Send the request to a server instead of running locally")
	fs.StringVar(&c.addr, "addr", "", "Server `address` for -serve and -remote (default: [server] addr in loxvm.toml)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: loxvm [options] [path.lxa]\n\n")
		fmt.Fprintf(stderr, "Assembles and runs loxvm bytecode. With no path, starts a REPL.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  loxvm                        # Start REPL\n")
		fmt.Fprintf(stderr, "  loxvm prog.lxa               # Assemble and run prog.lxa\n")
		fmt.Fprintf(stderr, "  loxvm -disasm prog.lxa       # Print the listing\n")
		fmt.Fprintf(stderr, "  loxvm -save prog prog.lxa    # Store the chunk as 'prog'\n")
		fmt.Fprintf(stderr, "  loxvm -load prog             # Run the stored chunk\n")
		fmt.Fprintf(stderr, "  loxvm -runs prog             # Show past runs of 'prog'\n")
		fmt.Fprintf(stderr, "  loxvm -serve -addr :8700     # Start the RPC server\n")
		fmt.Fprintf(stderr, "  loxvm -remote prog.lxa       # Run on the configured server (gRPC)\n")
		fmt.Fprintf(stderr, "  loxvm -remote -addr http://host:8700 -list  # Use the Connect protocol\n")
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	paths := fs.Args()
	if len(paths) > 1 {
		fs.Usage()
		return exitUsage
	}

	if status := c.configure(fs); status != exitOK {
		return status
	}

	switch {
	case c.lsp:
		return c.runLSP()
	case c.serve:
		return c.runServer()
	case c.remote:
		return c.runRemote(paths)
	case c.stats:
		fmt.Fprintln(stderr, "-stats requires -remote")
		return exitUsage
	case c.list:
		return c.listChunks()
	case c.runs != "":
		return c.listRuns(c.runs)
	case c.delete != "":
		return c.deleteChunk(c.delete)
	case c.load != "":
		return c.runStored(c.load)
	case len(paths) == 1:
		return c.runFile(paths[0])
	case c.save != "" || c.disasm:
		fmt.Fprintln(stderr, "a source file is required")
		return exitUsage
	default:
		return c.repl()
	}
}

// configure loads loxvm.toml and applies it beneath explicit flags.
func (c *cli) configure(fs *flag.FlagSet) int {
	var (
		m   *manifest.Manifest
		err error
	)
	if c.configPath != "" {
		m, err = manifest.LoadFile(c.configPath)
	} else {
		m, err = manifest.FindAndLoad(".")
	}
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return exitUsage
	}
	if m == nil {
		m = manifest.Default()
	}
	c.config = m

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if !set["trace"] {
		c.trace = m.VM.Trace
	}
	if !set["v"] {
		c.verbosity = m.Log.Verbosity
	}
	if !set["addr"] {
		c.addr = m.Server.Addr
	}

	var logPath *string
	if m.Log.Path != "" {
		logPath = &m.Log.Path
	}
	commonlog.Configure(c.verbosity, logPath)
	return exitOK
}

func (c *cli) newVM() *vm.VM {
	opts := []vm.Option{vm.WithErrorOutput(c.stderr)}
	if c.profiler != nil {
		opts = append(opts, vm.WithProfiler(c.profiler))
	}
	if c.trace {
		opts = append(opts, vm.WithTrace(c.stdout))
	}
	return vm.New(opts...)
}

func (c *cli) openStore() (*store.Store, error) {
	return store.Open(c.config.Store.Driver, c.config.Store.DSN)
}

// runFile assembles path, then prints, stores, or runs the chunk.
func (c *cli) runFile(path string) int {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(c.stderr, "Could not read file %q: %v\n", path, err)
		return exitIOError
	}

	chunk, err := asm.Assemble(string(src))
	if err != nil {
		fmt.Fprintln(c.stderr, err)
		return exitCompileError
	}

	if c.disasm {
		fmt.Fprint(c.stdout, chunk.Disassemble(path))
		return exitOK
	}

	if c.save != "" {
		st, err := c.openStore()
		if err != nil {
			fmt.Fprintf(c.stderr, "Error: %v\n", err)
			return exitIOError
		}
		defer st.Close()
		if err := st.Put(context.Background(), c.save, chunk); err != nil {
			fmt.Fprintf(c.stderr, "Error: %v\n", err)
			return exitIOError
		}
		fmt.Fprintf(c.stdout, "saved %s (%d instructions, %d bytes, %d constants)\n",
			c.save, chunk.InstructionCount(), chunk.Len(), chunk.Constants().Len())
		return exitOK
	}

	status, _ := c.interpret(c.newVM(), chunk)
	return status
}

// interpret runs chunk and prints its value. Runtime errors were already
// reported by the VM.
func (c *cli) interpret(machine *vm.VM, chunk *bytecode.Chunk) (int, vm.InterpretResult) {
	result, value := machine.Interpret(chunk)
	switch result {
	case vm.InterpretOK:
		fmt.Fprintln(c.stdout, value)
		return exitOK, result
	case vm.InterpretCompileError:
		return exitCompileError, result
	default:
		return exitRuntimeError, result
	}
}

func (c *cli) runStored(name string) int {
	st, err := c.openStore()
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return exitIOError
	}
	defer st.Close()

	ctx := context.Background()
	chunk, err := st.Get(ctx, name)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		if errors.Is(err, store.ErrNotFound) {
			return exitUsage
		}
		return exitIOError
	}

	if c.disasm {
		fmt.Fprint(c.stdout, chunk.Disassemble(name))
		return exitOK
	}

	machine := c.newVM()
	started := time.Now()
	value, runErr := machine.Execute(chunk)

	record := &store.Run{Chunk: name, Result: vm.ResultOf(runErr).String(), Value: value, StartedAt: started}
	if runErr != nil {
		record.Error = runErr.Error()
	}
	if err := st.RecordRun(ctx, record); err != nil {
		fmt.Fprintf(c.stderr, "Warning: %v\n", err)
	}

	if runErr != nil {
		fmt.Fprintln(c.stderr, runErr)
		var rerr *vm.RuntimeError
		if errors.As(runErr, &rerr) && rerr.Line > 0 {
			fmt.Fprintf(c.stderr, "[line %d] in script\n", rerr.Line)
		}
		return exitRuntimeError
	}
	fmt.Fprintln(c.stdout, value)
	return exitOK
}

func (c *cli) listChunks() int {
	st, err := c.openStore()
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return exitIOError
	}
	defer st.Close()

	entries, err := st.List(context.Background())
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return exitIOError
	}
	for _, e := range entries {
		c.printChunk(e.Name, e.Size, e.Constants, e.UpdatedAt)
	}
	return exitOK
}

func (c *cli) printChunk(name string, size, constants int, updated time.Time) {
	fmt.Fprintf(c.stdout, "%-20s %6d bytes %4d constants  %s\n",
		name, size, constants, updated.Format(time.RFC3339))
}

func (c *cli) listRuns(name string) int {
	st, err := c.openStore()
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return exitIOError
	}
	defer st.Close()

	runs, err := st.Runs(context.Background(), name)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return exitIOError
	}
	for _, r := range runs {
		c.printRun(r.StartedAt, r.Result, r.Value, r.Error)
	}
	return exitOK
}

func (c *cli) printRun(started time.Time, result string, value bytecode.Value, errText string) {
	if errText != "" {
		fmt.Fprintf(c.stdout, "%s  %-13s %s\n", started.Format(time.RFC3339), result, errText)
		return
	}
	fmt.Fprintf(c.stdout, "%s  %-13s %s\n", started.Format(time.RFC3339), result, value)
}

func (c *cli) deleteChunk(name string) int {
	st, err := c.openStore()
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return exitIOError
	}
	defer st.Close()

	if err := st.Delete(context.Background(), name); err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		if errors.Is(err, store.ErrNotFound) {
			return exitUsage
		}
		return exitIOError
	}
	fmt.Fprintf(c.stdout, "deleted %s\n", name)
	return exitOK
}

func (c *cli) runServer() int {
	var opts []server.ServerOption
	st, err := c.openStore()
	if err != nil {
		fmt.Fprintf(c.stderr, "Warning: chunk store disabled: %v\n", err)
	} else {
		defer st.Close()
		opts = append(opts, server.WithStore(st))
	}

	srv := server.New(opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(c.stdout, "loxvm server listening on %s\n", c.addr)
	if err := srv.ListenAndServe(c.addr); err != nil {
		fmt.Fprintf(c.stderr, "Server error: %v\n", err)
		return exitIOError
	}

	stats := srv.Profiler().Stats()
	fmt.Fprintf(c.stdout, "served %d runs (%d failed, %d instructions)\n", stats.Runs, stats.Errors, stats.Instructions)
	return exitOK
}

func (c *cli) runLSP() int {
	s := server.NewLSP(vm.New(vm.WithErrorOutput(io.Discard)))
	if err := s.Run(); err != nil {
		fmt.Fprintf(c.stderr, "LSP error: %v\n", err)
		return exitIOError
	}
	return exitOK
}

// isQuit reports whether a REPL line ends the session.
func isQuit(line string) bool {
	switch strings.TrimSpace(line) {
	case "exit", "quit", ":q":
		return true
	}
	return false
}
