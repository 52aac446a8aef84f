package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/chazu/loxvm/asm"
	"github.com/chazu/loxvm/pkg/bytecode"
	"github.com/chazu/loxvm/vm"
)

// interactive reports whether the REPL's input is a terminal.
func (c *cli) interactive() bool {
	f, ok := c.stdin.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// repl assembles and runs one line at a time. The exit status reflects the
// last line entered, as in a script.
func (c *cli) repl() int {
	prompt := c.interactive()
	if prompt {
		fmt.Fprintln(c.stdout, "loxvm REPL (type 'exit' to quit, ':help' for commands)")
	}

	c.profiler = vm.NewProfiler()
	machine := c.newVM()
	scanner := bufio.NewScanner(c.stdin)
	status := exitOK

	for {
		if prompt {
			fmt.Fprint(c.stdout, "> ")
		}
		if !scanner.Scan() {
			break
		}

		line := scanner.Text()
		if isQuit(line) {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(line), ":") {
			c.handleREPLCommand(machine, strings.TrimSpace(line))
			continue
		}

		chunk, err := asm.Assemble(line, asm.WithImplicitReturn())
		if err != nil {
			fmt.Fprintln(c.stderr, err)
			status = exitCompileError
			continue
		}
		if c.disasm {
			fmt.Fprint(c.stdout, chunk.Disassemble("repl"))
		}
		status, _ = c.interpret(machine, chunk)
	}

	if prompt {
		fmt.Fprintln(c.stdout)
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(c.stderr, "Error reading input: %v\n", err)
		return exitIOError
	}
	return status
}

// handleREPLCommand handles REPL meta-commands
func (c *cli) handleREPLCommand(machine *vm.VM, cmd string) {
	switch cmd {
	case ":help", ":h", ":?":
		fmt.Fprintln(c.stdout, "REPL Commands:")
		fmt.Fprintln(c.stdout, "  :help, :h, :?     Show this help")
		fmt.Fprintln(c.stdout, "  :trace            Toggle execution tracing")
		fmt.Fprintln(c.stdout, "  :disasm           Toggle printing each line's disassembly")
		fmt.Fprintln(c.stdout, "  :ops              List mnemonics")
		fmt.Fprintln(c.stdout, "  :stats            Show instruction counts for this session")
		fmt.Fprintln(c.stdout, "  exit, quit, :q    Exit REPL")
	case ":trace":
		c.trace = !c.trace
		if c.trace {
			machine.SetTrace(c.stdout)
		} else {
			machine.SetTrace(nil)
		}
		fmt.Fprintf(c.stdout, "trace %s\n", onOff(c.trace))
	case ":disasm":
		c.disasm = !c.disasm
		fmt.Fprintf(c.stdout, "disasm %s\n", onOff(c.disasm))
	case ":ops":
		fmt.Fprintln(c.stdout, strings.Join(asm.Mnemonics(), " "))
	case ":stats":
		c.printStats()
	default:
		fmt.Fprintf(c.stdout, "Unknown command: %s (type :help for commands)\n", cmd)
	}
}

// printStats lists the session's runs and every executed opcode, most
// frequent first.
func (c *cli) printStats() {
	stats := c.profiler.Stats()
	fmt.Fprintf(c.stdout, "runs %d  errors %d  instructions %d\n", stats.Runs, stats.Errors, stats.Instructions)
	for _, op := range c.profiler.TopOpcodes(len(bytecode.AllOpcodes())) {
		fmt.Fprintf(c.stdout, "  %-16s %d\n", op, c.profiler.Count(op))
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
