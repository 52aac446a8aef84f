// Package asm assembles loxvm chunks from a line-oriented text form.
//
//	; comment to end of line
//	constant 1.2
//	constant 3.4
//	add
//	return
//
// Every emitted byte records the text line it came from, so disassembly and
// runtime errors point back at the source.
package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/loxvm/pkg/bytecode"
)

// Error is an assembly failure at a source position. All Errors satisfy
// errors.Is(err, bytecode.ErrCompile).
type Error struct {
	Line int
	Col  int
	Msg  string
	Err  error // Underlying cause, nil for syntax errors
}

func (e *Error) Error() string {
	return fmt.Sprintf("[line %d:%d] %s", e.Line, e.Col, e.Msg)
}

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return bytecode.ErrCompile
}

// Option configures Assemble.
type Option func(*assembler)

// WithImplicitReturn appends OP_RETURN when the program does not already
// end with one.
func WithImplicitReturn() Option {
	return func(a *assembler) { a.implicitReturn = true }
}

var mnemonics = buildMnemonics()

var aliases = map[string]bytecode.Opcode{
	"const": bytecode.OpConstant,
	"sub":   bytecode.OpSubtract,
	"mul":   bytecode.OpMultiply,
	"div":   bytecode.OpDivide,
	"neg":   bytecode.OpNegate,
}

// Directives lists the supported assembler directives.
var Directives = []string{".byte"}

func buildMnemonics() map[string]bytecode.Opcode {
	m := make(map[string]bytecode.Opcode)
	for _, op := range bytecode.AllOpcodes() {
		name := strings.ToLower(op.String())
		m[name] = op
		m[strings.TrimPrefix(name, "op_")] = op
	}
	return m
}

// Lookup resolves a mnemonic or alias, case-insensitively.
func Lookup(word string) (bytecode.Opcode, bool) {
	w := strings.ToLower(word)
	if op, ok := mnemonics[w]; ok {
		return op, true
	}
	op, ok := aliases[w]
	return op, ok
}

// Mnemonics returns the short lowercase names of every opcode followed by
// the aliases, in a stable order.
func Mnemonics() []string {
	var names []string
	for _, op := range bytecode.AllOpcodes() {
		names = append(names, strings.ToLower(strings.TrimPrefix(op.String(), "OP_")))
	}
	for _, alias := range []string{"const", "sub", "mul", "div", "neg"} {
		names = append(names, alias)
	}
	return names
}

type assembler struct {
	implicitReturn bool

	tokens []Token
	pos    int
	chunk  *bytecode.Chunk
	lastOp bytecode.Opcode
	wrote  bool
}

// Assemble translates src into a chunk. The first error stops assembly.
func Assemble(src string, opts ...Option) (*bytecode.Chunk, error) {
	a := &assembler{chunk: bytecode.NewChunk()}
	for _, opt := range opts {
		opt(a)
	}

	for _, tok := range Tokenize(src) {
		if tok.Kind != TokenComment {
			a.tokens = append(a.tokens, tok)
		}
	}

	for a.pos < len(a.tokens) {
		if err := a.statement(); err != nil {
			return nil, err
		}
	}

	if a.implicitReturn && (!a.wrote || a.lastOp != bytecode.OpReturn) {
		line := 1
		if n := len(a.tokens); n > 0 {
			line = a.tokens[n-1].Line
		}
		a.chunk.WriteOp(bytecode.OpReturn, line)
	}

	return a.chunk, nil
}

func (a *assembler) next() Token {
	tok := a.tokens[a.pos]
	a.pos++
	return tok
}

// operand consumes the token after tok, which must sit on the same line.
func (a *assembler) operand(tok Token, what string) (Token, error) {
	if a.pos >= len(a.tokens) || a.tokens[a.pos].Line != tok.Line {
		return Token{}, &Error{Line: tok.Line, Col: tok.End(), Msg: fmt.Sprintf("%s expects %s", tok.Text, what)}
	}
	return a.next(), nil
}

func (a *assembler) statement() error {
	tok := a.next()

	switch tok.Kind {
	case TokenDirective:
		return a.directive(tok)
	case TokenNumber:
		return &Error{Line: tok.Line, Col: tok.Col, Msg: fmt.Sprintf("unexpected number %s", tok.Text)}
	}

	op, ok := Lookup(tok.Text)
	if !ok {
		return &Error{Line: tok.Line, Col: tok.Col, Msg: fmt.Sprintf("unknown mnemonic %q", tok.Text)}
	}

	if op != bytecode.OpConstant {
		a.chunk.WriteOp(op, tok.Line)
		a.lastOp, a.wrote = op, true
		return nil
	}

	arg, err := a.operand(tok, "a number")
	if err != nil {
		return err
	}
	v, err := strconv.ParseFloat(arg.Text, 64)
	if err != nil || arg.Kind != TokenNumber {
		return &Error{Line: arg.Line, Col: arg.Col, Msg: fmt.Sprintf("invalid number %q", arg.Text)}
	}
	if _, err := a.chunk.EmitConstant(bytecode.Value(v), tok.Line); err != nil {
		return &Error{Line: tok.Line, Col: tok.Col, Msg: err.Error(), Err: err}
	}
	a.lastOp, a.wrote = op, true
	return nil
}

func (a *assembler) directive(tok Token) error {
	switch strings.ToLower(tok.Text) {
	case ".byte":
		arg, err := a.operand(tok, "a byte value")
		if err != nil {
			return err
		}
		n, err := strconv.ParseUint(arg.Text, 0, 8)
		if err != nil {
			return &Error{Line: arg.Line, Col: arg.Col, Msg: fmt.Sprintf("invalid byte %q", arg.Text)}
		}
		a.chunk.Write(byte(n), tok.Line)
		// A raw byte never counts as a trailing return
		a.lastOp, a.wrote = bytecode.Opcode(0xFF), true
		return nil
	default:
		return &Error{Line: tok.Line, Col: tok.Col, Msg: fmt.Sprintf("unknown directive %s", tok.Text)}
	}
}
