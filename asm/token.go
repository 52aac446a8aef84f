package asm

import "strings"

// TokenKind classifies a token.
type TokenKind int

const (
	TokenWord      TokenKind = iota // Mnemonic or unrecognized identifier
	TokenNumber                     // Numeric literal, optionally signed
	TokenDirective                  // Word starting with '.', e.g. .byte
	TokenComment                    // ';' to end of line
)

func (k TokenKind) String() string {
	switch k {
	case TokenWord:
		return "word"
	case TokenNumber:
		return "number"
	case TokenDirective:
		return "directive"
	case TokenComment:
		return "comment"
	default:
		return "unknown"
	}
}

// Token is a lexeme with its 1-based position in the source.
type Token struct {
	Kind TokenKind
	Text string
	Line int
	Col  int
}

// End returns the column just past the token.
func (t Token) End() int {
	return t.Col + len(t.Text)
}

// Tokenize splits src into tokens. It never fails; the assembler decides
// what is malformed. Columns count bytes.
func Tokenize(src string) []Token {
	var tokens []Token

	for i, line := range strings.Split(src, "\n") {
		lineNo := i + 1
		line = strings.TrimSuffix(line, "\r")

		pos := 0
		for pos < len(line) {
			ch := line[pos]
			switch {
			case ch == ' ' || ch == '\t':
				pos++

			case ch == ';':
				tokens = append(tokens, Token{TokenComment, line[pos:], lineNo, pos + 1})
				pos = len(line)

			default:
				start := pos
				for pos < len(line) && !isDelimiter(line[pos]) {
					pos++
				}
				text := line[start:pos]
				tokens = append(tokens, Token{classify(text), text, lineNo, start + 1})
			}
		}
	}

	return tokens
}

// TokenAt returns the non-comment token covering the 1-based line and
// column, if any.
func TokenAt(tokens []Token, line, col int) (Token, bool) {
	for _, tok := range tokens {
		if tok.Line == line && tok.Kind != TokenComment && col >= tok.Col && col < tok.End() {
			return tok, true
		}
	}
	return Token{}, false
}

func isDelimiter(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == ';'
}

func classify(text string) TokenKind {
	switch c := text[0]; {
	case c == '.' && len(text) > 1 && !isDigit(text[1]):
		return TokenDirective
	case isDigit(c) || c == '.':
		return TokenNumber
	case (c == '-' || c == '+') && len(text) > 1 && (isDigit(text[1]) || text[1] == '.'):
		return TokenNumber
	default:
		return TokenWord
	}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
