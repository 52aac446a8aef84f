package asm

import "testing"

func TestTokenize(t *testing.T) {
	tokens := Tokenize("  constant -1.5 ; note\r\n.byte 7")

	want := []Token{
		{TokenWord, "constant", 1, 3},
		{TokenNumber, "-1.5", 1, 12},
		{TokenComment, "; note", 1, 17},
		{TokenDirective, ".byte", 2, 1},
		{TokenNumber, "7", 2, 7},
	}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(tokens), len(want), tokens)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token %d = %+v, want %+v", i, tokens[i], want[i])
		}
	}
}

func TestTokenAt(t *testing.T) {
	tokens := Tokenize("constant 1\nadd ; sum")

	tests := []struct {
		line, col int
		want      string
		ok        bool
	}{
		{1, 1, "constant", true},
		{1, 8, "constant", true},
		{1, 9, "", false},
		{1, 10, "1", true},
		{2, 2, "add", true},
		{2, 7, "", false},
		{3, 1, "", false},
	}

	for _, tt := range tests {
		tok, ok := TokenAt(tokens, tt.line, tt.col)
		if ok != tt.ok || tok.Text != tt.want {
			t.Errorf("TokenAt(%d, %d) = %q, %v, want %q, %v", tt.line, tt.col, tok.Text, ok, tt.want, tt.ok)
		}
	}
}
