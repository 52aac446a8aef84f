package bytecode

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// WireChunk is the transport form of a Chunk. Code and Lines are parallel;
// a WireChunk whose lengths disagree is rejected by ToChunk.
type WireChunk struct {
	Code      []byte    `cbor:"1,keyasint" json:"code"`
	Lines     []int     `cbor:"2,keyasint" json:"lines"`
	Constants []Value   `cbor:"3,keyasint,omitempty" json:"constants,omitempty"`
}

// cborEncMode uses canonical mode so equal chunks encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Wire returns the transport form of c. The slices are copies.
func (c *Chunk) Wire() *WireChunk {
	w := &WireChunk{
		Code:  append([]byte(nil), c.Code()...),
		Lines: append([]int(nil), c.Lines()...),
	}
	if c.constants.Len() > 0 {
		w.Constants = append([]Value(nil), c.constants.Values()...)
	}
	return w
}

// ToChunk rebuilds a Chunk from its transport form.
func (w *WireChunk) ToChunk() (*Chunk, error) {
	if len(w.Code) != len(w.Lines) {
		return nil, fmt.Errorf("bytecode: wire chunk has %d code bytes but %d lines", len(w.Code), len(w.Lines))
	}
	c := NewChunk()
	for i, b := range w.Code {
		c.Write(b, w.Lines[i])
	}
	for _, v := range w.Constants {
		c.AddConstant(v)
	}
	return c, nil
}

// MarshalChunk serializes a Chunk to CBOR bytes.
func MarshalChunk(c *Chunk) ([]byte, error) {
	return cborEncMode.Marshal(c.Wire())
}

// UnmarshalChunk deserializes a Chunk from CBOR bytes.
func UnmarshalChunk(data []byte) (*Chunk, error) {
	var w WireChunk
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal chunk: %w", err)
	}
	return w.ToChunk()
}
