package bytecode

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"github.com/chazu/loxvm/pkg/buffer"
)

// MaxConstants is the number of constants addressable by the one-byte
// operand of OpConstant.
const MaxConstants = 256

// Value is the only runtime value representation: a 64-bit float.
type Value float64

// String formats the value in the shortest %g form that round-trips.
func (v Value) String() string {
	return strconv.FormatFloat(float64(v), 'g', -1, 64)
}

// MarshalJSON writes finite values as JSON numbers and the non-finite ones
// as the strings "+Inf", "-Inf" and "NaN", which encoding/json rejects as
// numbers.
func (v Value) MarshalJSON() ([]byte, error) {
	f := float64(v)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.AppendQuote(nil, v.String()), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// UnmarshalJSON accepts a JSON number or one of the strings written by
// MarshalJSON. A JSON null leaves v unchanged.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	text := string(data)
	if len(data) > 0 && data[0] == '"' {
		unquoted, err := strconv.Unquote(text)
		if err != nil {
			return fmt.Errorf("bytecode: invalid value %s: %w", text, err)
		}
		switch unquoted {
		case "+Inf", "Inf":
			*v = Value(math.Inf(1))
		case "-Inf":
			*v = Value(math.Inf(-1))
		case "NaN":
			*v = Value(math.NaN())
		default:
			return fmt.Errorf("bytecode: invalid value %s", text)
		}
		return nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("bytecode: invalid value %s: %w", text, err)
	}
	*v = Value(f)
	return nil
}

// ConstantPool is the append-only table of literals referenced by
// OpConstant. Indices are assigned in append order and never reused.
type ConstantPool struct {
	values buffer.Buffer[Value]
}

// Add appends v and returns its index.
func (p *ConstantPool) Add(v Value) int {
	idx := p.values.Len()
	p.values.Append(v)
	return idx
}

// At returns the constant at index i.
// The second result is false if i is out of range.
func (p *ConstantPool) At(i int) (Value, bool) {
	if i < 0 || i >= p.values.Len() {
		return 0, false
	}
	return p.values.At(i), true
}

// Len returns the number of constants.
func (p *ConstantPool) Len() int {
	return p.values.Len()
}

// Cap returns the allocated capacity of the pool.
func (p *ConstantPool) Cap() int {
	return p.values.Cap()
}

// Values returns the constants in index order. The result is read-only.
func (p *ConstantPool) Values() []Value {
	return p.values.Slice()
}

// Free releases the pool's storage.
func (p *ConstantPool) Free() {
	p.values.Free()
}
