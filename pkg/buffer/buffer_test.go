package buffer

import "testing"

func TestGrowCapacity(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 8},
		{1, 8},
		{7, 8},
		{8, 16},
		{16, 32},
		{256, 512},
	}
	for _, tt := range tests {
		if got := GrowCapacity(tt.in); got != tt.want {
			t.Errorf("GrowCapacity(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestZeroBufferIsEmpty(t *testing.T) {
	var b Buffer[int]
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
	if b.Cap() != 0 {
		t.Errorf("Cap() = %d, want 0", b.Cap())
	}
	if len(b.Slice()) != 0 {
		t.Errorf("Slice() has %d elements, want 0", len(b.Slice()))
	}
}

func TestAppendGrowthInvariant(t *testing.T) {
	var b Buffer[int]
	const n = 1000

	for i := 0; i < n; i++ {
		b.Append(i * 3)

		if b.Len() != i+1 {
			t.Fatalf("after %d appends Len() = %d", i+1, b.Len())
		}
		if b.Cap() < b.Len() {
			t.Fatalf("Cap() = %d < Len() = %d", b.Cap(), b.Len())
		}
		if !validCapacity(b.Cap()) {
			t.Fatalf("Cap() = %d is not in {8, 16, 32, ...}", b.Cap())
		}
	}

	for i := 0; i < n; i++ {
		if got := b.At(i); got != i*3 {
			t.Fatalf("At(%d) = %d, want %d", i, got, i*3)
		}
	}
	if b.Cap() != 1024 {
		t.Errorf("Cap() = %d, want 1024", b.Cap())
	}
}

func TestAppendFirstAllocation(t *testing.T) {
	var b Buffer[byte]
	b.Append(1)
	if b.Cap() != MinCapacity {
		t.Errorf("Cap() after first append = %d, want %d", b.Cap(), MinCapacity)
	}

	for i := 0; i < 7; i++ {
		b.Append(byte(i))
	}
	if b.Cap() != 8 {
		t.Errorf("Cap() with 8 elements = %d, want 8", b.Cap())
	}

	b.Append(9)
	if b.Cap() != 16 {
		t.Errorf("Cap() with 9 elements = %d, want 16", b.Cap())
	}
}

func TestSliceReflectsContents(t *testing.T) {
	var b Buffer[string]
	b.Append("a")
	b.Append("b")
	b.Append("c")

	s := b.Slice()
	if len(s) != 3 || s[0] != "a" || s[1] != "b" || s[2] != "c" {
		t.Errorf("Slice() = %v, want [a b c]", s)
	}
	if cap(s) != 3 {
		t.Errorf("cap(Slice()) = %d, want 3", cap(s))
	}
}

func TestFreeIdempotent(t *testing.T) {
	var b Buffer[float64]
	for i := 0; i < 20; i++ {
		b.Append(float64(i))
	}

	b.Free()
	if b.Len() != 0 || b.Cap() != 0 {
		t.Errorf("after Free: Len=%d Cap=%d, want 0 0", b.Len(), b.Cap())
	}

	b.Free()
	if b.Len() != 0 || b.Cap() != 0 {
		t.Errorf("after second Free: Len=%d Cap=%d, want 0 0", b.Len(), b.Cap())
	}

	// Reusable after Free
	b.Append(1.5)
	if b.Len() != 1 || b.At(0) != 1.5 {
		t.Errorf("append after Free: Len=%d At(0)=%v", b.Len(), b.At(0))
	}
}

func TestAtOutOfRangePanics(t *testing.T) {
	var b Buffer[int]
	b.Append(1)

	defer func() {
		if recover() == nil {
			t.Error("At(1) on 1-element buffer did not panic")
		}
	}()
	b.At(1)
}

func validCapacity(c int) bool {
	if c < MinCapacity {
		return false
	}
	for c > MinCapacity {
		if c%2 != 0 {
			return false
		}
		c /= 2
	}
	return c == MinCapacity
}
