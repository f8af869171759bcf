package codec

import (
	"testing"
)

func TestEncodeDecodeMetaRoundTrip(t *testing.T) {
	m := &Meta{
		EntryPoint:     7,
		EntryLevel:     3,
		MaxLevel:       3,
		M:              16,
		EfConstruction: 200,
		EfSearch:       64,
		Dim:            768,
		ML:             0.36,
		InsertedCount:  42,
	}

	buf := EncodeMeta(m)
	if len(buf) != MetaPageSize {
		t.Fatalf("encoded meta size = %d, want %d", len(buf), MetaPageSize)
	}

	got, err := DecodeMeta(buf)
	if err != nil {
		t.Fatalf("DecodeMeta: %v", err)
	}
	if got.EntryPoint != m.EntryPoint || got.EntryLevel != m.EntryLevel ||
		got.M != m.M || got.EfConstruction != m.EfConstruction ||
		got.EfSearch != m.EfSearch || got.Dim != m.Dim || got.InsertedCount != m.InsertedCount {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, m)
	}
	if got.ML < 0.3599 || got.ML > 0.3601 {
		t.Fatalf("ml round-trip = %v", got.ML)
	}
}

func TestDecodeMetaBadMagic(t *testing.T) {
	buf := EncodeMeta(&Meta{})
	buf[0] ^= 0xFF
	if _, err := DecodeMeta(buf); err == nil {
		t.Fatal("expected magic mismatch error")
	}
}

func TestEncodeDecodeNodeRoundTrip(t *testing.T) {
	const m = 16
	n := &Node{
		HeapTID: 123456,
		Level:   2,
		Dim:     4,
		Vector:  []float32{1, 2, 3, 4},
		Neighbors: [][]uint32{
			{1, 2, NoPage},
			{3},
			{},
		},
	}
	n.NeighborCount[0] = 2
	n.NeighborCount[1] = 1

	buf, err := EncodeNode(n, m)
	if err != nil {
		t.Fatalf("EncodeNode: %v", err)
	}

	got, err := DecodeNode(buf, m)
	if err != nil {
		t.Fatalf("DecodeNode: %v", err)
	}
	if got.HeapTID != n.HeapTID || got.Level != n.Level || got.Dim != n.Dim {
		t.Fatalf("header mismatch: got %+v", got)
	}
	for i, v := range n.Vector {
		if got.Vector[i] != v {
			t.Fatalf("vector[%d] = %v, want %v", i, got.Vector[i], v)
		}
	}
	if got.Neighbors[0][0] != 1 || got.Neighbors[0][1] != 2 || got.Neighbors[0][2] != NoPage {
		t.Fatalf("neighbors[0] mismatch: %v", got.Neighbors[0])
	}
}

func TestNodeSizeMaxLegalInputsNeverPanicOrTruncate(t *testing.T) {
	size, err := NodeSize(32767, 15, 128)
	if err != nil {
		t.Fatalf("NodeSize at max legal bounds should not overflow: %v", err)
	}
	if size <= 0 {
		t.Fatalf("expected a positive finite size, got %d", size)
	}
}

func TestCheckedArithmeticDetectsOverflow(t *testing.T) {
	if _, err := checkedMul(1<<40, 1<<40); err == nil {
		t.Fatal("expected overflow error from checkedMul")
	}
	if _, err := checkedAdd(1<<62, 1<<62); err == nil {
		t.Fatal("expected overflow error from checkedAdd")
	}
}

func TestNodeSizeRejectsOutOfRangeInputs(t *testing.T) {
	cases := []struct {
		dim, level, m int
	}{
		{0, 0, 16},
		{32768, 0, 16},
		{4, 16, 16},
		{4, -1, 16},
		{4, 0, 1},
		{4, 0, 129},
	}
	for _, c := range cases {
		if _, err := NodeSize(c.dim, c.level, c.m); err == nil {
			t.Fatalf("NodeSize(%d,%d,%d): expected error", c.dim, c.level, c.m)
		}
	}
}

func TestClampNeighborCount(t *testing.T) {
	if v, clamped := ClampNeighborCount(5, 16); v != 5 || clamped {
		t.Fatalf("expected no clamp for in-range value, got %d clamped=%v", v, clamped)
	}
	if v, clamped := ClampNeighborCount(100, 16); v != 32 || !clamped {
		t.Fatalf("expected clamp to 2m=32, got %d clamped=%v", v, clamped)
	}
	if v, clamped := ClampNeighborCount(-1, 16); v != 0 || !clamped {
		t.Fatalf("expected clamp to 0, got %d clamped=%v", v, clamped)
	}
}

func TestValidateBlock(t *testing.T) {
	if !ValidateBlock(5, 10) {
		t.Fatal("expected 5 < 10 to validate")
	}
	if ValidateBlock(NoPage, 10) {
		t.Fatal("sentinel must not validate")
	}
	if ValidateBlock(10, 10) {
		t.Fatal("block equal to relation size must not validate")
	}
}
