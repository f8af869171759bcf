// Package codec defines the on-disk binary layout of the meta page and
// graph nodes, and the safe accessors used to read them back.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// MetaMagic identifies a page 0 as an HNSW meta page.
	MetaMagic uint32 = 0x48534E57
	// MetaVersion is the current binary format version.
	MetaVersion uint32 = 1

	// MaxLevel bounds a node's level, spec §3: 0 <= level <= 15.
	MaxLevel = 16

	// NoPage is the sentinel page number meaning "no neighbor here" / "no entry point".
	NoPage uint32 = 0xFFFFFFFF

	// MetaPageSize is the fixed encoded size of a meta page record.
	MetaPageSize = 40

	// nodeHeaderSize is the fixed portion of a node record before the
	// vector payload: HeapTID(8) + Level(4) + Dim(2) + NeighborCount[16](32) + Flags(2).
	nodeHeaderSize = 8 + 4 + 2 + 2*MaxLevel + 2

	// FlagTombstone marks a node as logically deleted: its edges have
	// been unlinked from every neighbor, but the page itself is left in
	// place until VacuumCleanup reclaims it (spec §4.4.5 / §9 supplemented
	// bulk-delete behavior).
	FlagTombstone int16 = 1 << 0
)

var (
	// ErrCorrupt is returned for hard corruption: a meta page whose magic
	// doesn't match, or a size computation that would overflow.
	ErrCorrupt = errors.New("hnsw: data corrupted")
)

// Meta mirrors the meta page record defined in spec §6.
type Meta struct {
	Magic          uint32
	Version        uint32
	EntryPoint     uint32 // page number, or NoPage
	EntryLevel     int32  // -1 when EntryPoint == NoPage
	MaxLevel       int32
	M              int16
	EfConstruction int16
	EfSearch       int16
	Dim            int16 // 0 until the first vector is inserted, then fixed
	ML             float32
	InsertedCount  int64
}

// EncodeMeta writes m into a MetaPageSize buffer using the wire layout
// from spec §6, little-endian throughout.
func EncodeMeta(m *Meta) []byte {
	buf := make([]byte, MetaPageSize)
	binary.LittleEndian.PutUint32(buf[0:4], MetaMagic)
	binary.LittleEndian.PutUint32(buf[4:8], MetaVersion)
	binary.LittleEndian.PutUint32(buf[8:12], m.EntryPoint)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(m.EntryLevel))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(m.MaxLevel))
	binary.LittleEndian.PutUint16(buf[20:22], uint16(m.M))
	binary.LittleEndian.PutUint16(buf[22:24], uint16(m.EfConstruction))
	binary.LittleEndian.PutUint16(buf[24:26], uint16(m.EfSearch))
	binary.LittleEndian.PutUint16(buf[26:28], uint16(m.Dim))
	binary.LittleEndian.PutUint32(buf[28:32], math.Float32bits(m.ML))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(m.InsertedCount))
	return buf
}

// DecodeMeta parses a meta page previously written by EncodeMeta. A magic
// mismatch is hard corruption (spec §7): the caller must release all
// guards before surfacing ErrCorrupt.
func DecodeMeta(buf []byte) (*Meta, error) {
	if len(buf) < MetaPageSize {
		return nil, fmt.Errorf("%w: meta page truncated (%d bytes)", ErrCorrupt, len(buf))
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != MetaMagic {
		return nil, fmt.Errorf("%w: meta magic mismatch (got %#x)", ErrCorrupt, magic)
	}
	return &Meta{
		Magic:          magic,
		Version:        binary.LittleEndian.Uint32(buf[4:8]),
		EntryPoint:     binary.LittleEndian.Uint32(buf[8:12]),
		EntryLevel:     int32(binary.LittleEndian.Uint32(buf[12:16])),
		MaxLevel:       int32(binary.LittleEndian.Uint32(buf[16:20])),
		M:              int16(binary.LittleEndian.Uint16(buf[20:22])),
		EfConstruction: int16(binary.LittleEndian.Uint16(buf[22:24])),
		EfSearch:       int16(binary.LittleEndian.Uint16(buf[24:26])),
		Dim:            int16(binary.LittleEndian.Uint16(buf[26:28])),
		ML:             math.Float32frombits(binary.LittleEndian.Uint32(buf[28:32])),
		InsertedCount:  int64(binary.LittleEndian.Uint64(buf[32:40])),
	}, nil
}

// Node mirrors the node record defined in spec §6: a fixed header, a
// dense float32 vector, and a per-level neighbor table sized 2*M.
type Node struct {
	HeapTID        uint64
	Level          int32
	Dim            int16
	NeighborCount  [MaxLevel]int16
	Flags          int16
	Vector         []float32
	Neighbors      [][]uint32 // Neighbors[level] has len 2*M; entries are page numbers or NoPage
}

// IsTombstone reports whether n has been logically deleted.
func (n *Node) IsTombstone() bool { return n.Flags&FlagTombstone != 0 }

// NodeSize computes the encoded size of a node with the given dimension,
// level, and M, performing every multiplication/addition with an
// explicit overflow check. It never returns a truncated value: on
// overflow it returns (0, ErrCorrupt) per spec §4.2/§7.
func NodeSize(dim int, level int, m int) (int, error) {
	if dim <= 0 || dim > 32767 {
		return 0, fmt.Errorf("%w: dimension %d out of range", ErrCorrupt, dim)
	}
	if level < 0 || level >= MaxLevel {
		return 0, fmt.Errorf("%w: level %d out of range", ErrCorrupt, level)
	}
	if m < 2 || m > 128 {
		return 0, fmt.Errorf("%w: m %d out of range", ErrCorrupt, m)
	}

	const maxSafe = math.MaxInt32 / 2

	vectorBytes, err := checkedMul(dim, 4)
	if err != nil {
		return 0, err
	}

	slotsPerLevel, err := checkedMul(2, m)
	if err != nil {
		return 0, err
	}
	totalSlots, err := checkedMul(level+1, slotsPerLevel)
	if err != nil {
		return 0, err
	}
	neighborBytes, err := checkedMul(totalSlots, 4)
	if err != nil {
		return 0, err
	}

	size, err := checkedAdd(nodeHeaderSize, vectorBytes)
	if err != nil {
		return 0, err
	}
	size, err = checkedAdd(size, neighborBytes)
	if err != nil {
		return 0, err
	}

	if size > maxSafe {
		return 0, fmt.Errorf("%w: node size %d exceeds safe bound", ErrCorrupt, size)
	}
	return align4(size), nil
}

func checkedMul(a, b int) (int, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	r := a * b
	if r/a != b {
		return 0, fmt.Errorf("%w: overflow computing %d*%d", ErrCorrupt, a, b)
	}
	return r, nil
}

func checkedAdd(a, b int) (int, error) {
	r := a + b
	if r < a || r < b {
		return 0, fmt.Errorf("%w: overflow computing %d+%d", ErrCorrupt, a, b)
	}
	return r, nil
}

func align4(n int) int {
	if n%4 == 0 {
		return n
	}
	return n + (4 - n%4)
}

// EncodeNode serializes n into a byte slice sized by NodeSize(len(n.Vector), int(n.Level), m).
func EncodeNode(n *Node, m int) ([]byte, error) {
	size, err := NodeSize(len(n.Vector), int(n.Level), m)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)

	binary.LittleEndian.PutUint64(buf[0:8], n.HeapTID)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(n.Level))
	binary.LittleEndian.PutUint16(buf[12:14], uint16(n.Dim))
	off := 14
	for l := 0; l < MaxLevel; l++ {
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(n.NeighborCount[l]))
		off += 2
	}
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(n.Flags))
	off = nodeHeaderSize

	for _, v := range n.Vector {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
		off += 4
	}

	slotsPerLevel := 2 * m
	for l := 0; l <= int(n.Level); l++ {
		row := n.Neighbors[l]
		for i := 0; i < slotsPerLevel; i++ {
			var p uint32 = NoPage
			if i < len(row) {
				p = row[i]
			}
			binary.LittleEndian.PutUint32(buf[off:off+4], p)
			off += 4
		}
	}
	return buf, nil
}

// DecodeNode parses a node record previously written by EncodeNode. m
// must be known ahead of time (from the index meta page) because the
// record carries no independent length prefix for the neighbor table
// beyond level+1; dim is read from the record's own header.
func DecodeNode(buf []byte, m int) (*Node, error) {
	if len(buf) < nodeHeaderSize {
		return nil, fmt.Errorf("%w: node record truncated", ErrCorrupt)
	}
	n := &Node{
		HeapTID: binary.LittleEndian.Uint64(buf[0:8]),
		Level:   int32(binary.LittleEndian.Uint32(buf[8:12])),
		Dim:     int16(binary.LittleEndian.Uint16(buf[12:14])),
	}
	off := 14
	for l := 0; l < MaxLevel; l++ {
		n.NeighborCount[l] = int16(binary.LittleEndian.Uint16(buf[off : off+2]))
		off += 2
	}
	n.Flags = int16(binary.LittleEndian.Uint16(buf[off : off+2]))
	off = nodeHeaderSize

	if ok := ValidateLevel(int(n.Level)); !ok {
		return nil, fmt.Errorf("%w: node level %d out of range", ErrCorrupt, n.Level)
	}

	dim := int(n.Dim)
	if dim <= 0 || dim > 32767 {
		return nil, fmt.Errorf("%w: node dimension %d out of range", ErrCorrupt, dim)
	}

	size, err := NodeSize(dim, int(n.Level), m)
	if err != nil {
		return nil, err
	}
	if len(buf) < size {
		return nil, fmt.Errorf("%w: node record shorter than computed size", ErrCorrupt)
	}

	n.Vector = make([]float32, dim)
	for i := 0; i < dim; i++ {
		n.Vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
	}

	slotsPerLevel := 2 * m
	n.Neighbors = make([][]uint32, n.Level+1)
	for l := 0; l <= int(n.Level); l++ {
		row := make([]uint32, slotsPerLevel)
		for i := 0; i < slotsPerLevel; i++ {
			row[i] = binary.LittleEndian.Uint32(buf[off : off+4])
			off += 4
		}
		n.Neighbors[l] = row
	}
	return n, nil
}

// ValidateLevel reports whether x is a legal node level (spec §4.2).
func ValidateLevel(x int) bool {
	return x >= 0 && x < MaxLevel
}

// ValidateBlock reports whether b is a legal, in-range, non-sentinel page number.
func ValidateBlock(b uint32, relSize uint32) bool {
	return b != NoPage && b < relSize
}

// ClampNeighborCount clamps n to [0, 2m], reporting whether clamping was
// necessary so the caller can log a warning (spec §4.2, soft corruption).
func ClampNeighborCount(n int16, m int) (int16, bool) {
	max := int16(2 * m)
	if n < 0 {
		return 0, true
	}
	if n > max {
		return max, true
	}
	return n, false
}
