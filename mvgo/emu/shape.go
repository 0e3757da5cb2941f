package emu

import "math/bits"

// ShapeChecker is the executor's window into the proof backend's shape
// database. The executor only obeys the verdict: when the projected tables of
// the current shard no longer fit any registered maximal shape, or the LDE
// estimate crosses the configured threshold, it closes the shard early.
type ShapeChecker interface {
	FitsShape(counts *LocalCounts) bool
	EstimateLDESize(counts *LocalCounts) uint64
}

// HeightShapeChecker approximates the shape database with one maximal padded
// height shared by all tables, and a per-row byte cost for the LDE estimate.
type HeightShapeChecker struct {
	// MaxLogHeight bounds every table at 2^MaxLogHeight rows.
	MaxLogHeight uint
	// RowBytes is the LDE cost of one row after blowup.
	RowBytes uint64
}

func NewHeightShapeChecker(maxLogHeight uint) *HeightShapeChecker {
	return &HeightShapeChecker{MaxLogHeight: maxLogHeight, RowBytes: 256}
}

func (c *HeightShapeChecker) FitsShape(counts *LocalCounts) bool {
	limit := uint64(1) << c.MaxLogHeight
	for _, n := range counts.Event {
		if n > limit {
			return false
		}
	}
	return counts.Syscalls <= limit && counts.LocalMem <= limit
}

func (c *HeightShapeChecker) EstimateLDESize(counts *LocalCounts) uint64 {
	var total uint64
	for _, n := range counts.Event {
		total += nextPowerOfTwo(n) * c.RowBytes
	}
	total += nextPowerOfTwo(counts.Syscalls) * c.RowBytes
	total += nextPowerOfTwo(counts.LocalMem) * c.RowBytes
	return total
}

func nextPowerOfTwo(n uint64) uint64 {
	if n <= 1 {
		return n
	}
	return 1 << bits.Len64(n-1)
}
