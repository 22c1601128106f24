package data

import "math/bits"

// Items are split into ranges of exponentially growing length: range i
// covers [2^i - 1, 2^(i+1) - 1). Updates are tracked per range, so an
// updated item may hold content written by different layers.

// MaxRanges is the number of ranges addressable by an updated-range mask.
const MaxRanges = 64

// RangeOffset returns the item offset where range i starts.
func RangeOffset(i int) int64 {
	if i <= 0 {
		return 0
	}
	if i >= 63 {
		return 1<<63 - 1
	}
	return int64(1)<<uint(i) - 1
}

// RangeLength returns the length of range i.
func RangeLength(i int) int64 {
	return RangeOffset(i+1) - RangeOffset(i)
}

// RangeCount returns how many ranges are needed to cover size bytes.
func RangeCount(size int64) int {
	if size <= 0 {
		return 0
	}
	return bits.Len64(uint64(size))
}

// RangeIndex returns the index of the range containing offset off.
func RangeIndex(off int64) int {
	if off < 0 {
		return 0
	}
	return bits.Len64(uint64(off)+1) - 1
}
