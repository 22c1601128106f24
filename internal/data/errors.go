package data

import "fmt"

// SizeError reports that fewer bytes were available than the item size.
type SizeError struct {
	Expected int64
	Actual   int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("data size mismatch: expected %d bytes, got %d", e.Expected, e.Actual)
}

// CorruptionError reports the first byte that differs from the expected
// content.
type CorruptionError struct {
	Offset   int64
	Expected byte
	Actual   byte
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("data corrupted at offset %d: expected 0x%02x, got 0x%02x",
		e.Offset, e.Expected, e.Actual)
}

// Range returns the index of the range holding the corrupted byte.
func (e *CorruptionError) Range() int {
	return RangeIndex(e.Offset)
}
