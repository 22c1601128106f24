package aio

import "github.com/ehrlich-b/go-aio/internal/data"

// Item is the storage object an operation transfers. Implementations
// produce the expected bytes for writes and check received bytes on reads.
type Item interface {
	Name() string
	Size() int64

	// Position mirrors the operation's transfer progress.
	Position() int64
	SetPosition(pos int64)

	// Fill writes the expected content at item offset off into p.
	Fill(p []byte, off int64)

	// Verify checks p against the expected content at item offset off.
	// A content mismatch must be reported as a *CorruptionError.
	Verify(p []byte, off int64) error

	// Updated reports whether modification ranges are recorded, in which
	// case reads are verified one range at a time.
	Updated() bool
}

// SizeError reports an end of stream before the item size was reached.
type SizeError = data.SizeError

// CorruptionError reports the first byte that differs from the expected
// content.
type CorruptionError = data.CorruptionError

// RangeOffset returns the item offset where range i starts.
func RangeOffset(i int) int64 { return data.RangeOffset(i) }

// RangeIndex returns the index of the range containing offset off.
func RangeIndex(off int64) int { return data.RangeIndex(off) }

var _ Item = (*data.Item)(nil)
