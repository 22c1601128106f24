package queue

import "sync"

// Size-bucketed buffer pools for transfer chunks. A request is served from
// the smallest bucket that fits; requests above the largest bucket are
// allocated directly and dropped on PutBuffer.
//
// Uses the *[]byte pattern to avoid sync.Pool interface allocation overhead.

// Buffer size thresholds
const (
	size16k  = 16 * 1024
	size64k  = 64 * 1024
	size256k = 256 * 1024
	size1m   = 1024 * 1024
	size4m   = 4 * 1024 * 1024
)

// MaxPooledSize is the largest buffer the pool hands out from a bucket.
const MaxPooledSize = size4m

var buckets = [...]struct {
	size int
	pool *sync.Pool
}{
	{size16k, newBucket(size16k)},
	{size64k, newBucket(size64k)},
	{size256k, newBucket(size256k)},
	{size1m, newBucket(size1m)},
	{size4m, newBucket(size4m)},
}

func newBucket(size int) *sync.Pool {
	return &sync.Pool{New: func() any { b := make([]byte, size); return &b }}
}

// GetBuffer returns a buffer of exactly size bytes, backed by a pooled
// array when size <= MaxPooledSize. Caller must call PutBuffer when done.
func GetBuffer(size int) []byte {
	if size < 0 {
		size = 0
	}
	for _, b := range buckets {
		if size <= b.size {
			return (*b.pool.Get().(*[]byte))[:size]
		}
	}
	return make([]byte, size)
}

// PutBuffer returns a buffer to the pool.
// The buffer's capacity determines which bucket it goes to.
func PutBuffer(buf []byte) {
	c := cap(buf)
	buf = buf[:c]
	for _, b := range buckets {
		if c == b.size {
			b.pool.Put(&buf)
			return
		}
	}
	// non-standard capacity, let the GC have it
}
