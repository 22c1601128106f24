// Package data generates reproducible item content and verifies it.
//
// Content is drawn from a seeded ring buffer, one ring per layer. An
// item starts at a ring offset derived from its name, so two items with
// the same name, size and layer always carry identical bytes.
package data

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultInputSize is the ring size used when none is given (1MB).
const DefaultInputSize = 1 << 20

// Input is the shared content source for a set of items.
type Input struct {
	seed uint64
	size int

	mu     sync.RWMutex
	layers map[int][]byte
}

// NewInput creates a content source. A non-positive size selects
// DefaultInputSize; the size is rounded up to a multiple of 8.
func NewInput(seed uint64, size int) *Input {
	if size <= 0 {
		size = DefaultInputSize
	}
	size = (size + 7) &^ 7
	return &Input{
		seed:   seed,
		size:   size,
		layers: make(map[int][]byte),
	}
}

// Seed returns the input seed.
func (in *Input) Seed() uint64 { return in.seed }

// Size returns the ring size in bytes.
func (in *Input) Size() int { return in.size }

// layer returns the ring for layer n, generating it on first use.
func (in *Input) layer(n int) []byte {
	in.mu.RLock()
	ring, ok := in.layers[n]
	in.mu.RUnlock()
	if ok {
		return ring
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if ring, ok = in.layers[n]; ok {
		return ring
	}
	ring = generate(layerSeed(in.seed, n), in.size)
	in.layers[n] = ring
	return ring
}

func layerSeed(seed uint64, layer int) uint64 {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[:8], seed)
	binary.LittleEndian.PutUint64(b[8:], uint64(layer))
	s := xxhash.Sum64(b[:])
	if s == 0 {
		s = 0x9e3779b97f4a7c15
	}
	return s
}

// generate fills size bytes with xorshift64* output.
func generate(x uint64, size int) []byte {
	ring := make([]byte, size)
	for i := 0; i+8 <= size; i += 8 {
		x ^= x >> 12
		x ^= x << 25
		x ^= x >> 27
		binary.LittleEndian.PutUint64(ring[i:], x*2685821657736338717)
	}
	return ring
}

// NewItem creates a fresh (layer 0, no updated ranges) item.
func (in *Input) NewItem(name string, size int64) *Item {
	return &Item{
		input:  in,
		name:   name,
		offset: xxhash.Sum64String(name),
		size:   size,
	}
}

// Restore rebuilds an item from a persisted record.
func (in *Input) Restore(r Record) *Item {
	it := &Item{
		input:   in,
		name:    r.Name,
		offset:  r.Offset,
		size:    r.Size,
		layer:   r.Layer,
		updated: r.Updated,
	}
	return it
}
