package data

import (
	"sync"
)

// Record is the persistable description of an item.
type Record struct {
	Name    string `json:"name"`
	Offset  uint64 `json:"offset"`
	Size    int64  `json:"size"`
	Layer   int    `json:"layer"`
	Updated uint64 `json:"updated,omitempty"`
}

// Item is one logical storage object with reproducible content.
//
// Ranges marked as updated carry content of layer+1; all other ranges
// carry content of the item's base layer.
type Item struct {
	input  *Input
	name   string
	offset uint64
	size   int64

	mu       sync.Mutex
	layer    int
	updated  uint64
	position int64
}

func (it *Item) Name() string { return it.name }
func (it *Item) Size() int64  { return it.size }

func (it *Item) Position() int64 {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.position
}

func (it *Item) SetPosition(pos int64) {
	it.mu.Lock()
	it.position = pos
	it.mu.Unlock()
}

// Layer returns the base content layer.
func (it *Item) Layer() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.layer
}

// Updated reports whether any range carries next-layer content.
func (it *Item) Updated() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.updated != 0
}

// IsRangeUpdated reports whether range i carries next-layer content.
func (it *Item) IsRangeUpdated(i int) bool {
	if i < 0 || i >= MaxRanges {
		return false
	}
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.updated&(1<<uint(i)) != 0
}

// MarkUpdated records that the given ranges now hold next-layer content.
// Indexes outside the item are ignored.
func (it *Item) MarkUpdated(ranges ...int) {
	n := RangeCount(it.size)
	it.mu.Lock()
	defer it.mu.Unlock()
	for _, i := range ranges {
		if i >= 0 && i < n {
			it.updated |= 1 << uint(i)
		}
	}
}

// UpdatedSize returns the number of bytes covered by updated ranges.
func (it *Item) UpdatedSize() int64 {
	it.mu.Lock()
	mask := it.updated
	it.mu.Unlock()

	var total int64
	for i := 0; i < RangeCount(it.size); i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		end := RangeOffset(i + 1)
		if end > it.size {
			end = it.size
		}
		total += end - RangeOffset(i)
	}
	return total
}

// Commit folds a fully updated item into the next base layer. A partially
// updated item keeps its mask.
func (it *Item) Commit() {
	it.mu.Lock()
	defer it.mu.Unlock()
	full := uint64(1)<<uint(RangeCount(it.size)) - 1
	if it.updated != 0 && it.updated&full == full {
		it.layer++
		it.updated = 0
	}
}

// Record returns the persistable description of the item.
func (it *Item) Record() Record {
	it.mu.Lock()
	defer it.mu.Unlock()
	return Record{
		Name:    it.name,
		Offset:  it.offset,
		Size:    it.size,
		Layer:   it.layer,
		Updated: it.updated,
	}
}

// segment returns the ring holding the expected bytes at off and the
// number of bytes from off that share that ring and a contiguous run of it.
func (it *Item) segment(off int64, limit int) (ring []byte, start int, n int) {
	it.mu.Lock()
	layer, mask := it.layer, it.updated
	it.mu.Unlock()

	n = limit
	if mask != 0 {
		idx := RangeIndex(off)
		if idx < MaxRanges && mask&(1<<uint(idx)) != 0 {
			layer++
		}
		if left := RangeOffset(idx+1) - off; left < int64(n) {
			n = int(left)
		}
	}

	ring = it.input.layer(layer)
	start = int((it.offset + uint64(off)) % uint64(len(ring)))
	if left := len(ring) - start; left < n {
		n = left
	}
	return ring, start, n
}

// Fill writes the expected content at item offset off into p.
func (it *Item) Fill(p []byte, off int64) {
	for done := 0; done < len(p); {
		ring, start, n := it.segment(off+int64(done), len(p)-done)
		copy(p[done:done+n], ring[start:start+n])
		done += n
	}
}

// Verify compares p with the expected content at item offset off and
// returns a *CorruptionError for the first differing byte.
func (it *Item) Verify(p []byte, off int64) error {
	for done := 0; done < len(p); {
		ring, start, n := it.segment(off+int64(done), len(p)-done)
		want := ring[start : start+n]
		got := p[done : done+n]
		for i := range got {
			if got[i] != want[i] {
				return &CorruptionError{
					Offset:   off + int64(done+i),
					Expected: want[i],
					Actual:   got[i],
				}
			}
		}
		done += n
	}
	return nil
}
