package aio

import "sync"

// channelEntry holds the channels of one in-flight operation. srcDone
// records that the source was resolved, possibly to no channel at all.
type channelEntry struct {
	src     Channel
	dst     Channel
	srcDone bool
}

// channelCache maps operation IDs to their open channels. An entry lives
// only while its operation is non-terminal.
type channelCache struct {
	mu      sync.Mutex
	entries map[uint64]*channelEntry
}

func newChannelCache() *channelCache {
	return &channelCache{entries: make(map[uint64]*channelEntry)}
}

func (c *channelCache) entry(id uint64) *channelEntry {
	e, ok := c.entries[id]
	if !ok {
		e = &channelEntry{}
		c.entries[id] = e
	}
	return e
}

// destination returns the cached destination channel of an operation.
func (c *channelCache) destination(id uint64) Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		return e.dst
	}
	return nil
}

// source returns the cached source channel and whether it was resolved.
func (c *channelCache) source(id uint64) (Channel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		return e.src, e.srcDone
	}
	return nil, false
}

func (c *channelCache) putDestination(id uint64, ch Channel) {
	c.mu.Lock()
	c.entry(id).dst = ch
	c.mu.Unlock()
}

// putSource caches the source channel. A nil channel marks the source as
// absent so the opener is not asked again on continuation.
func (c *channelCache) putSource(id uint64, ch Channel) {
	c.mu.Lock()
	e := c.entry(id)
	e.src, e.srcDone = ch, true
	c.mu.Unlock()
}

// evict removes an operation's entry and returns its channels.
func (c *channelCache) evict(id uint64) []Channel {
	c.mu.Lock()
	e, ok := c.entries[id]
	delete(c.entries, id)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return e.channels()
}

// drain empties the cache and returns every channel it held.
func (c *channelCache) drain() []Channel {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[uint64]*channelEntry)
	c.mu.Unlock()

	var out []Channel
	for _, e := range entries {
		out = append(out, e.channels()...)
	}
	return out
}

func (c *channelCache) has(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

func (c *channelCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (e *channelEntry) channels() []Channel {
	out := make([]Channel, 0, 2)
	if e.src != nil {
		out = append(out, e.src)
	}
	if e.dst != nil {
		out = append(out, e.dst)
	}
	return out
}
