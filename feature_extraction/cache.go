package feature_extraction

import "sync"

// Key identifies a window's contents: the sequence number of its newest
// chunk and its length in chunks.
type Key struct {
	NewestSeq uint64
	Chunks    int
}

// Cache holds the features of the most recent window so an unchanged window
// is never extracted twice.
type Cache struct {
	mu       sync.Mutex
	key      Key
	valid    bool
	features Sequence
	hits     uint64
	misses   uint64
}

func NewCache() *Cache {
	return &Cache{}
}

// Get returns the cached sequence for key, calling compute only when the key
// differs from the cached one.
func (c *Cache) Get(key Key, compute func() Sequence) Sequence {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && c.key == key {
		c.hits++
		return c.features
	}

	c.misses++
	c.features = compute()
	c.key = key
	c.valid = true

	return c.features
}

func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.valid = false
	c.features = nil
}

// Stats reports cache hits and misses.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.hits, c.misses
}
