package tile

import (
	"container/list"
	"sync"

	"github.com/pspoerri/xcftiles/internal/applog"
)

// Cache bounds the memory used by the tiles of the managers attached to it.
// Tiles are kept in least-recently-used order; when the total size of the
// tracked tiles exceeds the limit the oldest unlocked tiles are moved to the
// swap store. Shared tiles are never tracked.
type Cache struct {
	mu    sync.Mutex
	limit int64
	used  int64
	lru   *list.List // front = most recently used
	elems map[*Tile]*list.Element
	swap  *Swap

	evictions int64
}

// NewCache creates a cache that keeps at most limit bytes of tile data in
// memory, spilling the rest to swap. A nil swap turns the cache into a pure
// accounting device.
func NewCache(limit int64, swap *Swap) *Cache {
	return &Cache{
		limit: limit,
		lru:   list.New(),
		elems: make(map[*Tile]*list.Element),
		swap:  swap,
	}
}

// Used returns the number of bytes held by tracked tiles.
func (c *Cache) Used() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// Len returns the number of tracked tiles.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Evictions returns how many tiles were swapped out so far.
func (c *Cache) Evictions() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictions
}

func (c *Cache) touch(t *Tile) {
	if _, ok := t.buf.(ownedBuffer); !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.elems[t]; ok {
		c.lru.MoveToFront(e)
		return
	}
	c.elems[t] = c.lru.PushFront(t)
	c.used += int64(t.Size())
	c.evict()
}

func (c *Cache) remove(t *Tile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.elems[t]; ok {
		c.lru.Remove(e)
		delete(c.elems, t)
		c.used -= int64(t.Size())
	}
}

// evict swaps out tiles from the back of the list until the cache is within
// its limit. The most recently used tile and locked tiles stay.
func (c *Cache) evict() {
	if c.swap == nil {
		return
	}
	e := c.lru.Back()
	for c.used > c.limit && e != nil && e != c.lru.Front() {
		prev := e.Prev()
		t := e.Value.(*Tile)
		if t.locks == 0 {
			pix := t.buf.(ownedBuffer)
			key, err := c.swap.put(pix, t.bpp)
			if err != nil {
				applog.Logger().Warn("tile cache: swap out failed", "err", err)
				return
			}
			t.buf = swappedBuffer{swap: c.swap, key: key}
			c.lru.Remove(e)
			delete(c.elems, t)
			c.used -= int64(t.Size())
			c.evictions++
		}
		e = prev
	}
}
