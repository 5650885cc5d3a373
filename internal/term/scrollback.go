package term

import (
	"container/list"
	"sync"

	"github.com/openmux/openmux/internal/cellmodel"
)

// DefaultScrollbackCapacity is the number of rows retained per pane before
// the oldest rows are trimmed.
const DefaultScrollbackCapacity = 1000

// defaultTrimTarget is how far below capacity a trim pass brings the cache,
// so trimming isn't triggered again on the very next push.
const defaultTrimTarget = 500

// ScrollbackCache is an LRU-by-insertion-order ring of scrolled-off rows,
// addressed by absolute row index. Pushing past capacity evicts the oldest
// entries down to the trim target in one pass, rather than one row at a
// time, to keep eviction cost amortized.
type ScrollbackCache struct {
	mu       sync.Mutex
	capacity int
	trimTo   int

	order *list.List               // oldest..newest of absolute row indices
	rows  map[int]*list.Element    // absolute index -> element
	data  map[int]cellmodel.Row
	base  int // absolute index of the oldest retained row
}

// NewScrollbackCache creates a cache with the given capacity. A
// non-positive capacity falls back to DefaultScrollbackCapacity.
func NewScrollbackCache(capacity int) *ScrollbackCache {
	if capacity <= 0 {
		capacity = DefaultScrollbackCapacity
	}
	trim := capacity / 2
	if trim == 0 {
		trim = capacity
	}
	return &ScrollbackCache{
		capacity: capacity,
		trimTo:   trim,
		order:    list.New(),
		rows:     make(map[int]*list.Element),
		data:     make(map[int]cellmodel.Row),
	}
}

// Push appends a row that has scrolled out of the live viewport at the
// given absolute index.
func (c *ScrollbackCache) Push(absoluteIndex int, row cellmodel.Row) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el := c.order.PushBack(absoluteIndex)
	c.rows[absoluteIndex] = el
	c.data[absoluteIndex] = row.Clone()

	if c.order.Len() <= c.capacity {
		return
	}
	for c.order.Len() > c.trimTo {
		front := c.order.Front()
		idx := front.Value.(int)
		c.order.Remove(front)
		delete(c.rows, idx)
		delete(c.data, idx)
	}
}

// Get returns the row at the given absolute index, if still retained.
func (c *ScrollbackCache) Get(absoluteIndex int) (cellmodel.Row, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	row, ok := c.data[absoluteIndex]
	if !ok {
		return nil, false
	}
	return row, true
}

// Len reports the number of rows currently retained.
func (c *ScrollbackCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// OldestIndex returns the absolute index of the oldest retained row, and
// false if the cache is empty.
func (c *ScrollbackCache) OldestIndex() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	front := c.order.Front()
	if front == nil {
		return 0, false
	}
	return front.Value.(int), true
}

// Capacity returns the configured retention limit.
func (c *ScrollbackCache) Capacity() int {
	return c.capacity
}

// Clear discards every retained row. Required whenever previously issued
// absolute offsets stop being trustworthy: on resize (row width changes
// and stale rows would be the wrong shape) and on scrollback-limit
// rollover (the offset space has wrapped past capacity). No entry may
// survive either event.
func (c *ScrollbackCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.rows = make(map[int]*list.Element)
	c.data = make(map[int]cellmodel.Row)
}
