package embedding

import (
	"container/list"
	"sync"
)

// CacheStats reports query cache usage.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// QueryCache keeps the most recently used query embeddings. Stored and
// returned vectors are copies, so callers may modify what they get.
type QueryCache struct {
	mu       sync.Mutex
	capacity int
	byText   map[string]*list.Element
	order    *list.List // front is most recent
	hits     int64
	misses   int64
}

type cachedQuery struct {
	text string
	vec  []float32
}

// NewQueryCache returns a cache holding up to capacity queries, or nil
// when capacity is not positive. A nil *QueryCache is a valid, always
// missing cache.
func NewQueryCache(capacity int) *QueryCache {
	if capacity <= 0 {
		return nil
	}
	return &QueryCache{
		capacity: capacity,
		byText:   make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Lookup returns a copy of the embedding cached for text.
func (c *QueryCache) Lookup(text string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.byText[text]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(elem)
	return clone(elem.Value.(*cachedQuery).vec), true
}

// Store caches vec for text, dropping the least recently used query when full.
func (c *QueryCache) Store(text string, vec []float32) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.byText[text]; ok {
		elem.Value.(*cachedQuery).vec = clone(vec)
		c.order.MoveToFront(elem)
		return
	}
	c.byText[text] = c.order.PushFront(&cachedQuery{text: text, vec: clone(vec)})
	for c.order.Len() > c.capacity {
		last := c.order.Back()
		c.order.Remove(last)
		delete(c.byText, last.Value.(*cachedQuery).text)
	}
}

// Stats returns the current entry count and hit/miss totals.
func (c *QueryCache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: c.order.Len(), Hits: c.hits, Misses: c.misses}
}

// Reset drops every entry and zeroes the counters.
func (c *QueryCache) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byText = make(map[string]*list.Element, c.capacity)
	c.order.Init()
	c.hits, c.misses = 0, 0
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
