// Package cache provides a capacity-bounded least-recently-used byte cache.
//
// Entries live in a fixed arena of slots. Recency is a doubly linked list
// threaded through the slots by index (head is most recently used, tail is
// least), and a key to slot map gives O(1) touch and evict. The cache knows
// nothing about where payloads come from.
package cache

import (
	"bytes"
	"fmt"
)

const none int32 = -1

type slot struct {
	key     string
	payload []byte
	prev    int32
	next    int32
}

// Stats holds cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Len       int
	Capacity  int
}

// LRU is not safe for concurrent use.
type LRU struct {
	capacity int
	slots    []slot
	index    map[string]int32
	free     []int32
	head     int32
	tail     int32

	hits      int64
	misses    int64
	evictions int64
}

// New creates a cache holding at most capacity entries.
func New(capacity int) (*LRU, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}
	if capacity > 1<<30 {
		return nil, fmt.Errorf("cache capacity %d is too large", capacity)
	}

	c := &LRU{
		capacity: capacity,
		slots:    make([]slot, capacity),
		index:    make(map[string]int32, capacity),
		free:     make([]int32, 0, capacity),
		head:     none,
		tail:     none,
	}
	c.resetFree()
	return c, nil
}

// Get returns a copy of the payload stored under key and marks it most
// recently used.
func (c *LRU) Get(key string) ([]byte, bool) {
	i, ok := c.index[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.moveToFront(i)
	return bytes.Clone(c.slots[i].payload), true
}

// Contains reports whether key is cached without touching its recency.
func (c *LRU) Contains(key string) bool {
	_, ok := c.index[key]
	return ok
}

// Put stores payload under key as the most recently used entry. The cache
// takes ownership of payload. When the insert pushes the cache over
// capacity exactly one entry, the least recently used, is evicted and its
// key returned.
func (c *LRU) Put(key string, payload []byte) (evicted string, ok bool) {
	if i, exists := c.index[key]; exists {
		c.slots[i].payload = payload
		c.moveToFront(i)
		return "", false
	}

	// A full arena has no free slot, so the tail is evicted first and its
	// slot reused. The resulting state matches insert-then-evict.
	if len(c.free) == 0 {
		evicted = c.evictTail()
		ok = true
	}

	i := c.free[len(c.free)-1]
	c.free = c.free[:len(c.free)-1]
	c.slots[i] = slot{key: key, payload: payload, prev: none, next: none}
	c.index[key] = i
	c.pushFront(i)
	return evicted, ok
}

// Remove drops key from the cache.
func (c *LRU) Remove(key string) bool {
	i, ok := c.index[key]
	if !ok {
		return false
	}
	c.release(i)
	return true
}

// Keys returns cached keys from most to least recently used.
func (c *LRU) Keys() []string {
	keys := make([]string, 0, len(c.index))
	for i := c.head; i != none; i = c.slots[i].next {
		keys = append(keys, c.slots[i].key)
	}
	return keys
}

// Len returns the number of cached entries.
func (c *LRU) Len() int {
	return len(c.index)
}

// Capacity returns the maximum number of entries.
func (c *LRU) Capacity() int {
	return c.capacity
}

// Stats returns a snapshot of the cache counters.
func (c *LRU) Stats() Stats {
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Len:       len(c.index),
		Capacity:  c.capacity,
	}
}

// Clear drops every entry. Counters are kept.
func (c *LRU) Clear() {
	for i := range c.slots {
		c.slots[i] = slot{}
	}
	clear(c.index)
	c.head, c.tail = none, none
	c.resetFree()
}

func (c *LRU) resetFree() {
	c.free = c.free[:0]
	// Highest index first so slots fill from zero upwards.
	for i := int32(c.capacity) - 1; i >= 0; i-- {
		c.free = append(c.free, i)
	}
}

func (c *LRU) evictTail() string {
	i := c.tail
	key := c.slots[i].key
	c.release(i)
	c.evictions++
	return key
}

func (c *LRU) release(i int32) {
	c.unlink(i)
	delete(c.index, c.slots[i].key)
	c.slots[i] = slot{prev: none, next: none}
	c.free = append(c.free, i)
}

func (c *LRU) moveToFront(i int32) {
	if c.head == i {
		return
	}
	c.unlink(i)
	c.pushFront(i)
}

func (c *LRU) pushFront(i int32) {
	s := &c.slots[i]
	s.prev = none
	s.next = c.head
	if c.head != none {
		c.slots[c.head].prev = i
	}
	c.head = i
	if c.tail == none {
		c.tail = i
	}
}

func (c *LRU) unlink(i int32) {
	s := &c.slots[i]
	if s.prev != none {
		c.slots[s.prev].next = s.next
	} else {
		c.head = s.next
	}
	if s.next != none {
		c.slots[s.next].prev = s.prev
	} else {
		c.tail = s.prev
	}
	s.prev, s.next = none, none
}
