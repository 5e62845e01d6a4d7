// Package lrucache is a small fixed-capacity LRU cache used by the column
// family stores to avoid a KV round trip for hot headers/blocks, grounded
// on domain/consensus/datastructures/blockheaderstore's cache usage
// (New(cacheSize), Add, Get, Has, Remove).
package lrucache

import "container/list"

// LRUCache is a fixed-capacity cache keyed by arbitrary comparable values.
type LRUCache struct {
	capacity int
	items    map[interface{}]*list.Element
	order    *list.List
}

type entry struct {
	key   interface{}
	value interface{}
}

// New constructs an LRUCache with the given capacity. A non-positive
// capacity disables caching (every Add is a no-op).
func New(capacity int) *LRUCache {
	return &LRUCache{
		capacity: capacity,
		items:    make(map[interface{}]*list.Element),
		order:    list.New(),
	}
}

// Add inserts or updates key->value, evicting the least recently used entry
// if the cache is at capacity.
func (c *LRUCache) Add(key interface{}, value interface{}) {
	if c.capacity <= 0 {
		return
	}
	if el, ok := c.items[key]; ok {
		el.Value.(*entry).value = value
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&entry{key: key, value: value})
	c.items[key] = el

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*entry).key)
		}
	}
}

// Get returns the cached value for key, if present.
func (c *LRUCache) Get(key interface{}) (interface{}, bool) {
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).value, true
}

// Has reports whether key is cached, without affecting recency.
func (c *LRUCache) Has(key interface{}) bool {
	_, ok := c.items[key]
	return ok
}

// Remove evicts key, if present.
func (c *LRUCache) Remove(key interface{}) {
	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
}
