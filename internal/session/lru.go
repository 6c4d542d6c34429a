package session

import "container/list"

// lruCache is a minimal bounded LRU keyed by record identifier. Callers
// hold the Manager lock; the cache itself is not safe for concurrent use.
type lruCache struct {
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

type lruEntry struct {
	key  string
	sess *Context
}

func newLRUCache(capacity int) *lruCache {
	return &lruCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

func (c *lruCache) get(key string) (*Context, bool) {
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry).sess, true
}

func (c *lruCache) put(key string, sess *Context) {
	if el, ok := c.entries[key]; ok {
		el.Value.(*lruEntry).sess = sess
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&lruEntry{key: key, sess: sess})
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*lruEntry).key)
	}
}

func (c *lruCache) remove(key string) {
	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
	}
}

func (c *lruCache) len() int {
	return c.order.Len()
}
