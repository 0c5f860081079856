package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type entry struct {
	key     string
	value   string
	expires time.Time
	element *list.Element
}

// MemoryStore is an in-process LRU Store with per-entry expiry. It serves
// single-node deployments and tests.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*entry
	order    *list.List
	now      func() time.Time
}

// NewMemoryStore creates an LRU store holding at most capacity entries.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 4096
	}
	return &MemoryStore{
		capacity: capacity,
		items:    make(map[string]*entry, capacity),
		order:    list.New(),
		now:      time.Now,
	}
}

func memKey(namespace, field string) string {
	return namespace + "\x00" + field
}

func (c *MemoryStore) Get(_ context.Context, namespace, field string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[memKey(namespace, field)]; ok {
		if ent.expires.IsZero() || c.now().Before(ent.expires) {
			c.order.MoveToFront(ent.element)
			return ent.value, true, nil
		}
		c.removeEntry(ent)
	}
	return "", false, nil
}

func (c *MemoryStore) Set(_ context.Context, namespace, field, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := memKey(namespace, field)
	if ent, ok := c.items[key]; ok {
		ent.value = value
		ent.expires = c.expiry(ttl)
		c.order.MoveToFront(ent.element)
		return nil
	}

	if len(c.items) >= c.capacity {
		c.evictOldest()
	}

	elem := c.order.PushFront(key)
	c.items[key] = &entry{
		key:     key,
		value:   value,
		expires: c.expiry(ttl),
		element: elem,
	}
	return nil
}

// Close drops every entry.
func (c *MemoryStore) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*entry, c.capacity)
	c.order.Init()
	return nil
}

// Len reports the number of live and not yet collected entries.
func (c *MemoryStore) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

func (c *MemoryStore) evictOldest() {
	elem := c.order.Back()
	if elem == nil {
		return
	}
	if ent, ok := c.items[elem.Value.(string)]; ok {
		c.removeEntry(ent)
	}
}

func (c *MemoryStore) removeEntry(ent *entry) {
	if ent.element != nil {
		c.order.Remove(ent.element)
	}
	delete(c.items, ent.key)
}
