package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	key     string
	value   []byte
	expires time.Time
}

// MemoryCache is a bounded in-process LRU with per-entry expiry
type MemoryCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	maxItems int
	order    *list.List
	items    map[string]*list.Element
	hits     int64
	misses   int64
	now      func() time.Time
}

// NewMemoryCache creates an in-process detection cache
func NewMemoryCache(config *Config) *MemoryCache {
	maxItems := config.MaxItems
	if maxItems <= 0 {
		maxItems = 1000
	}
	return &MemoryCache{
		ttl:      config.DefaultTTL,
		maxItems: maxItems,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Get returns the cached bytes for key
func (mc *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	el, ok := mc.items[key]
	if !ok {
		mc.misses++
		return nil, false
	}

	entry := el.Value.(*memoryEntry)
	if mc.ttl > 0 && mc.now().After(entry.expires) {
		mc.order.Remove(el)
		delete(mc.items, key)
		mc.misses++
		return nil, false
	}

	mc.order.MoveToFront(el)
	mc.hits++
	return entry.value, true
}

// Set stores value, evicting the least recently used entry when full
func (mc *MemoryCache) Set(_ context.Context, key string, value []byte) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	expires := mc.now().Add(mc.ttl)
	if el, ok := mc.items[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.value = value
		entry.expires = expires
		mc.order.MoveToFront(el)
		return
	}

	mc.items[key] = mc.order.PushFront(&memoryEntry{key: key, value: value, expires: expires})
	for mc.order.Len() > mc.maxItems {
		oldest := mc.order.Back()
		mc.order.Remove(oldest)
		delete(mc.items, oldest.Value.(*memoryEntry).key)
	}
}

// Stats returns cache performance statistics
func (mc *MemoryCache) Stats(_ context.Context) (*Stats, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	return &Stats{
		Backend:   "memory",
		Hits:      mc.hits,
		Misses:    mc.misses,
		HitRate:   hitRate(mc.hits, mc.misses),
		TotalKeys: int64(mc.order.Len()),
	}, nil
}

// Clear drops every entry
func (mc *MemoryCache) Clear(_ context.Context) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.order.Init()
	mc.items = make(map[string]*list.Element)
	return nil
}

// Close is a no-op for the in-process cache
func (mc *MemoryCache) Close() error { return nil }
