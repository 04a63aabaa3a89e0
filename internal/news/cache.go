// Package news caches, identifies and deduplicates company and macro news items.
package news

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"newstrader/internal/logger"
	"newstrader/internal/types"
)

const (
	defaultCacheTTL      = 300 * time.Second
	defaultCacheMaxItems = 50
)

type cacheEntry struct {
	TS    float64          `json:"ts"`
	Items []types.NewsItem `json:"items"`
}

// Cache is a per-symbol TTL cache of fetched news, persisted best-effort to a JSON file.
type Cache struct {
	mu       sync.Mutex
	path     string
	ttl      time.Duration
	maxItems int
	entries  map[string]cacheEntry
	clock    func() time.Time
}

// NewCache loads path if it exists. ttl <= 0 disables lookups; maxItems <= 0 uses 50.
func NewCache(path string, ttl time.Duration, maxItems int) *Cache {
	if maxItems <= 0 {
		maxItems = defaultCacheMaxItems
	}
	c := &Cache{
		path:     path,
		ttl:      ttl,
		maxItems: maxItems,
		entries:  make(map[string]cacheEntry),
		clock:    time.Now,
	}
	c.load()
	return c
}

// Get returns the cached items for symbol while they are fresh.
func (c *Cache) Get(symbol string) ([]types.NewsItem, bool) {
	if c == nil || c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[symbol]
	if !ok {
		return nil, false
	}
	age := c.clock().Sub(types.FromUnix(entry.TS))
	if age > c.ttl {
		return nil, false
	}
	out := make([]types.NewsItem, len(entry.Items))
	copy(out, entry.Items)
	return out, true
}

// Set stores the first maxItems items and rewrites the cache file.
func (c *Cache) Set(symbol string, items []types.NewsItem) {
	if c == nil {
		return
	}
	if len(items) > c.maxItems {
		items = items[:c.maxItems]
	}
	stored := make([]types.NewsItem, len(items))
	copy(stored, items)

	c.mu.Lock()
	c.entries[symbol] = cacheEntry{TS: types.UnixSeconds(c.clock()), Items: stored}
	snapshot := make(map[string]cacheEntry, len(c.entries))
	for k, v := range c.entries {
		snapshot[k] = v
	}
	c.mu.Unlock()

	c.save(snapshot)
}

func (c *Cache) load() {
	if c.path == "" {
		return
	}
	raw, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Debugf("news cache: read %s: %v", c.path, err)
		}
		return
	}
	var data map[string]cacheEntry
	if err := json.Unmarshal(raw, &data); err != nil {
		logger.Debugf("news cache: decode %s: %v", c.path, err)
		return
	}
	for k, v := range data {
		c.entries[k] = v
	}
}

func (c *Cache) save(entries map[string]cacheEntry) {
	if c.path == "" {
		return
	}
	buf, err := json.Marshal(entries)
	if err != nil {
		logger.Debugf("news cache: encode: %v", err)
		return
	}
	if dir := filepath.Dir(c.path); dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	if err := os.WriteFile(c.path, buf, 0o644); err != nil {
		logger.Debugf("news cache: write %s: %v", c.path, err)
	}
}


