package web

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/consilium-health/consilium/pkg/report"
)

// resultCache holds rendered reports for download until their TTL
// passes. Nothing in it survives a restart.
type resultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	doc     report.Document
	expires time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *resultCache) put(doc report.Document) string {
	id := uuid.NewString()
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[id] = cacheEntry{doc: doc, expires: now.Add(c.ttl)}
	return id
}

func (c *resultCache) get(id string) (report.Document, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok || time.Now().After(e.expires) {
		delete(c.entries, id)
		return report.Document{}, false
	}
	return e.doc, true
}
