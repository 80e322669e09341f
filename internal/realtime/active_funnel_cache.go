package realtime

import (
	"sync"
	"time"

	"github.com/victoralfred/funnelengine/internal/domain/funnel"
)

// activeFunnelCache is the module-level state §9 calls out: a bounded
// resource initialized at startup, guarded by a reader-writer lock, not a
// goroutine-unsafe package global.
type activeFunnelCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[tenantWorkspace]cacheEntry
}

type tenantWorkspace struct {
	tenantID, workspaceID int64
}

type cacheEntry struct {
	funnels   []*funnel.Funnel
	expiresAt time.Time
}

func newActiveFunnelCache(ttl time.Duration) *activeFunnelCache {
	return &activeFunnelCache{ttl: ttl, entries: make(map[tenantWorkspace]cacheEntry)}
}

func (c *activeFunnelCache) get(tenantID, workspaceID int64) ([]*funnel.Funnel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[tenantWorkspace{tenantID, workspaceID}]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.funnels, true
}

func (c *activeFunnelCache) set(tenantID, workspaceID int64, funnels []*funnel.Funnel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[tenantWorkspace{tenantID, workspaceID}] = cacheEntry{funnels: funnels, expiresAt: time.Now().Add(c.ttl)}
}

func (c *activeFunnelCache) invalidate(tenantID, workspaceID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tenantWorkspace{tenantID, workspaceID})
}
