package infrastructure

import (
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// VersionedCache keys every entry by the owning user's version.
// Invalidate bumps the version, so readers never see entries written before it;
// orphaned entries expire through the TTL. Get reports the version it looked at and
// Set stores under that version, so a value loaded before an Invalidate can never
// land under the newer version.
type VersionedCache struct {
	store *gocache.Cache

	mu       sync.RWMutex
	versions map[int64]uint64
}

func NewVersionedCache(ttl time.Duration) *VersionedCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &VersionedCache{
		store:    gocache.New(ttl, 2*ttl),
		versions: make(map[int64]uint64),
	}
}

func (c *VersionedCache) version(userID int64) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.versions[userID]
}

func entryKey(userID int64, version uint64, key string) string {
	return fmt.Sprintf("%d:v%d:%s", userID, version, key)
}

// Get returns the entry for the user's current version along with that version.
func (c *VersionedCache) Get(userID int64, key string) (interface{}, uint64, bool) {
	ver := c.version(userID)
	v, ok := c.store.Get(entryKey(userID, ver, key))
	return v, ver, ok
}

// Set stores value under version, normally the one returned by the Get that missed.
// Values for a version that has since been invalidated are discarded.
func (c *VersionedCache) Set(userID int64, version uint64, key string, value interface{}) {
	if version != c.version(userID) {
		return
	}
	c.store.Set(entryKey(userID, version, key), value, gocache.DefaultExpiration)
}

func (c *VersionedCache) Invalidate(userID int64) {
	c.mu.Lock()
	c.versions[userID]++
	c.mu.Unlock()
}

// GetStats returns cache statistics
func (c *VersionedCache) GetStats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return map[string]interface{}{
		"entries":       c.store.ItemCount(),
		"tracked_users": len(c.versions),
	}
}
