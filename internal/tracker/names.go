package tracker

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultNameCacheSize bounds the display name cache when no size is given.
const DefaultNameCacheSize = 4096

// NameCache remembers the most recent display name seen for each user so
// heartbeat credits can be labelled without a store round trip.
type NameCache struct {
	cache *lru.Cache[int64, string]
}

// NewNameCache creates a cache holding up to size names.
func NewNameCache(size int) (*NameCache, error) {
	if size <= 0 {
		size = DefaultNameCacheSize
	}
	cache, err := lru.New[int64, string](size)
	if err != nil {
		return nil, err
	}
	return &NameCache{cache: cache}, nil
}

// Remember records name for userID. Empty names are ignored.
func (c *NameCache) Remember(userID int64, name string) {
	if name == "" {
		return
	}
	c.cache.Add(userID, name)
}

// Lookup returns the cached name for userID.
func (c *NameCache) Lookup(userID int64) (string, bool) {
	return c.cache.Get(userID)
}
