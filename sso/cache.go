package sso

import (
	"sync"
	"time"
)

// RegistrationCache memoizes client registrations per region and issuer
// until the client secret expires.
type RegistrationCache struct {
	mu      sync.RWMutex
	entries map[string]*ClientRegistration
	now     func() time.Time
}

// NewRegistrationCache creates an empty cache.
func NewRegistrationCache() *RegistrationCache {
	return &RegistrationCache{
		entries: make(map[string]*ClientRegistration),
		now:     time.Now,
	}
}

func cacheKey(region, issuerURL string) string {
	return region + "|" + issuerURL
}

// Get returns a live registration, evicting it when expired.
func (c *RegistrationCache) Get(region, issuerURL string) (*ClientRegistration, bool) {
	key := cacheKey(region, issuerURL)
	c.mu.RLock()
	reg, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if reg.Expired(c.now()) {
		c.mu.Lock()
		if cur, still := c.entries[key]; still && cur == reg {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return reg, true
}

// Put stores a registration.
func (c *RegistrationCache) Put(region, issuerURL string, reg *ClientRegistration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(region, issuerURL)] = reg
}

// Invalidate drops a registration, e.g. after the backend rejected its secret.
func (c *RegistrationCache) Invalidate(region, issuerURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(region, issuerURL))
}

// Len returns the number of cached entries, expired ones included.
func (c *RegistrationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
