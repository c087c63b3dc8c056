package pos

import (
	"sync"
	"time"
)

// tokenSafetyWindow forces a refresh shortly before the advertised expiry
// so in-flight requests never ride an expiring token.
const tokenSafetyWindow = 60 * time.Second

// TokenCache holds one access token and its expiry. It is injected into
// the client so callers control its lifetime and tests can reset it.
type TokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

func NewTokenCache() *TokenCache {
	return &TokenCache{now: time.Now}
}

// Get returns the cached token, or "" when absent or inside the safety
// window of its expiry.
func (c *TokenCache) Get() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || c.now().After(c.expiresAt.Add(-tokenSafetyWindow)) {
		return ""
	}
	return c.token
}

func (c *TokenCache) Put(token string, expiresIn time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.expiresAt = c.now().Add(expiresIn)
}

// Invalidate drops the cached token, forcing the next call to fetch a
// fresh one. Used after the API rejects a request as unauthorized.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}
