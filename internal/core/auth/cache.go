package auth

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// sessionCache is a key-value store of session cookies to sessions whose
// entries expire after a fixed TTL.
type sessionCache struct {
	cacheInstance *gocache.Cache
	ttl           time.Duration
}

func newSessionCache(ttl time.Duration) *sessionCache {
	return &sessionCache{cacheInstance: gocache.New(ttl, time.Minute), ttl: ttl}
}

func (c *sessionCache) put(cookie string, s Session) {
	c.cacheInstance.Set(cookie, s, gocache.DefaultExpiration)
}

func (c *sessionCache) get(cookie string) (Session, bool) {
	v, ok := c.cacheInstance.Get(cookie)
	if !ok {
		return Session{}, false
	}
	return v.(Session), true
}

func (c *sessionCache) len() int {
	return c.cacheInstance.ItemCount()
}

// rekey points every session started with oldKey at newKey, keeping each
// session's original expiration.
func (c *sessionCache) rekey(oldKey, newKey string) {
	now := time.Now()
	for cookie, item := range c.cacheInstance.Items() {
		s := item.Object.(Session)
		if s.Key != oldKey {
			continue
		}
		s.Key = newKey

		ttl := gocache.NoExpiration
		if item.Expiration > 0 {
			ttl = time.Unix(0, item.Expiration).Sub(now)
			if ttl <= 0 {
				continue
			}
		}
		c.cacheInstance.Set(cookie, s, ttl)
	}
}
