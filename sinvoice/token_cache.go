package sinvoice

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultRefreshSkew is how long before expiry a cached token stops being handed out
const DefaultRefreshSkew = 10 * time.Second

// TokenCache stores session tokens per client configuration until they expire.
// A zero TokenCache is not usable; create one with NewTokenCache.
type TokenCache struct {
	mu      sync.Mutex
	entries map[string]tokenEntry
	now     func() time.Time
	skew    time.Duration
}

type tokenEntry struct {
	token     SessionToken
	expiresAt time.Time
}

// TokenCacheOption configures a TokenCache
type TokenCacheOption func(*TokenCache)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) TokenCacheOption {
	return func(c *TokenCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRefreshSkew sets how early a token is considered expired
func WithRefreshSkew(skew time.Duration) TokenCacheOption {
	return func(c *TokenCache) {
		if skew >= 0 {
			c.skew = skew
		}
	}
}

// NewTokenCache creates an empty cache
func NewTokenCache(opts ...TokenCacheOption) *TokenCache {
	c := &TokenCache{
		entries: make(map[string]tokenEntry),
		now:     time.Now,
		skew:    DefaultRefreshSkew,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the token stored under key if it is still valid.
// Expired entries are dropped.
func (c *TokenCache) Get(key string) (SessionToken, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return SessionToken{}, false
	}
	if !c.now().Add(c.skew).Before(entry.expiresAt) {
		delete(c.entries, key)
		return SessionToken{}, false
	}
	return entry.token, true
}

// Put stores token under key. Tokens without a known lifetime are not stored
// and Put reports false.
func (c *TokenCache) Put(key string, token SessionToken) bool {
	now := c.now()
	expiresAt, ok := tokenExpiry(token, now)
	if !ok || !now.Before(expiresAt) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = tokenEntry{token: token, expiresAt: expiresAt}
	return true
}

// Invalidate removes the token stored under key
func (c *TokenCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes every token
func (c *TokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]tokenEntry)
}

// Size returns the number of stored tokens, expired or not
func (c *TokenCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// tokenExpiry derives when a token stops being valid.
// expires_in wins; the JWT exp claim is read unverified as a fallback.
func tokenExpiry(token SessionToken, now time.Time) (time.Time, bool) {
	if token.ExpiresIn > 0 {
		lifetime := time.Duration(token.ExpiresIn) * time.Second
		expiresAt := now.Add(lifetime)
		// the server clock may run ahead of ours; keep the earlier bound
		if token.IssuedAt > 0 {
			if fromIssued := time.Unix(token.IssuedAt, 0).Add(lifetime); fromIssued.Before(expiresAt) {
				expiresAt = fromIssued
			}
		}
		return expiresAt, true
	}

	if token.AccessToken == "" {
		return time.Time{}, false
	}

	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token.AccessToken, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
