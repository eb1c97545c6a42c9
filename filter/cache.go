package filter

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// filterCache is a thread-safe LRU of compiled filters keyed by expression
type filterCache = lru.Cache[string, CompiledFilter]

func newFilterCache(size int) *filterCache {
	// lru.New only fails for a non-positive size, which WithCache rules out
	cache, _ := lru.New[string, CompiledFilter](size)
	return cache
}
