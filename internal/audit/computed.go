package audit

import (
	"fmt"
	"sync"
)

// ComputedCache memoizes values derived from artifacts, such as trace
// timelines, so audits that need the same computation share one result.
// It is safe for concurrent use.
type ComputedCache struct {
	mu      sync.Mutex
	entries map[string]*computedEntry
}

type computedEntry struct {
	once  sync.Once
	value any
	err   error
}

// NewComputedCache returns an empty cache.
func NewComputedCache() *ComputedCache {
	return &ComputedCache{entries: make(map[string]*computedEntry)}
}

// Len returns the number of cached keys.
func (c *ComputedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ComputedCache) entry(key string) *computedEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = &computedEntry{}
		c.entries[key] = e
	}
	return e
}

// Compute returns the value cached under key, calling fn to produce it on
// first use. Concurrent callers with the same key wait for one fn call.
// Errors are cached too.
func Compute[T any](c *ComputedCache, key string, fn func() (T, error)) (T, error) {
	e := c.entry(key)
	e.once.Do(func() {
		e.value, e.err = fn()
	})
	if e.err != nil {
		var zero T
		return zero, e.err
	}
	v, ok := e.value.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("computed %q holds %T", key, e.value)
	}
	return v, nil
}
