package tates

import "sync"

// ProgramCache stores compiled expression programs keyed by expression strings.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// WithProgramCache registers a program cache used by the default evaluator.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *config) {
		cfg.programCache = cache
	}
}

// MemoryProgramCache is a ProgramCache backed by a sync.Map.
type MemoryProgramCache struct {
	programs sync.Map
}

// NewMemoryProgramCache returns an empty in-memory cache.
func NewMemoryProgramCache() *MemoryProgramCache {
	return &MemoryProgramCache{}
}

// Get implements ProgramCache.
func (c *MemoryProgramCache) Get(key string) (any, bool) {
	return c.programs.Load(key)
}

// Set implements ProgramCache.
func (c *MemoryProgramCache) Set(key string, value any) {
	c.programs.Store(key, value)
}
