package pattern

import "sync"

// Cache memoizes compiled patterns by text. Lookups take the read lock;
// only a miss takes the write lock.
type Cache struct {
	mu       sync.RWMutex
	patterns map[string]Pattern
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{patterns: make(map[string]Pattern)}
}

// Get returns the compiled pattern for text, compiling it on first use.
func (c *Cache) Get(text string) (Pattern, error) {
	c.mu.RLock()
	p, ok := c.patterns[text]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := Parse(text)
	if err != nil {
		return Pattern{}, err
	}

	c.mu.Lock()
	if existing, ok := c.patterns[text]; ok {
		p = existing
	} else {
		c.patterns[text] = p
	}
	c.mu.Unlock()
	return p, nil
}

// Len returns the number of cached patterns.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.patterns)
}
