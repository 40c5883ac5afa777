package model

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/tessera/pkg/core"
	"github.com/aretw0/tessera/pkg/schema"
)

// Cache is the identity map of one load or decode operation: within a cache
// every key maps to at most one instance.
type Cache struct {
	mu    sync.Mutex
	items map[string]*Instance
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{items: make(map[string]*Instance)}
}

// Get returns the instance cached under key.
func (c *Cache) Get(key string) (*Instance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.items[key]
	return inst, ok
}

// Len returns the number of cached instances.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns the cached keys, sorted.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Resolve returns the instance for ref, creating an unloaded placeholder of
// desc on first sight. Concurrent callers observe the same placeholder.
func (c *Cache) Resolve(ref core.Ref, desc *schema.Descriptor) (*Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if inst, ok := c.items[ref.Key]; ok {
		if inst.desc != desc {
			return nil, fmt.Errorf("%w: %s is cached as %s, referenced as %s",
				core.ErrCacheConflict, ref.Key, inst.desc.Name, desc.Name)
		}
		return inst, nil
	}
	inst := newPlaceholder(desc, ref.Key, c)
	c.items[ref.Key] = inst
	return inst, nil
}

// Put registers a keyed instance. It fails when key is held by another instance.
func (c *Cache) Put(inst *Instance) error {
	key, err := inst.Key()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.items[key]; ok && prev != inst {
		return fmt.Errorf("%w: %s is already cached", core.ErrCacheConflict, key)
	}
	c.items[key] = inst
	inst.attach(c)
	return nil
}

// claim returns the instance a document stored under key decodes into:
// the cached one when present, otherwise a new instance registered under key.
func (c *Cache) claim(key string, desc *schema.Descriptor) (*Instance, error) {
	if key == "" {
		return &Instance{desc: desc, cache: c}, nil
	}
	return c.Resolve(core.Ref{Type: desc.Name, Key: key}, desc)
}
