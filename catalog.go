package modhooks

import (
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a fresh Plugin instance.
type Factory func() Plugin

// Catalog maps module identifiers to plugin factories. Feature modules are
// compiled in and register themselves explicitly; nothing is located by
// reflection or naming convention.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register adds a factory for id.
func (c *Catalog) Register(id string, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("%w: factory for %s is nil", ErrNoFactory, id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.factories[id]; exists {
		return fmt.Errorf("%w: factory %s", ErrDuplicateIdentifier, id)
	}
	c.factories[id] = factory
	return nil
}

// MustRegister is Register that panics, for package-level catalog setup.
func (c *Catalog) MustRegister(id string, factory Factory) {
	if err := c.Register(id, factory); err != nil {
		panic(err)
	}
}

// New constructs a plugin for id.
func (c *Catalog) New(id string) (Plugin, error) {
	c.mu.RLock()
	factory, ok := c.factories[id]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoFactory, id)
	}
	p := factory()
	if p == nil {
		return nil, fmt.Errorf("%w: factory for %s returned nil", ErrNoFactory, id)
	}
	if p.Identifier() != id {
		return nil, fmt.Errorf("%w: module %s, plugin %s", ErrIdentifierMismatch, id, p.Identifier())
	}
	return p, nil
}

// Has reports whether a factory exists for id.
func (c *Catalog) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.factories[id]
	return ok
}

// IDs returns the registered identifiers in sorted order.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.factories))
	for id := range c.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
