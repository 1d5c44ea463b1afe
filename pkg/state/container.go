// SPDX-License-Identifier: MIT

package state

import (
	"context"
	"sort"
	"sync"
)

// Container is the host-provided key/value store values are attached to.
// Get reports ok=false for absent keys. Deleting an absent key is not an error.
type Container interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// MemoryContainer is an in-process Container, the analogue of metadata
// attached to a live entity.
type MemoryContainer struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryContainer returns an empty container.
func NewMemoryContainer() *MemoryContainer {
	return &MemoryContainer{entries: make(map[string][]byte)}
}

func (c *MemoryContainer) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (c *MemoryContainer) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = append([]byte(nil), value...)
	return nil
}

func (c *MemoryContainer) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemoryContainer) Keys(_ context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
