package users

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the id lookup cache.
const DefaultCacheSize = 1024

// CachedRepository serves Get from an LRU of recently read or written
// users. Every write through it keeps the cache in step.
type CachedRepository struct {
	Repository
	cache *lru.Cache[uuid.UUID, User]

	// epoch advances on every delete or update. A read-through load only
	// fills the cache if no such write happened while it was loading.
	mu    sync.Mutex
	epoch uint64
}

// NewCachedRepository wraps repo with a cache of size entries.
func NewCachedRepository(repo Repository, size int) (*CachedRepository, error) {
	cache, err := lru.New[uuid.UUID, User](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create user cache: %w", err)
	}
	return &CachedRepository{Repository: repo, cache: cache}, nil
}

// Get returns the cached user or loads it.
func (c *CachedRepository) Get(ctx context.Context, id uuid.UUID) (User, error) {
	if u, ok := c.cache.Get(id); ok {
		return u, nil
	}

	c.mu.Lock()
	start := c.epoch
	c.mu.Unlock()

	u, err := c.Repository.Get(ctx, id)
	if err != nil {
		return User{}, err
	}

	c.mu.Lock()
	if c.epoch == start {
		c.cache.ContainsOrAdd(id, u)
	}
	c.mu.Unlock()
	return u, nil
}

// Add stores u and caches it.
func (c *CachedRepository) Add(ctx context.Context, u User) (User, error) {
	u, err := c.Repository.Add(ctx, u)
	if err != nil {
		return User{}, err
	}
	c.cache.Add(u.ID, u)
	return u, nil
}

// Update stores u and refreshes its entry.
func (c *CachedRepository) Update(ctx context.Context, u User) (User, error) {
	updated, err := c.Repository.Update(ctx, u)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	if err != nil {
		c.cache.Remove(u.ID)
		return User{}, err
	}
	c.cache.Add(updated.ID, updated)
	return updated, nil
}

// Delete removes the user and its entry.
func (c *CachedRepository) Delete(ctx context.Context, id uuid.UUID) error {
	err := c.Repository.Delete(ctx, id)

	c.mu.Lock()
	c.epoch++
	c.cache.Remove(id)
	c.mu.Unlock()
	return err
}

// Len reports the number of cached users.
func (c *CachedRepository) Len() int { return c.cache.Len() }
