package provider

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wrale/oauth2-authcode-proxy/internal/oauth"
)

// DefaultCacheSize is the number of providers kept by NewCachedRepository when size is zero
const DefaultCacheSize = 64

// CachedRepository keeps recently used providers in memory. Provider
// configuration is read-only after load, so entries are never invalidated.
type CachedRepository struct {
	next   Repository
	byName *lru.Cache[string, *oauth.Provider]
	byID   *lru.Cache[string, *oauth.Provider]
}

// NewCachedRepository wraps next with an LRU cache of the given size
func NewCachedRepository(next Repository, size int) (*CachedRepository, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}

	byName, err := lru.New[string, *oauth.Provider](size)
	if err != nil {
		return nil, fmt.Errorf("creating provider cache: %w", err)
	}
	byID, err := lru.New[string, *oauth.Provider](size)
	if err != nil {
		return nil, fmt.Errorf("creating provider cache: %w", err)
	}

	return &CachedRepository{next: next, byName: byName, byID: byID}, nil
}

// FindByName returns a cached provider or loads it
func (c *CachedRepository) FindByName(ctx context.Context, name string) (*oauth.Provider, error) {
	if p, ok := c.byName.Get(name); ok {
		return p, nil
	}

	p, err := c.next.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	c.add(p)
	return p, nil
}

// FindByID returns a cached provider or loads it
func (c *CachedRepository) FindByID(ctx context.Context, id string) (*oauth.Provider, error) {
	if p, ok := c.byID.Get(id); ok {
		return p, nil
	}

	p, err := c.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.add(p)
	return p, nil
}

func (c *CachedRepository) add(p *oauth.Provider) {
	c.byName.Add(p.Name, p)
	c.byID.Add(p.ID, p)
}
