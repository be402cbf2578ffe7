package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/keystone-cm/filedesk/internal/constants"
	"github.com/keystone-cm/filedesk/internal/events"
	"github.com/keystone-cm/filedesk/internal/models"
)

type cacheKey struct {
	parent models.EntryID
	all    bool
}

func (k cacheKey) flightKey(force bool) string {
	return fmt.Sprintf("%t/%t/%s", k.all, force, k.parent)
}

type cachedListing struct {
	entries   []models.Entry
	fetchedAt time.Time
}

// ListingCache keeps recent listings in memory so that repeated views and
// hierarchy builds do not hit the server. Entries expire after the TTL and
// are dropped immediately when a mutation touches their parent.
type ListingCache struct {
	ttl      time.Duration
	now      func() time.Time
	eventBus *events.EventBus

	cache map[cacheKey]cachedListing
	gen   uint64
	mu    sync.RWMutex
	group singleflight.Group
}

// NewListingCache creates a cache using constants.ListingCacheTTL.
func NewListingCache(eventBus *events.EventBus) *ListingCache {
	return &ListingCache{
		ttl:      constants.ListingCacheTTL,
		now:      time.Now,
		eventBus: eventBus,
		cache:    make(map[cacheKey]cachedListing),
	}
}

// Children returns the cached children of parentID, calling fetch on a miss.
func (c *ListingCache) Children(ctx context.Context, parentID models.EntryID, force bool, fetch func(context.Context) ([]models.Entry, error)) ([]models.Entry, error) {
	return c.get(ctx, cacheKey{parent: parentID}, force, fetch)
}

// All returns the cached full listing, calling fetch on a miss.
func (c *ListingCache) All(ctx context.Context, force bool, fetch func(context.Context) ([]models.Entry, error)) ([]models.Entry, error) {
	return c.get(ctx, cacheKey{all: true}, force, fetch)
}

func (c *ListingCache) get(ctx context.Context, key cacheKey, force bool, fetch func(context.Context) ([]models.Entry, error)) ([]models.Entry, error) {
	if !force {
		if entries, ok := c.lookup(key); ok {
			return entries, nil
		}
	}

	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()

	// Concurrent misses for one key share a single fetch. The cache lock is
	// not held while fetching so other keys stay readable.
	ch := c.group.DoChan(key.flightKey(force), func() (interface{}, error) {
		if !force {
			if entries, ok := c.lookup(key); ok {
				return entries, nil
			}
		}
		entries, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		// An invalidation during the fetch means the result may predate a mutation.
		if c.gen == gen {
			c.cache[key] = cachedListing{entries: cloneEntries(entries), fetchedAt: c.now()}
		}
		c.mu.Unlock()
		return entries, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneEntries(res.Val.([]models.Entry)), nil
	}
}

func (c *ListingCache) lookup(key cacheKey) ([]models.Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if l, ok := c.cache[key]; ok && c.fresh(l) {
		return cloneEntries(l.entries), true
	}
	return nil, false
}

func (c *ListingCache) fresh(l cachedListing) bool {
	return c.now().Sub(l.fetchedAt) < c.ttl
}

// Invalidate drops the listings of the given parents and the full listing.
func (c *ListingCache) Invalidate(reason string, parentIDs ...models.EntryID) {
	c.mu.Lock()
	for _, id := range parentIDs {
		delete(c.cache, cacheKey{parent: id})
	}
	delete(c.cache, cacheKey{all: true})
	c.gen++
	c.mu.Unlock()

	ids := make([]string, 0, len(parentIDs))
	for _, id := range parentIDs {
		ids = append(ids, id.String())
	}
	c.eventBus.Publish(&events.ListingInvalidatedEvent{
		BaseEvent: events.NewBase(events.EventListingInvalidated),
		ParentIDs: ids,
		Reason:    reason,
	})
}

// InvalidateAll empties the cache.
func (c *ListingCache) InvalidateAll(reason string) {
	c.mu.Lock()
	c.cache = make(map[cacheKey]cachedListing)
	c.gen++
	c.mu.Unlock()

	c.eventBus.Publish(&events.ListingInvalidatedEvent{
		BaseEvent: events.NewBase(events.EventListingInvalidated),
		Reason:    reason,
	})
}

// Len returns the number of cached listings.
func (c *ListingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func cloneEntries(in []models.Entry) []models.Entry {
	if in == nil {
		return nil
	}
	out := make([]models.Entry, len(in))
	copy(out, in)
	return out
}
