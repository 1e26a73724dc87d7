package directory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"clinic-queue-backend/internal/parse"
)

// Cached memoizes successful lookups for ttl. Directory records change
// rarely and are read on every booking.
type Cached struct {
	next  Directory
	cache *cache.Cache
}

// NewCached wraps next with an in-memory TTL cache.
func NewCached(next Directory, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: cache.New(ttl, 2*ttl)}
}

var _ Directory = (*Cached)(nil)

func (c *Cached) LookupDoctor(ctx context.Context, hospitalID, doctorID string) (Doctor, error) {
	key := "doctor:" + hospitalID + "|" + doctorID
	if v, ok := c.cache.Get(key); ok {
		return v.(Doctor), nil
	}
	doc, err := c.next.LookupDoctor(ctx, hospitalID, doctorID)
	if err != nil {
		return Doctor{}, err
	}
	c.cache.SetDefault(key, doc)
	return doc, nil
}

func (c *Cached) Availability(ctx context.Context, doctorID, date string) ([]parse.Window, error) {
	key := "availability:" + doctorID + "|" + date
	if v, ok := c.cache.Get(key); ok {
		return v.([]parse.Window), nil
	}
	windows, err := c.next.Availability(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, windows)
	return windows, nil
}

// Flush drops every cached entry.
func (c *Cached) Flush() { c.cache.Flush() }
