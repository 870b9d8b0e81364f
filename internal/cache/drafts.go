package cache

import (
	"context"
	"fmt"
	"time"
)

// Drafts keeps per-operator editor snapshots under a sliding TTL.
type Drafts struct {
	cache *Cache
	ttl   time.Duration
}

func NewDrafts(c *Cache, ttl time.Duration) *Drafts {
	return &Drafts{cache: c, ttl: ttl}
}

// DraftKey scopes a draft to one junction and one operator.
func DraftKey(junctionID int64, subject string) string {
	return fmt.Sprintf("flextraff:draft:%d:%s", junctionID, subject)
}

func (d *Drafts) Load(ctx context.Context, key string, dest any) (bool, error) {
	return d.cache.Get(ctx, key, dest)
}

func (d *Drafts) Store(ctx context.Context, key string, state any) error {
	return d.cache.Set(ctx, key, state, d.ttl)
}

func (d *Drafts) Discard(ctx context.Context, key string) error {
	return d.cache.Delete(ctx, key)
}

// DashboardKey is the cache key of a dashboard snapshot; zero means all
// junctions.
func DashboardKey(junctionID int64) string {
	if junctionID == 0 {
		return "flextraff:dashboard:all"
	}
	return fmt.Sprintf("flextraff:dashboard:%d", junctionID)
}
