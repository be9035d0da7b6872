package search

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// PagerCache keeps pagers between requests so a client pages through one
// query object. Entries expire after the ttl or when the cache is full.
type PagerCache struct {
	cache *expirable.LRU[string, *Pager]
}

func NewPagerCache(size int, ttl time.Duration) *PagerCache {
	return &PagerCache{cache: expirable.NewLRU[string, *Pager](size, nil, ttl)}
}

// Add stores p under a new id and returns the id.
func (pc *PagerCache) Add(p *Pager) string {
	p.ID = uuid.NewString()
	pc.cache.Add(p.ID, p)
	return p.ID
}

func (pc *PagerCache) Get(id string) (*Pager, bool) {
	p, ok := pc.cache.Get(id)
	if !ok {
		pagerCacheMisses.Inc()
		return nil, false
	}
	pagerCacheHits.Inc()
	return p, true
}

func (pc *PagerCache) Remove(id string) bool {
	return pc.cache.Remove(id)
}

func (pc *PagerCache) Len() int {
	return pc.cache.Len()
}
