package search

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stacks_search_duration_seconds",
		Help:    "Time spent running library searches.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	pagerCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stacks_pager_cache_hits_total",
		Help: "Pager lookups served from the cache.",
	})
	pagerCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stacks_pager_cache_misses_total",
		Help: "Pager lookups for unknown or expired pagers.",
	})
)

func observeSearch(mode string, start time.Time) {
	if mode == "" {
		mode = ModeModular
	}
	searchDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}
