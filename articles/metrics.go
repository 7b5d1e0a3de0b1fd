package articles

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revadops_article_cache_lookups_total",
			Help: "Article cache lookups by result (hit, miss).",
		},
		[]string{"result"},
	)

	cacheLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revadops_article_cache_loads_total",
			Help: "Article cache initializations by result (ok, error, discarded).",
		},
		[]string{"result"},
	)

	cacheReconciles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revadops_article_cache_reconciles_total",
			Help: "Reconciliation checks by outcome (fresh, replaced, removed, error).",
		},
		[]string{"outcome"},
	)

	fetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revadops_article_fetch_attempts_total",
			Help: "Per-base-URL article fetch attempts by result.",
		},
		[]string{"result"},
	)
)
