package searchcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promHits = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "searchcache",
		Name:      "hits_total",
	})
	promMisses = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "searchcache",
		Name:      "misses_total",
	})
	promInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "searchcache",
		Name:      "invalidations_total",
	})
	promInvalidatedEntries = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "searchcache",
		Name:      "invalidated_entries_total",
	})
)
