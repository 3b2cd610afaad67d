package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promQueued = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "events",
		Name:      "queued_total",
	})
	promDropped = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "events",
		Name:      "dropped_total",
	})
	promDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "events",
		Name:      "delivered_total",
	})
	promDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "events",
		Name:      "duplicates_total",
	})
	promFailed = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "events",
		Name:      "failed_total",
	})
)
