package matcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ridesMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matcher_rides_matched_total",
		Help: "Ride requests that were assigned a driver",
	})

	ridesUnmatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matcher_rides_unmatched_total",
		Help: "Ride requests that found no driver in the search radius",
	})

	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "matcher_search_duration_seconds",
		Help:    "Time spent in the geo radius search",
		Buckets: prometheus.DefBuckets,
	})
)
