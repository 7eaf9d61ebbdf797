package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "listingd"

var (
	// Batches counts marketplace batch calls by operation and outcome (ok, rate_limited, error)
	Batches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_total",
		Help:      "Marketplace batch calls by operation and outcome.",
	}, []string{"op", "outcome"})

	// BatchDuration observes marketplace call latency
	BatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_duration_seconds",
		Help:      "Marketplace batch call latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	// Listings counts per-listing results of create batches by result (created, updated, failed, cap_reached)
	Listings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "listings_total",
		Help:      "Per-listing create results.",
	}, []string{"result"})

	// ReservoirPenalties counts rate-limit penalties applied to account reservoirs
	ReservoirPenalties = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reservoir_penalties_total",
		Help:      "Rate-limit penalties applied to account reservoirs.",
	})

	// ReservoirEmpty counts jobs deferred because the account had no token
	ReservoirEmpty = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reservoir_empty_total",
		Help:      "Jobs deferred for lack of reservoir tokens.",
	}, []string{"op"})

	// JobRetries counts failed job runs that were rescheduled
	JobRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_retries_total",
		Help:      "Job runs rescheduled after an error.",
	}, []string{"op"})

	// JobsAbandoned counts jobs dropped after exceeding their max age
	JobsAbandoned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_abandoned_total",
		Help:      "Jobs dropped after exceeding their max age.",
	}, []string{"op"})

	// DesiredChanges counts desired listings accepted by the reconciler by result (changed, unchanged, removed)
	DesiredChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "desired_changes_total",
		Help:      "Desired listings processed by the reconciler.",
	}, []string{"result"})
)

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
