package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registeredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "photobook",
		Name:      "photos_registered_total",
		Help:      "Originals stored and registered as PROCESSING.",
	})

	skippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "photobook",
		Name:      "ingest_skipped_total",
		Help:      "Uploaded items or archive entries that were not registered.",
	}, []string{"reason"})

	rescheduledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "photobook",
		Name:      "photos_rescheduled_total",
		Help:      "Stale PROCESSING photos scheduled again at startup.",
	})

	derivationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "photobook",
		Name:      "derivations_total",
		Help:      "Derivation outcomes by terminal status.",
	}, []string{"status"})

	derivationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "photobook",
		Name:      "derivation_duration_seconds",
		Help:      "Time spent deriving thumbnails and metadata for one photo.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"status"})

	inFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "photobook",
		Name:      "derivations_in_flight",
		Help:      "Derivation jobs currently running.",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "photobook",
		Name:      "pool_queue_depth",
		Help:      "Derivation jobs waiting in the in-process queue.",
	})

	urlCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "photobook",
		Name:      "url_cache_requests_total",
		Help:      "Presigned URL lookups by cache result.",
	}, []string{"result"})
)
