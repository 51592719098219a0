package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PhotosIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "eventface",
		Name:      "photos_ingested_total",
		Help:      "Total number of photos persisted with their face vectors",
	})

	VectorsStored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "eventface",
		Name:      "face_vectors_stored_total",
		Help:      "Total number of face vectors persisted",
	})

	IngestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventface",
		Name:      "ingest_failures_total",
		Help:      "Batch items that failed, by stage",
	}, []string{"stage"})

	BatchItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventface",
		Name:      "batch_items_total",
		Help:      "Batch items attempted, by outcome",
	}, []string{"outcome"})

	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "eventface",
		Name:      "search_duration_seconds",
		Help:      "Duration of event-scoped similarity searches",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	SearchScanned = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "eventface",
		Name:      "search_scanned_vectors",
		Help:      "Number of face vectors compared per search",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	})

	SearchMatches = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "eventface",
		Name:      "search_matched_photos",
		Help:      "Number of photos returned per search",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	EmbedDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "eventface",
		Name:      "embed_duration_seconds",
		Help:      "Duration of embedding provider stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "eventface",
		Name:      "batch_queue_depth",
		Help:      "Number of pending batch jobs in queue",
	})

	ActiveBatches = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "eventface",
		Name:      "active_batches",
		Help:      "Number of batches currently being processed",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "eventface",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "eventface",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
