package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SnapshotLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raisu_snapshot_loads_total",
			Help: "no. of snapshot loads by outcome (ok or the failing stage)",
		},
		[]string{"outcome"},
	)
	SnapshotComponents = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "raisu_snapshot_components",
		Help:    "components per decoded snapshot",
		Buckets: prometheus.ExponentialBuckets(1, 4, 7),
	})
	SchemaWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raisu_schema_warnings_total",
			Help: "no. of soft schema warnings by kind",
		},
		[]string{"kind"},
	)
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raisu_fetch_duration_seconds",
			Help:    "paste provider fetch latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "result"},
	)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raisu_cache_hits_total",
			Help: "no. of envelope cache hits by tier",
		},
		[]string{"tier"},
	)
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "raisu_cache_misses_total",
		Help: "no. of envelope cache misses",
	})
	PasteCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "raisu_paste_created_total",
		Help: "no. of pastes created",
	})
	PasteServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "raisu_paste_served_total",
		Help: "no. of pastes served",
	})
	PasteDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "raisu_paste_deleted_total",
		Help: "no. of pastes deleted by token",
	})
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raisu_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raisu_rate_limit_hits_total",
			Help: "no. of rate limit violations",
		},
		[]string{"endpoint"},
	)
	PruneCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "raisu_prune_cycles_total",
		Help: "no. of cleanup worker cycles",
	})
	PrunedPastes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "raisu_pruned_pastes_total",
		Help: "no. of expired pastes removed",
	})
	EncryptionOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raisu_encryption_operations_total",
			Help: "no. of at-rest seal/open operations",
		},
		[]string{"operation"},
	)
	RecentErrorRatePercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "raisu_recent_error_rate_percent",
		Help: "5min rolling error rate percentage",
	})
)
