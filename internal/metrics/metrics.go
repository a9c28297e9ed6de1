package metrics

import "github.com/prometheus/client_golang/prometheus"

// Embedding and pipeline Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snapdex",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"kind", "status"}, // kind: text / image
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "snapdex",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	ImagesIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "snapdex",
			Name:      "images_ingested_total",
			Help:      "Total number of images successfully indexed",
		},
	)

	IngestFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snapdex",
			Name:      "ingest_failures_total",
			Help:      "Total number of per-file ingestion failures",
		},
		[]string{"reason"}, // read / decode / embed / upsert
	)

	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snapdex",
			Name:      "searches_total",
			Help:      "Total number of similarity searches",
		},
		[]string{"kind", "status"}, // kind: text / image
	)

	TranslationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snapdex",
			Name:      "translations_total",
			Help:      "Total number of query translation attempts",
		},
		[]string{"result"}, // applied / fallback
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(ImagesIngestedTotal)
	prometheus.MustRegister(IngestFailuresTotal)
	prometheus.MustRegister(SearchesTotal)
	prometheus.MustRegister(TranslationsTotal)
	pipelineMetricsRegistered = true
}
