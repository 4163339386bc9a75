package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector entanglementd exposes.
type Metrics struct {
	UploadsTotal      *prometheus.CounterVec
	UploadDuration    prometheus.Histogram
	BytesStoredTotal  prometheus.Counter
	ChunksWrittenTotal prometheus.Counter
	ChunksDedupedTotal prometheus.Counter

	ConflictsTotal *prometheus.CounterVec

	GCChunksReclaimedTotal     prometheus.Counter
	GCContainersCompactedTotal prometheus.Counter
	GCDuration                 prometheus.Histogram

	ShareValidationsTotal *prometheus.CounterVec

	ContainersOpen   prometheus.Gauge
	DiskSpaceUsed    prometheus.Gauge
}

// NewMetrics constructs and registers every collector against the default
// registry.
func NewMetrics() *Metrics {
	return &Metrics{
		UploadsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entanglement_uploads_total",
				Help: "Total uploads processed, by outcome.",
			},
			[]string{"outcome"},
		),
		UploadDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "entanglement_upload_duration_seconds",
				Help:    "Upload processing time distribution.",
				Buckets: prometheus.DefBuckets,
			},
		),
		BytesStoredTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "entanglement_bytes_stored_total",
				Help: "Total compressed bytes written to packfile containers.",
			},
		),
		ChunksWrittenTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "entanglement_chunks_written_total",
				Help: "Total new chunks written to storage.",
			},
		),
		ChunksDedupedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "entanglement_chunks_deduped_total",
				Help: "Total chunk references resolved without a new write.",
			},
		),
		ConflictsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entanglement_conflicts_total",
				Help: "Total sync conflicts detected, by kind.",
			},
			[]string{"kind"},
		),
		GCChunksReclaimedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "entanglement_gc_chunks_reclaimed_total",
				Help: "Total zero-refcount chunks deleted by garbage collection.",
			},
		),
		GCContainersCompactedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "entanglement_gc_containers_compacted_total",
				Help: "Total containers rewritten during compaction.",
			},
		),
		GCDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "entanglement_gc_duration_seconds",
				Help:    "Garbage collection pass duration distribution.",
				Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 300},
			},
		),
		ShareValidationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entanglement_share_validations_total",
				Help: "Total share token validations, by outcome.",
			},
			[]string{"outcome"},
		),
		ContainersOpen: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "entanglement_containers_open",
				Help: "Number of unsealed packfile containers.",
			},
		),
		DiskSpaceUsed: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "entanglement_disk_space_used_bytes",
				Help: "Bytes occupied by the packfile store on disk.",
			},
		),
	}
}

// Handler returns the HTTP handler serving /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
