package stats

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "departureboard"

var Registry = prometheus.NewRegistry()

var (
	FeedFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "livefeed",
		Name:      "fetches_total",
		Help:      "Upstream live feed fetches by outcome.",
	}, []string{"outcome"})
	FeedCacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "livefeed",
		Name:      "cache_hits_total",
		Help:      "Live feed requests answered from a cache, by cache layer.",
	}, []string{"layer"})
	FeedRecords = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "livefeed",
		Name:      "records",
		Help:      "Records in the most recent live feed snapshot, by kind.",
	}, []string{"kind"})
	FeedFetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "livefeed",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of upstream live feed fetches including parsing.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	Reloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "timetable",
		Name:      "reloads_total",
		Help:      "Timetable reloads by outcome.",
	}, []string{"outcome"})
	SnapshotSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "timetable",
		Name:      "snapshot_entities",
		Help:      "Entities in the serving timetable snapshot, by collection.",
	}, []string{"collection"})
	SkippedRows = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "timetable",
		Name:      "skipped_rows",
		Help:      "Rows skipped while parsing the serving timetable snapshot, by table.",
	}, []string{"table"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		FeedFetches, FeedCacheHits, FeedRecords, FeedFetchDuration,
		Reloads, SnapshotSize, SkippedRows,
	)
}

// ObserveFetch records the outcome and duration of one upstream fetch
func ObserveFetch(outcome string, started time.Time) {
	FeedFetches.WithLabelValues(outcome).Inc()
	FeedFetchDuration.Observe(time.Since(started).Seconds())
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
