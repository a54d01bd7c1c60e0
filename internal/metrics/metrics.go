package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PagesFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "magpie_pages_fetched_total",
		Help: "Total feed pages fetched",
	}, []string{"endpoint"})
	DocumentsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "magpie_documents_created_total",
		Help: "Total documents newly archived",
	}, []string{"kind"})
	DocumentsDuplicate = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "magpie_documents_duplicate_total",
		Help: "Total persists resolved as already present",
	}, []string{"kind"})
	PersistErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "magpie_persist_errors_total",
		Help: "Total persistence errors",
	})
	QueuePlaceholders = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "magpie_queue_placeholders_total",
		Help: "Total backup-queue placeholders written",
	}, []string{"kind"})
	DrainFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "magpie_drain_fetches_total",
		Help: "Total queued entities fetched by the drain job",
	}, []string{"kind"})
	BackfillDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "magpie_backfill_duration_seconds",
		Help:    "Backfill run duration seconds",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(PagesFetched, DocumentsCreated, DocumentsDuplicate,
		PersistErrors, QueuePlaceholders, DrainFetches, BackfillDuration)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// ObserveBackfillDuration records a run duration.
func ObserveBackfillDuration(start time.Time) {
	BackfillDuration.Observe(time.Since(start).Seconds())
}
