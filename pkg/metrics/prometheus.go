package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"BarSync/internal/domain/models"
)

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	syncOutcomes    *prometheus.CounterVec
	fetchAttempts   *prometheus.CounterVec
	upsertLatency   *prometheus.HistogramVec
	classifications *prometheus.CounterVec
	lastRun         *prometheus.GaugeVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		syncOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barsync_sync_outcomes_total",
				Help: "Per-symbol sync outcomes by status",
			},
			[]string{"status"},
		),
		fetchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barsync_fetch_attempts_total",
				Help: "Fetch attempts by backend and result",
			},
			[]string{"backend", "result"},
		),
		upsertLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "barsync_upsert_duration_seconds",
				Help:    "Duration of per-symbol upserts in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		classifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barsync_audit_classifications_total",
				Help: "Audit classifications by status",
			},
			[]string{"status"},
		),
		lastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "barsync_last_run_timestamp_seconds",
				Help: "Unix time the last pass of each kind finished",
			},
			[]string{"kind"},
		),
	}
	reg.MustRegister(r.syncOutcomes, r.fetchAttempts, r.upsertLatency, r.classifications, r.lastRun)
	return r
}

func (r *Recorder) RecordSyncOutcome(status models.SyncStatus) {
	r.syncOutcomes.WithLabelValues(string(status)).Inc()
}

func (r *Recorder) RecordFetchAttempt(backend models.BackendName, kind models.FetchKind) {
	r.fetchAttempts.WithLabelValues(string(backend), kind.String()).Inc()
}

func (r *Recorder) RecordUpsert(seconds float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.upsertLatency.WithLabelValues(result).Observe(seconds)
}

func (r *Recorder) RecordClassification(status models.AuditStatus) {
	r.classifications.WithLabelValues(string(status)).Inc()
}

func (r *Recorder) RecordRunFinished(kind string, at time.Time) {
	r.lastRun.WithLabelValues(kind).Set(float64(at.Unix()))
}
