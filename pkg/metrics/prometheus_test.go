package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"BarSync/internal/domain/models"
)

func TestRecorder(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())

	r.RecordSyncOutcome(models.StatusSynced)
	r.RecordSyncOutcome(models.StatusSynced)
	r.RecordSyncOutcome(models.StatusFailed)
	r.RecordFetchAttempt(models.BackendChart, models.FetchEmpty)
	r.RecordUpsert(0.2, errors.New("boom"))
	r.RecordClassification(models.AuditStale)
	r.RecordRunFinished("sync", time.Unix(1700000000, 0))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.syncOutcomes.WithLabelValues("synced")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.syncOutcomes.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fetchAttempts.WithLabelValues("chart", "empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.classifications.WithLabelValues("Stale")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(r.lastRun.WithLabelValues("sync")))
}
