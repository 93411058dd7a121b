package usecase

import (
	"time"

	"BarSync/internal/domain/models"
)

type nopMetrics struct{}

func (nopMetrics) RecordSyncOutcome(models.SyncStatus)                     {}
func (nopMetrics) RecordFetchAttempt(models.BackendName, models.FetchKind) {}
func (nopMetrics) RecordUpsert(float64, error)                             {}
func (nopMetrics) RecordClassification(models.AuditStatus)                 {}
func (nopMetrics) RecordRunFinished(string, time.Time)                     {}
