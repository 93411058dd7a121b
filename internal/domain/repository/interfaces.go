package repository

import (
	"context"
	"time"

	"BarSync/internal/domain/models"
)

// Source performs a single fetch attempt against one backend. It never writes.
type Source interface {
	Name() models.BackendName
	Fetch(ctx context.Context, symbol string, start, end time.Time) models.FetchOutcome
}

// BarStore persists canonical bars keyed by (symbol, period_end).
type BarStore interface {
	InitSchema(ctx context.Context) error
	Upsert(ctx context.Context, symbol, group string, bars []models.Bar) error
	LastPeriodEnd(ctx context.Context, symbol string) (time.Time, bool, error)
	ListSeries(ctx context.Context) ([]models.Series, error)
	// LatestBar returns nil, nil when the symbol has no rows.
	LatestBar(ctx context.Context, symbol string) (*models.Bar, error)
	// Bars returns up to limit of the most recent bars, newest first.
	Bars(ctx context.Context, symbol string, limit int) ([]models.Bar, error)
	MonthlyChanges(ctx context.Context, symbol string, limit int) ([]models.MonthlyChange, error)
	Health(ctx context.Context) error
	Close() error
}

// Universe supplies the tracked identifiers.
type Universe interface {
	Identifiers(ctx context.Context) ([]models.Identifier, error)
}

type Metrics interface {
	RecordSyncOutcome(status models.SyncStatus)
	RecordFetchAttempt(backend models.BackendName, kind models.FetchKind)
	RecordUpsert(seconds float64, err error)
	RecordClassification(status models.AuditStatus)
	RecordRunFinished(kind string, at time.Time)
}

// EventPublisher ships run events to downstream consumers.
type EventPublisher interface {
	PublishOutcome(ctx context.Context, o models.Outcome) error
	PublishRun(ctx context.Context, r *models.RunReport) error
	PublishAudit(ctx context.Context, r *models.AuditReport) error
	Close() error
}

// PeriodCache remembers the last synced period per symbol across runs.
type PeriodCache interface {
	LastPeriod(ctx context.Context, symbol string) (time.Time, bool)
	SetLastPeriod(ctx context.Context, symbol string, periodEnd time.Time) error
}

// Locker serializes work on one key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// ManifestWriter exports a run's failure manifest and returns the written paths.
type ManifestWriter interface {
	WriteManifest(m *models.Manifest, period time.Time) ([]string, error)
}

// ReportWriter exports an audit report and returns the written paths.
type ReportWriter interface {
	WriteAudit(r *models.AuditReport, period time.Time) ([]string, error)
}
