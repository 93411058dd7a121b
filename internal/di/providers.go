package di

import (
	"fmt"

	"BarSync/internal/domain/models"
	drepo "BarSync/internal/domain/repository"
	"BarSync/internal/export"
	"BarSync/internal/handler/api"
	internalrepo "BarSync/internal/repository"
	icache "BarSync/internal/service/cache"
	"BarSync/internal/service/lock"
	"BarSync/internal/service/ratelimit"
	"BarSync/internal/service/yahoo"
	"BarSync/internal/usecase"
	pcache "BarSync/pkg/cache"
	pkgch "BarSync/pkg/clickhouse"
	"BarSync/pkg/config"
	xhttp "BarSync/pkg/http"
	pkgkafka "BarSync/pkg/kafka"
	applogger "BarSync/pkg/logger"
	"BarSync/pkg/metrics"
	"BarSync/pkg/postgres"
	"BarSync/pkg/server"
	"BarSync/pkg/sqlite"
)

// ProvideLogger builds the app logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher ships run events to Kafka and attaches the error-log
// collector to the same producer. Without Kafka events are dropped.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer, l *applogger.Logger) drepo.EventPublisher {
	if producer == nil {
		return internalrepo.NopPublisher{}
	}
	l.AddCollector(&applogger.CollectionConfig{
		Topic:     cfg.Kafka.LogTopic,
		Publisher: producer,
	})
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topic)
}

// ProvideBarStore opens the configured store backend.
func ProvideBarStore(cfg *config.Config, l *applogger.Logger) (drepo.BarStore, func(), error) {
	sc := cfg.Store
	switch sc.Driver {
	case "clickhouse":
		client, err := pkgch.NewClient(
			pkgch.WithDSN(sc.DSN),
			pkgch.WithHost(sc.Host, sc.Port),
			pkgch.WithDatabase(sc.Database),
			pkgch.WithCredentials(sc.User, sc.Password),
			pkgch.WithMaxConnections(sc.MaxOpenConns, sc.MaxIdleConns),
			pkgch.WithTimeouts(sc.DialTimeout, sc.StatementTimeout),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		store, err := internalrepo.NewCHBarStore(client, sc.Table, l)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() { _ = client.Close() }, nil

	case "sqlite":
		db, err := sqlite.Open(sc.DSN)
		if err != nil {
			return nil, nil, err
		}
		store, err := internalrepo.NewSQLBarStore(db, internalrepo.DialectSQLite,
			internalrepo.WithTable(sc.Table),
			internalrepo.WithStatementTimeout(sc.StatementTimeout),
			internalrepo.WithStoreLogger(l),
		)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	default:
		client, err := postgres.NewClient(
			postgres.WithDSN(sc.DSN),
			postgres.WithHost(sc.Host, sc.Port),
			postgres.WithDatabase(sc.Database),
			postgres.WithCredentials(sc.User, sc.Password),
			postgres.WithSSLMode(sc.SSLMode),
			postgres.WithMaxConnections(sc.MaxOpenConns, sc.MaxIdleConns),
			postgres.WithTimeouts(sc.DialTimeout, sc.StatementTimeout),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres client: %w", err)
		}
		store, err := internalrepo.NewSQLBarStore(client.DB(), internalrepo.DialectPostgres,
			internalrepo.WithTable(sc.Table),
			internalrepo.WithStatementTimeout(sc.StatementTimeout),
			internalrepo.WithStoreLogger(l),
		)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() { _ = client.Close() }, nil
	}
}

// ProvideUniverse opens the identifier table.
func ProvideUniverse(cfg *config.Config) (drepo.Universe, func(), error) {
	uc := cfg.Universe
	cols := internalrepo.UniverseColumns{Group: uc.GroupColumn, Symbol: uc.SymbolColumn, Active: uc.ActiveColumn}

	if uc.Driver == "postgres" {
		client, err := postgres.NewClient(postgres.WithDSN(uc.DSN), postgres.WithMaxConnections(2, 1))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", models.ErrUniverseRead, err)
		}
		u, err := internalrepo.NewSQLUniverse(client.DB(), internalrepo.DialectPostgres, uc.Table, cols)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return u, func() { _ = client.Close() }, nil
	}

	db, err := sqlite.Open(uc.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", models.ErrUniverseRead, err)
	}
	u, err := internalrepo.NewSQLUniverse(db, internalrepo.DialectSQLite, uc.Table, cols)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return u, func() { _ = u.Close() }, nil
}

// ProvideCacheService picks Redis when enabled, otherwise an in-process cache.
func ProvideCacheService(cfg *config.Config) (pcache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		mc := pcache.NewMemoryCache()
		return mc, func() { _ = mc.Close() }, nil
	}
	rc, err := pcache.NewRedisCache(
		pcache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		pcache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		pcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

func ProvidePeriodCache(svc pcache.Service, cfg *config.Config) drepo.PeriodCache {
	return icache.NewPeriodCache(svc, cfg.Redis.CacheTTL)
}

func ProvideLocker(svc pcache.Service, cfg *config.Config) drepo.Locker {
	return lock.NewCacheLocker(svc, cfg.Sync.LockTTL)
}

// ProvideSources builds both provider backends.
func ProvideSources(cfg *config.Config, l *applogger.Logger) ([]drepo.Source, error) {
	yc := yahoo.Config{
		BaseURL:     cfg.Provider.BaseURL,
		SessionURL:  cfg.Provider.SessionURL,
		CrumbURL:    cfg.Provider.CrumbURL,
		UserAgent:   cfg.Provider.UserAgent,
		Timeout:     cfg.Provider.Timeout,
		DialTimeout: cfg.Provider.DialTimeout,
	}
	history, err := yahoo.NewHistoryClient(yc, l)
	if err != nil {
		return nil, fmt.Errorf("history client: %w", err)
	}
	return []drepo.Source{history, yahoo.NewChartClient(yc, l)}, nil
}

func ProvideRetryPolicy(cfg *config.Config) (usecase.RetryPolicy, error) {
	p, err := usecase.PolicyByName(cfg.Retry.Policy, cfg.Retry.MaxAttempts, cfg.Retry.Delay)
	if err != nil {
		return usecase.RetryPolicy{}, err
	}
	p.Exponential = cfg.Retry.Exponential
	p.MaxDelay = cfg.Retry.MaxDelay
	return p, nil
}

// ProvideFetchCoordinator paces every backend call with the request limiter.
func ProvideFetchCoordinator(
	cfg *config.Config,
	policy usecase.RetryPolicy,
	sources []drepo.Source,
	m drepo.Metrics,
	l *applogger.Logger,
) (*usecase.FetchCoordinator, error) {
	g := drepo.NormalizeGranularity(cfg.Sync.Granularity)
	return usecase.NewFetchCoordinator(policy, sources,
		usecase.NewNormalizer(nil, cfg.Sync.SkipOpenMonth),
		l,
		usecase.WithRequestLimiter(ratelimit.New(cfg.Sync.RequestDelay)),
		usecase.WithCoordinatorMetrics(m),
		usecase.WithGranularity(g),
	)
}

func ProvideReportWriter(cfg *config.Config, l *applogger.Logger) *export.Writer {
	return export.NewWriter(cfg.Output.Dir, l)
}

func ProvideSyncOrchestrator(
	cfg *config.Config,
	universe drepo.Universe,
	coordinator *usecase.FetchCoordinator,
	store drepo.BarStore,
	periods drepo.PeriodCache,
	locker drepo.Locker,
	writer *export.Writer,
	events drepo.EventPublisher,
	m drepo.Metrics,
	l *applogger.Logger,
) *usecase.SyncOrchestrator {
	return usecase.NewSyncOrchestrator(universe, coordinator, store, l,
		usecase.WithPeriodCache(periods),
		usecase.WithLocker(locker),
		usecase.WithManifestWriter(writer),
		usecase.WithSyncEvents(events),
		usecase.WithSyncMetrics(m),
		usecase.WithStartDate(cfg.StartTime()),
		usecase.WithTargetGranularity(drepo.NormalizeGranularity(cfg.Sync.Granularity), cfg.Sync.SkipOpenMonth),
		usecase.WithProgressEvery(cfg.Sync.ProgressEvery),
	)
}

func ProvideAuditScanner(
	cfg *config.Config,
	store drepo.BarStore,
	universe drepo.Universe,
	writer *export.Writer,
	events drepo.EventPublisher,
	m drepo.Metrics,
	l *applogger.Logger,
) *usecase.AuditScanner {
	return usecase.NewAuditScanner(store, l,
		usecase.WithAuditUniverse(universe),
		usecase.WithReportWriter(writer),
		usecase.WithAuditEvents(events),
		usecase.WithAuditMetrics(m),
		usecase.WithAuditLimits(cfg.Audit.Concurrency, cfg.Audit.QueryTimeout),
		usecase.WithDetailRecords(cfg.Audit.DetailRecords),
	)
}

func ProvideOpsHandler(
	l *applogger.Logger,
	store drepo.BarStore,
	sync *usecase.SyncOrchestrator,
	audit *usecase.AuditScanner,
) xhttp.Handler {
	return api.NewOpsHandler(l, store, sync, audit)
}

// ProvideApp creates the application.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	store drepo.BarStore,
	sync *usecase.SyncOrchestrator,
	audit *usecase.AuditScanner,
	events drepo.EventPublisher,
	handler xhttp.Handler,
) *server.App {
	return server.New(cfg, l, store, sync, audit, events, handler)
}
