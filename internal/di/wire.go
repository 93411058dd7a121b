//go:build wireinject
// +build wireinject

package di

import (
	"BarSync/pkg/config"
	"BarSync/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideCacheService,
		ProvideBarStore,
		ProvideUniverse,

		// Adapters
		ProvideEventPublisher,
		ProvidePeriodCache,
		ProvideLocker,
		ProvideSources,
		ProvideReportWriter,

		// Use cases
		ProvideRetryPolicy,
		ProvideFetchCoordinator,
		ProvideSyncOrchestrator,
		ProvideAuditScanner,

		// Application server
		ProvideOpsHandler,
		ProvideApp,
	)
	return nil, nil, nil
}
