//go:build wireinject

package bootstrap

import (
	"context"

	"pricecheck-service/internal/application"
	httpserver "pricecheck-service/internal/infrastructure/http"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideConfig,
	ProvideRegistry,
	ProvideMetrics,
	ProvideStorage,
	ProvideRedisClient,
	ProvideSearchCache,
	ProvideProviders,
	ProvidePriceResolver,
	ProvideJudge,
	ProvideVerificationService,
)

// API injector: builds *httpserver.Server + Cleanup
func InitAPI(ctx context.Context) (*httpserver.Server, func(), error) {
	wire.Build(
		infraSet,
		ProvideIdempotency,
		ProvideServer,
	)
	return nil, nil, nil
}

// Worker injector: builds application.Worker + Cleanup
func InitWorker(ctx context.Context) (application.Worker, func(), error) {
	wire.Build(
		infraSet,
		ProvideWorker,
	)
	return nil, nil, nil
}
