//go:build wireinject
// +build wireinject

package di

import (
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/config"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideCache,

		ProvideClickHouseClient,
		ProvideSignalStore,

		ProvideFetcher,
		ProvideMarketDataService,

		ProvideSignalArchiver,
		ProvideQueue,

		ProvideStockAnalytics,
		ProvideHTTPHandler,

		ProvideApp,
	)
	return &server.App{}, nil
}
