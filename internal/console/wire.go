//go:build wireinject
// +build wireinject

package console

import (
	"github.com/google/wire"

	"github.com/tair/product-console/internal/console/config"
)

// Wire sets
var InfrastructureSet = wire.NewSet(
	ProvideBackendClient,
	ProvideMetricsRegistry,
	ProvideMetrics,
	ProvideHub,
	ProvideRedis,
)

var ServiceSet = wire.NewSet(
	ProvideSessions,
	ProvideListener,
	ProvideHealth,
	ProvideApp,
)

// InitializeConsole initializes the console with all dependencies
func InitializeConsole(cfg *config.ConsoleConfig) (*Console, error) {
	wire.Build(
		InfrastructureSet,
		ServiceSet,
		NewConsole,
	)
	return nil, nil
}
