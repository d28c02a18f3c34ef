//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/nexusim/nexusim/internal/config"
	"github.com/nexusim/nexusim/internal/core/events"
	"github.com/nexusim/nexusim/internal/host"
)

// InitializeHost assembles a fully wired simulation host from a config path.
func InitializeHost(configPath string) (*host.Host, error) {
	wire.Build(
		config.Load,
		host.ProvideLogger,
		events.New,
		host.New,
	)
	return nil, nil
}
