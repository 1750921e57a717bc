//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/hublink/hublink/internal/core/client"
	"github.com/hublink/hublink/internal/core/observability/log"
	"github.com/hublink/hublink/internal/core/transport"
)

func ProvideLogger() *log.Logger {
	wire.Build(log.Provide)
	return log.New(log.LevelDebug)
}

func ProvideClient(cfg client.Config, tr transport.Transport) (*client.Client, error) {
	wire.Build(client.New)
	return nil, nil
}
