//go:build wireinject

package app

import (
	"context"

	"github.com/google/wire"

	"newstrader/internal/config"
)

func buildAppWithWire(ctx context.Context, cfg *config.Config, opts []AppBuilderOption) (*App, error) {
	wire.Build(
		provideAppBuilder,
		wire.Bind(new(appBuilderDeps), new(*AppBuilder)),
		provideAppFromBuilder,
	)
	return nil, nil
}
