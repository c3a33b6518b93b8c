package appstate

import (
	"context"

	"go.uber.org/fx"

	"github.com/Franc-dev/donate-artist/internal/appstate/repository"
	"github.com/Franc-dev/donate-artist/internal/appstate/service"
)

var Module = fx.Module("appstate",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewStore),
	fx.Invoke(func(lc fx.Lifecycle, store *service.Store) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return store.Load(ctx)
			},
		})
	}),
)
