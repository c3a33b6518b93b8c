package config

import (
	battledomain "github.com/Franc-dev/donate-artist/internal/battle/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewCatalogHolder),
	fx.Provide(func(h *CatalogHolder) battledomain.Catalog { return h }),
)
