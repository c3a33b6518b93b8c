package donation

import (
	"context"

	"go.uber.org/fx"

	"github.com/Franc-dev/donate-artist/internal/donation/service"
	"github.com/Franc-dev/donate-artist/internal/ratelimit"
	userservice "github.com/Franc-dev/donate-artist/internal/user/service"
)

var Module = fx.Module("donation.coordinator",
	fx.Provide(
		func(l *ratelimit.DonorLock) service.DonorLocker { return l },
		func(s *userservice.Service) service.DonorRecorder { return s },
	),
	fx.Provide(service.NewCoordinator),
	fx.Invoke(func(lc fx.Lifecycle, c *service.Coordinator) {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				c.Close()
				return nil
			},
		})
	}),
)
