package payment

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Franc-dev/donate-artist/internal/clock"
	"github.com/Franc-dev/donate-artist/internal/config"
	gatewaydomain "github.com/Franc-dev/donate-artist/internal/gateway/domain"
	"github.com/Franc-dev/donate-artist/internal/observability/metrics"
	"github.com/Franc-dev/donate-artist/internal/payment/callback"
	"github.com/Franc-dev/donate-artist/internal/payment/domain"
	"github.com/Franc-dev/donate-artist/internal/payment/poller"
	"github.com/Franc-dev/donate-artist/internal/payment/repository"
	"github.com/Franc-dev/donate-artist/internal/payment/status"
	"github.com/Franc-dev/donate-artist/internal/payment/statusbus"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(statusbus.New),
	fx.Provide(
		func(b *statusbus.Bus) domain.StatusPublisher { return b },
		func(b *statusbus.Bus) domain.StatusSubscriber { return b },
		func(c gatewaydomain.Client) gatewaydomain.PushGateway { return c },
	),
	fx.Provide(callback.NewService),
	fx.Provide(status.NewService),
	fx.Provide(providePoller),
)

func providePoller(cfg config.Config, source *status.Service, clk clock.Clock, m *metrics.PaymentMetrics, log *zap.Logger) *poller.Poller {
	return poller.New(source, clk, poller.Config{
		PendingInterval: cfg.Poll.PendingInterval,
		ErrorInterval:   cfg.Poll.ErrorInterval,
		Timeout:         cfg.Poll.Timeout,
	}, m, log)
}
