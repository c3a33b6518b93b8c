package gateway

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Franc-dev/donate-artist/internal/config"
	gatewaydomain "github.com/Franc-dev/donate-artist/internal/gateway/domain"
	"github.com/Franc-dev/donate-artist/internal/gateway/payhero"
	"github.com/Franc-dev/donate-artist/internal/gateway/pesapal"
	"github.com/Franc-dev/donate-artist/internal/observability/metrics"
)

var Module = fx.Module("gateway",
	fx.Provide(
		provideClient,
		func(c *Client) gatewaydomain.Client { return c },
	),
)

type Params struct {
	fx.In

	Config  config.Config
	Metrics *metrics.Metrics
	Log     *zap.Logger
}

func provideClient(p Params) *Client {
	return NewClient(
		payhero.NewClient(p.Config.PayHero),
		pesapal.NewClient(p.Config.Pesapal),
		p.Metrics,
		p.Log,
	)
}
