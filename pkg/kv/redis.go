package kv

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Franc-dev/donate-artist/internal/config"
)

var Module = fx.Module("kv",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
}

// New builds the shared Redis client. An unreachable server is logged at
// start-up but does not stop the process; every caller sees its own error.
func New(p Params) *redis.Client {
	client := NewClient(p.Config.Redis)
	log := p.Log.Named("kv")

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := client.Ping(pingCtx).Err(); err != nil {
				log.Warn("redis not reachable", zap.String("addr", p.Config.Redis.Addr), zap.Error(err))
				return nil
			}
			log.Info("redis connected", zap.String("addr", p.Config.Redis.Addr))
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

func NewClient(cfg config.RedisConfig) *redis.Client {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = "localhost:6379"
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Password),
		DB:       cfg.DB,
	})
}
