package ledger

import (
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	ledgerdomain "github.com/Franc-dev/donate-artist/internal/ledger/domain"
	"github.com/Franc-dev/donate-artist/internal/ledger/repository"
	"github.com/Franc-dev/donate-artist/internal/ledger/service"
	"github.com/Franc-dev/donate-artist/internal/ratelimit"
)

var Module = fx.Module("ledger",
	fx.Provide(repository.NewRedisStore),
	fx.Provide(func(s *repository.RedisStore) ledgerdomain.Store { return s }),
	fx.Provide(func(s *repository.RedisStore) ledgerdomain.ActiveVoteIndex { return s }),
	fx.Provide(func(client *redis.Client) ledgerdomain.Locker { return ratelimit.NewLocker(client) }),
	fx.Provide(service.NewService),
)
