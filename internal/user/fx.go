package user

import (
	"go.uber.org/fx"

	ledgerservice "github.com/Franc-dev/donate-artist/internal/ledger/service"
	"github.com/Franc-dev/donate-artist/internal/user/repository"
	"github.com/Franc-dev/donate-artist/internal/user/service"
)

var Module = fx.Module("user.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) ledgerservice.VoteCounter { return s }),
)
