package admin

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	appstateservice "github.com/Franc-dev/donate-artist/internal/appstate/service"
	ledgerdomain "github.com/Franc-dev/donate-artist/internal/ledger/domain"
	"github.com/Franc-dev/donate-artist/internal/payment/callback"
	userservice "github.com/Franc-dev/donate-artist/internal/user/service"
)

var Module = fx.Module("admin",
	fx.Provide(NewService),
)

// Resetter drops one slice of persisted state.
type Resetter interface {
	Reset(ctx context.Context) error
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Ledger    ledgerdomain.Store
	Callbacks *callback.Service
	Users     *userservice.Service
	State     *appstateservice.Store
}

// Service wipes the battle back to zero.
type Service struct {
	log    *zap.Logger
	ledger ledgerdomain.Store
	steps  []Step
}

// Step names a Resetter run by ClearAll.
type Step struct {
	Name     string
	Resetter Resetter
}

func NewService(p Params) *Service {
	return New(p.Ledger, p.Log,
		Step{Name: "callbacks", Resetter: p.Callbacks},
		Step{Name: "users", Resetter: p.Users},
		Step{Name: "app_state", Resetter: p.State},
	)
}

func New(ledger ledgerdomain.Store, log *zap.Logger, steps ...Step) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{log: log.Named("admin"), ledger: ledger, steps: steps}
}

// ClearAll empties the ledger first, then every other store in order. It
// stops at the first failure.
func (s *Service) ClearAll(ctx context.Context) error {
	if err := s.ledger.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}
	for _, st := range s.steps {
		if st.Resetter == nil {
			continue
		}
		if err := st.Resetter.Reset(ctx); err != nil {
			return fmt.Errorf("reset %s: %w", st.Name, err)
		}
	}
	s.log.Warn("battle state cleared")
	return nil
}
