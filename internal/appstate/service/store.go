package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Franc-dev/donate-artist/internal/appstate/domain"
	battledomain "github.com/Franc-dev/donate-artist/internal/battle/domain"
	"github.com/Franc-dev/donate-artist/internal/clock"
	ledgerdomain "github.com/Franc-dev/donate-artist/internal/ledger/domain"
	userdomain "github.com/Franc-dev/donate-artist/internal/user/domain"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    domain.Repository
	Catalog battledomain.Catalog
	Clock   clock.Clock
}

// Store holds the application state in memory and writes it through to the
// database on every mutation.
type Store struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	catalog battledomain.Catalog
	clock   clock.Clock

	mu    sync.RWMutex
	state domain.State
}

func NewStore(p Params) *Store {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	s := &Store{
		db:      p.DB,
		log:     p.Log.Named("appstate"),
		repo:    p.Repo,
		catalog: p.Catalog,
		clock:   clk,
	}
	s.state = s.defaults()
	return s
}

func (s *Store) defaults() domain.State {
	state := domain.State{
		Votes:          []ledgerdomain.Vote{},
		Donations:      []ledgerdomain.Donation{},
		ShowIntroModal: true,
	}
	if s.catalog != nil {
		state.Artists = s.catalog.Artists()
		battle := s.catalog.CurrentBattle()
		state.CurrentBattle = &battle
	}
	if state.Artists == nil {
		state.Artists = []battledomain.Artist{}
	}
	return state
}

// Load replaces the in-memory state with the persisted blob. A missing or
// unreadable blob leaves the defaults in place.
func (s *Store) Load(ctx context.Context) error {
	record, err := s.repo.Load(ctx, s.db, domain.StateName)
	if err != nil {
		return fmt.Errorf("load app state: %w", err)
	}
	if record == nil {
		s.log.Info("no persisted app state, starting from defaults")
		return nil
	}

	state := s.defaults()
	if err := json.Unmarshal(record.Payload, &state); err != nil {
		s.log.Warn("discarding unreadable app state", zap.Error(err))
		return nil
	}

	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	return nil
}

// Snapshot returns a copy that callers may keep.
func (s *Store) Snapshot() domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneState(s.state)
}

// ReplaceLedger swaps in a fresh ledger snapshot wholesale.
func (s *Store) ReplaceLedger(ctx context.Context, snap ledgerdomain.Snapshot) error {
	return s.mutate(ctx, func(st *domain.State) {
		st.Artists = append([]battledomain.Artist{}, snap.Artists...)
		st.Votes = append([]ledgerdomain.Vote{}, snap.Votes...)
		st.Donations = append([]ledgerdomain.Donation{}, snap.Donations...)
		ts := snap.Timestamp
		st.LastSyncedAt = &ts
	})
}

func (s *Store) SetCurrentUser(ctx context.Context, user *userdomain.User) error {
	return s.mutate(ctx, func(st *domain.State) {
		if user == nil {
			st.CurrentUser = nil
			return
		}
		u := *user
		st.CurrentUser = &u
	})
}

func (s *Store) SetCurrentBattle(ctx context.Context, battle battledomain.Battle) error {
	return s.mutate(ctx, func(st *domain.State) {
		st.CurrentBattle = &battle
	})
}

func (s *Store) DismissIntro(ctx context.Context) error {
	return s.mutate(ctx, func(st *domain.State) {
		st.ShowIntroModal = false
	})
}

// Reset drops the cached ledger and restores catalog artists with zeroed
// counters. The current user and battle are kept.
func (s *Store) Reset(ctx context.Context) error {
	return s.mutate(ctx, func(st *domain.State) {
		fresh := s.defaults()
		st.Artists = fresh.Artists
		st.Votes = fresh.Votes
		st.Donations = fresh.Donations
		st.LastSyncedAt = nil
	})
}

func (s *Store) mutate(ctx context.Context, fn func(*domain.State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneState(s.state)
	fn(&next)

	payload, err := json.Marshal(next)
	if err != nil {
		return err
	}
	record := &domain.Record{
		Name:      domain.StateName,
		Payload:   datatypes.JSON(payload),
		UpdatedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.Save(ctx, s.db, record); err != nil {
		return fmt.Errorf("save app state: %w", err)
	}
	s.state = next
	return nil
}

func cloneState(in domain.State) domain.State {
	out := in
	out.Artists = append([]battledomain.Artist{}, in.Artists...)
	out.Votes = append([]ledgerdomain.Vote{}, in.Votes...)
	out.Donations = append([]ledgerdomain.Donation{}, in.Donations...)
	if in.CurrentUser != nil {
		u := *in.CurrentUser
		out.CurrentUser = &u
	}
	if in.CurrentBattle != nil {
		b := *in.CurrentBattle
		out.CurrentBattle = &b
	}
	if in.LastSyncedAt != nil {
		ts := *in.LastSyncedAt
		out.LastSyncedAt = &ts
	}
	return out
}
