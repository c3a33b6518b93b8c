package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	battledomain "github.com/Franc-dev/donate-artist/internal/battle/domain"
	"github.com/Franc-dev/donate-artist/internal/clock"
	ledgerdomain "github.com/Franc-dev/donate-artist/internal/ledger/domain"
)

const (
	keyVoteLock = "vote:lock:%s:%s"
	voteLockTTL = 5 * time.Second
)

type VoteOutcome string

const (
	VoteCreated   VoteOutcome = "created"
	VoteSwitched  VoteOutcome = "switched"
	VoteFlipped   VoteOutcome = "flipped"
	VoteUnchanged VoteOutcome = "unchanged"
)

type CastVoteRequest struct {
	UserID   string                `json:"userId"`
	ArtistID string                `json:"artistId"`
	Type     ledgerdomain.VoteType `json:"type"`
}

type CastVoteResult struct {
	Vote     ledgerdomain.Vote  `json:"vote"`
	Previous *ledgerdomain.Vote `json:"previous,omitempty"`
	Outcome  VoteOutcome        `json:"outcome"`
}

// VoteCounter is told when a user casts their first vote in a battle.
type VoteCounter interface {
	IncrementVotes(ctx context.Context, userID string) error
}

type Params struct {
	fx.In

	Index   ledgerdomain.ActiveVoteIndex
	Locker  ledgerdomain.Locker
	Catalog battledomain.Catalog
	Clock   clock.Clock
	Log     *zap.Logger
	Users   VoteCounter `optional:"true"`
}

// Service enforces one active vote per user per battle on top of the
// append-only vote log.
type Service struct {
	index   ledgerdomain.ActiveVoteIndex
	locker  ledgerdomain.Locker
	catalog battledomain.Catalog
	clock   clock.Clock
	users   VoteCounter
	log     *zap.Logger
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		index:   p.Index,
		locker:  p.Locker,
		catalog: p.Catalog,
		clock:   clk,
		users:   p.Users,
		log:     log.Named("ledger.votes"),
	}
}

// CastVote applies a vote in the current battle. Switching artists retracts
// the previous vote's weight, repeating the same vote changes nothing and
// voting the opposite way on the same artist flips it.
func (s *Service) CastVote(ctx context.Context, req CastVoteRequest) (*CastVoteResult, error) {
	userID := strings.TrimSpace(req.UserID)
	artistID := strings.TrimSpace(req.ArtistID)
	if userID == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}
	if !req.Type.Valid() {
		return nil, ledgerdomain.ErrInvalidVoteType
	}

	battle := s.catalog.CurrentBattle()
	if !battle.IsActive {
		return nil, battledomain.ErrNoActiveBattle
	}
	if !battle.Includes(artistID) {
		return nil, battledomain.ErrArtistNotInBattle
	}

	lockKey := fmt.Sprintf(keyVoteLock, battle.ID, userID)
	token, ok, err := s.locker.TryLock(ctx, lockKey, voteLockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ledgerdomain.ErrVoteInProgress
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			s.log.Warn("release vote lock failed", zap.String("user_id", userID), zap.Error(err))
		}
	}()

	previous, err := s.index.ActiveVote(ctx, battle.ID, userID)
	if err != nil {
		return nil, err
	}
	if previous != nil && previous.ArtistID == artistID && previous.Type == req.Type {
		return &CastVoteResult{Vote: *previous, Previous: previous, Outcome: VoteUnchanged}, nil
	}

	outcome := VoteCreated
	if previous != nil {
		outcome = VoteSwitched
		if previous.ArtistID == artistID {
			outcome = VoteFlipped
		}
	}

	vote := ledgerdomain.Vote{
		ID:        ulid.MustNew(ulid.Timestamp(s.clock.Now()), rand.Reader).String(),
		ArtistID:  artistID,
		UserID:    userID,
		Type:      req.Type,
		Timestamp: s.clock.Now().UTC(),
	}
	if err := s.index.RecordVote(ctx, battle.ID, vote, previous); err != nil {
		return nil, err
	}

	if outcome == VoteCreated && s.users != nil {
		if err := s.users.IncrementVotes(ctx, userID); err != nil {
			s.log.Warn("increment user votes failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	s.log.Info("vote cast",
		zap.String("battle_id", battle.ID),
		zap.String("user_id", userID),
		zap.String("artist_id", artistID),
		zap.String("type", string(req.Type)),
		zap.String("outcome", string(outcome)),
	)

	return &CastVoteResult{Vote: vote, Previous: previous, Outcome: outcome}, nil
}
