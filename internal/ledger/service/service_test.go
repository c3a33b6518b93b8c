package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	battledomain "github.com/Franc-dev/donate-artist/internal/battle/domain"
	"github.com/Franc-dev/donate-artist/internal/clock"
	"github.com/Franc-dev/donate-artist/internal/config"
	ledgerdomain "github.com/Franc-dev/donate-artist/internal/ledger/domain"
	"github.com/Franc-dev/donate-artist/internal/ledger/repository"
	"github.com/Franc-dev/donate-artist/internal/ratelimit"
)

type countingUsers struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingUsers) IncrementVotes(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[userID]++
	return nil
}

type fixture struct {
	svc    *Service
	store  *repository.RedisStore
	mr     *miniredis.Miniredis
	client *redis.Client
	users  *countingUsers
}

func newFixture(t *testing.T, catalog config.BattleCatalog) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	holder := config.NewStaticCatalog(catalog)
	clk := clock.NewFakeClock(now)
	store := repository.NewRedisStore(client, holder, clk, nil, zap.NewNop())
	users := &countingUsers{}

	svc := NewService(Params{
		Index:   store,
		Locker:  ratelimit.NewLocker(client),
		Catalog: holder,
		Clock:   clk,
		Log:     zap.NewNop(),
		Users:   users,
	})
	return fixture{svc: svc, store: store, mr: mr, client: client, users: users}
}

func defaultCatalog() config.BattleCatalog {
	return config.DefaultBattleCatalog(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
}

func artistVotes(t *testing.T, f fixture) map[string]int64 {
	t.Helper()
	snap, err := f.store.SyncFromRemote(context.Background())
	require.NoError(t, err)
	out := map[string]int64{}
	for _, a := range snap.Artists {
		out[a.ID] = a.Votes
	}
	return out
}

func TestCastVoteCreatesVote(t *testing.T) {
	f := newFixture(t, defaultCatalog())
	ctx := context.Background()

	res, err := f.svc.CastVote(ctx, CastVoteRequest{UserID: "u1", ArtistID: "1", Type: ledgerdomain.VoteUp})
	require.NoError(t, err)
	assert.Equal(t, VoteCreated, res.Outcome)
	assert.Nil(t, res.Previous)
	assert.NotEmpty(t, res.Vote.ID)

	assert.Equal(t, map[string]int64{"1": 1, "2": 0}, artistVotes(t, f))
	assert.Equal(t, 1, f.users.calls["u1"])
	assert.False(t, f.mr.Exists("vote:lock:battle-1:u1"))
}

func TestCastVoteSameTypeIsNoop(t *testing.T) {
	f := newFixture(t, defaultCatalog())
	ctx := context.Background()

	first, err := f.svc.CastVote(ctx, CastVoteRequest{UserID: "u1", ArtistID: "1", Type: ledgerdomain.VoteUp})
	require.NoError(t, err)
	again, err := f.svc.CastVote(ctx, CastVoteRequest{UserID: "u1", ArtistID: "1", Type: ledgerdomain.VoteUp})
	require.NoError(t, err)

	assert.Equal(t, VoteUnchanged, again.Outcome)
	assert.Equal(t, first.Vote.ID, again.Vote.ID)
	assert.Equal(t, int64(1), artistVotes(t, f)["1"])

	votes, err := f.store.GetUserVotes(ctx, "1", "u1")
	require.NoError(t, err)
	assert.Len(t, votes, 1)
}

func TestCastVoteFlipsOnSameArtist(t *testing.T) {
	f := newFixture(t, defaultCatalog())
	ctx := context.Background()

	_, err := f.svc.CastVote(ctx, CastVoteRequest{UserID: "u1", ArtistID: "1", Type: ledgerdomain.VoteUp})
	require.NoError(t, err)
	res, err := f.svc.CastVote(ctx, CastVoteRequest{UserID: "u1", ArtistID: "1", Type: ledgerdomain.VoteDown})
	require.NoError(t, err)

	assert.Equal(t, VoteFlipped, res.Outcome)
	assert.Equal(t, int64(-1), artistVotes(t, f)["1"])

	latest, err := f.store.GetUserVote(ctx, "1", "u1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, ledgerdomain.VoteDown, latest.Type)
	assert.Equal(t, 1, f.users.calls["u1"])
}

func TestCastVoteSwitchRetractsPrevious(t *testing.T) {
	f := newFixture(t, defaultCatalog())
	ctx := context.Background()

	_, err := f.svc.CastVote(ctx, CastVoteRequest{UserID: "u1", ArtistID: "1", Type: ledgerdomain.VoteUp})
	require.NoError(t, err)
	res, err := f.svc.CastVote(ctx, CastVoteRequest{UserID: "u1", ArtistID: "2", Type: ledgerdomain.VoteUp})
	require.NoError(t, err)

	assert.Equal(t, VoteSwitched, res.Outcome)
	require.NotNil(t, res.Previous)
	assert.Equal(t, "1", res.Previous.ArtistID)
	assert.Equal(t, map[string]int64{"1": 0, "2": 1}, artistVotes(t, f))

	active, err := f.store.ActiveVote(ctx, "battle-1", "u1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "2", active.ArtistID)
}

type failingIndex struct {
	*repository.RedisStore
	err error
}

func (f failingIndex) RecordVote(context.Context, string, ledgerdomain.Vote, *ledgerdomain.Vote) error {
	return f.err
}

func TestCastVoteSwitchFailureKeepsPreviousVote(t *testing.T) {
	f := newFixture(t, defaultCatalog())
	ctx := context.Background()

	_, err := f.svc.CastVote(ctx, CastVoteRequest{UserID: "u1", ArtistID: "1", Type: ledgerdomain.VoteUp})
	require.NoError(t, err)

	writeErr := errors.New("connection reset")
	broken := NewService(Params{
		Index:   failingIndex{RedisStore: f.store, err: writeErr},
		Locker:  ratelimit.NewLocker(f.client),
		Catalog: config.NewStaticCatalog(defaultCatalog()),
		Clock:   clock.NewFakeClock(time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)),
		Log:     zap.NewNop(),
		Users:   f.users,
	})
	_, err = broken.CastVote(ctx, CastVoteRequest{UserID: "u1", ArtistID: "2", Type: ledgerdomain.VoteUp})
	require.ErrorIs(t, err, writeErr)

	assert.Equal(t, map[string]int64{"1": 1, "2": 0}, artistVotes(t, f))
	active, err := f.store.ActiveVote(ctx, "battle-1", "u1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "1", active.ArtistID)
	assert.False(t, f.mr.Exists("vote:lock:battle-1:u1"))

	res, err := f.svc.CastVote(ctx, CastVoteRequest{UserID: "u1", ArtistID: "2", Type: ledgerdomain.VoteUp})
	require.NoError(t, err)
	assert.Equal(t, VoteSwitched, res.Outcome)
	assert.Equal(t, map[string]int64{"1": 0, "2": 1}, artistVotes(t, f))
}

func TestCastVoteValidation(t *testing.T) {
	f := newFixture(t, defaultCatalog())
	ctx := context.Background()

	_, err := f.svc.CastVote(ctx, CastVoteRequest{UserID: "", ArtistID: "1", Type: ledgerdomain.VoteUp})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidUser)

	_, err = f.svc.CastVote(ctx, CastVoteRequest{UserID: "u1", ArtistID: "1", Type: "sideways"})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidVoteType)

	_, err = f.svc.CastVote(ctx, CastVoteRequest{UserID: "u1", ArtistID: "9", Type: ledgerdomain.VoteUp})
	assert.ErrorIs(t, err, battledomain.ErrArtistNotInBattle)
}

func TestCastVoteRejectsInactiveBattle(t *testing.T) {
	catalog := defaultCatalog()
	catalog.Battle.IsActive = false
	f := newFixture(t, catalog)

	_, err := f.svc.CastVote(context.Background(), CastVoteRequest{UserID: "u1", ArtistID: "1", Type: ledgerdomain.VoteUp})
	assert.ErrorIs(t, err, battledomain.ErrNoActiveBattle)
}

func TestCastVoteHeldLock(t *testing.T) {
	f := newFixture(t, defaultCatalog())
	require.NoError(t, f.mr.Set("vote:lock:battle-1:u1", "other"))

	_, err := f.svc.CastVote(context.Background(), CastVoteRequest{UserID: "u1", ArtistID: "1", Type: ledgerdomain.VoteUp})
	assert.ErrorIs(t, err, ledgerdomain.ErrVoteInProgress)
}
