package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Franc-dev/donate-artist/internal/clock"
	"github.com/Franc-dev/donate-artist/internal/config"
	ledgerdomain "github.com/Franc-dev/donate-artist/internal/ledger/domain"
)

var testNow = time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	catalog := config.NewStaticCatalog(config.DefaultBattleCatalog(testNow))
	return NewRedisStore(client, catalog, clock.NewFakeClock(testNow), nil, zap.NewNop()), mr
}

func TestAppendKeepsInsertionOrder(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"d1", "d2", "d3"} {
		require.NoError(t, store.AppendDonation(ctx, ledgerdomain.Donation{ID: id, ArtistID: "1", Amount: 10, Status: ledgerdomain.DonationCompleted}))
	}
	snap, err := store.SyncFromRemote(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Donations, 3)
	assert.Equal(t, "d1", snap.Donations[0].ID)
	assert.Equal(t, "d3", snap.Donations[2].ID)
}

func TestCountersAreIncrementedAtomically(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.IncrementArtistVotes(ctx, "1", 1))
	require.NoError(t, store.IncrementArtistVotes(ctx, "1", 1))
	require.NoError(t, store.IncrementArtistVotes(ctx, "2", -1))
	require.NoError(t, store.IncrementArtistDonations(ctx, "1", 500))
	require.NoError(t, store.IncrementArtistDonations(ctx, "1", 99.5))

	snap, err := store.SyncFromRemote(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Artists, 2)
	assert.Equal(t, int64(2), snap.Artists[0].Votes)
	assert.Equal(t, 599.5, snap.Artists[0].TotalDonations)
	assert.Equal(t, int64(2), snap.Artists[0].DonorCount)
	assert.Equal(t, int64(-1), snap.Artists[1].Votes)
	assert.Equal(t, testNow, snap.Timestamp)

	got, err := mr.Get("artist:1:donors")
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}

func TestIncrementValidation(t *testing.T) {
	store, _ := newTestStore(t)
	assert.ErrorIs(t, store.IncrementArtistVotes(context.Background(), " ", 1), ledgerdomain.ErrInvalidArtist)
	assert.ErrorIs(t, store.IncrementArtistDonations(context.Background(), "1", 0), ledgerdomain.ErrInvalidAmount)
}

func TestUserVoteLookups(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendVote(ctx, ledgerdomain.Vote{ID: "v1", ArtistID: "1", UserID: "u1", Type: ledgerdomain.VoteUp}))
	require.NoError(t, store.AppendVote(ctx, ledgerdomain.Vote{ID: "v2", ArtistID: "2", UserID: "u1", Type: ledgerdomain.VoteUp}))
	require.NoError(t, store.AppendVote(ctx, ledgerdomain.Vote{ID: "v3", ArtistID: "1", UserID: "u1", Type: ledgerdomain.VoteDown}))

	vote, err := store.GetUserVote(ctx, "1", "u1")
	require.NoError(t, err)
	require.NotNil(t, vote)
	assert.Equal(t, "v3", vote.ID)

	votes, err := store.GetUserVotes(ctx, "1", "u1")
	require.NoError(t, err)
	assert.Len(t, votes, 2)

	none, err := store.GetUserVote(ctx, "1", "u2")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestActiveVoteIndex(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	v, err := store.ActiveVote(ctx, "battle-1", "u1")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, store.RecordVote(ctx, "battle-1", ledgerdomain.Vote{ID: "v1", ArtistID: "2", UserID: "u1", Type: ledgerdomain.VoteDown}, nil))
	v, err = store.ActiveVote(ctx, "battle-1", "u1")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "2", v.ArtistID)
}

func TestRecordVoteMovesWeightInOneWrite(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	first := ledgerdomain.Vote{ID: "v1", ArtistID: "1", UserID: "u1", Type: ledgerdomain.VoteUp}
	require.NoError(t, store.RecordVote(ctx, "battle-1", first, nil))
	second := ledgerdomain.Vote{ID: "v2", ArtistID: "2", UserID: "u1", Type: ledgerdomain.VoteUp}
	require.NoError(t, store.RecordVote(ctx, "battle-1", second, &first))

	one, err := mr.Get("artist:1:votes")
	require.NoError(t, err)
	assert.Equal(t, "0", one)
	two, err := mr.Get("artist:2:votes")
	require.NoError(t, err)
	assert.Equal(t, "1", two)

	logged, err := mr.List("votes")
	require.NoError(t, err)
	assert.Len(t, logged, 2)

	active, err := store.ActiveVote(ctx, "battle-1", "u1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "v2", active.ID)
}

func TestRecordVoteFailureWritesNothing(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	first := ledgerdomain.Vote{ID: "v1", ArtistID: "1", UserID: "u1", Type: ledgerdomain.VoteUp}
	require.NoError(t, store.RecordVote(ctx, "battle-1", first, nil))

	mr.SetError("READONLY You can't write against a read only replica")
	err := store.RecordVote(ctx, "battle-1", ledgerdomain.Vote{ID: "v2", ArtistID: "2", UserID: "u1", Type: ledgerdomain.VoteUp}, &first)
	require.Error(t, err)
	mr.SetError("")

	one, err := mr.Get("artist:1:votes")
	require.NoError(t, err)
	assert.Equal(t, "1", one)
	assert.False(t, mr.Exists("artist:2:votes"))
	logged, err := mr.List("votes")
	require.NoError(t, err)
	assert.Len(t, logged, 1)

	active, err := store.ActiveVote(ctx, "battle-1", "u1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "v1", active.ID)
}

func TestRecordVoteRequiresArtist(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.RecordVote(context.Background(), "battle-1", ledgerdomain.Vote{ID: "v1", UserID: "u1", Type: ledgerdomain.VoteUp}, nil)
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidArtist)
}

func TestClearAllThenSyncIsEmpty(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendVote(ctx, ledgerdomain.Vote{ID: "v1", ArtistID: "1", UserID: "u1", Type: ledgerdomain.VoteUp}))
	require.NoError(t, store.AppendDonation(ctx, ledgerdomain.Donation{ID: "d1", ArtistID: "2", Amount: 100}))
	require.NoError(t, store.IncrementArtistVotes(ctx, "1", 1))
	require.NoError(t, store.IncrementArtistDonations(ctx, "2", 100))
	require.NoError(t, store.RecordVote(ctx, "battle-1", ledgerdomain.Vote{ID: "v2", ArtistID: "2", UserID: "u1", Type: ledgerdomain.VoteUp}, nil))
	require.NoError(t, mr.Set("unrelated", "keep"))

	require.NoError(t, store.ClearAll(ctx))

	snap, err := store.SyncFromRemote(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Votes)
	assert.Empty(t, snap.Donations)
	for _, a := range snap.Artists {
		assert.Zero(t, a.Votes)
		assert.Zero(t, a.TotalDonations)
		assert.Zero(t, a.DonorCount)
	}
	assert.False(t, mr.Exists("battle:battle-1:active_votes"))
	assert.True(t, mr.Exists("unrelated"))
}

func TestSyncSkipsMalformedEntries(t *testing.T) {
	store, mr := newTestStore(t)
	_, err := mr.Lpush("votes", "{not json")
	require.NoError(t, err)

	snap, err := store.SyncFromRemote(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Votes)
}
