package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Franc-dev/donate-artist/internal/appstate/domain"
	"github.com/Franc-dev/donate-artist/internal/appstate/repository"
	battledomain "github.com/Franc-dev/donate-artist/internal/battle/domain"
	"github.com/Franc-dev/donate-artist/internal/clock"
	"github.com/Franc-dev/donate-artist/internal/config"
	ledgerdomain "github.com/Franc-dev/donate-artist/internal/ledger/domain"
	userdomain "github.com/Franc-dev/donate-artist/internal/user/domain"
)

var testNow = time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Record{}))
	return db
}

func newStore(db *gorm.DB) *Store {
	return NewStore(Params{
		DB:      db,
		Log:     zap.NewNop(),
		Repo:    repository.Provide(),
		Catalog: config.NewStaticCatalog(config.DefaultBattleCatalog(testNow)),
		Clock:   clock.NewFakeClock(testNow),
	})
}

func TestDefaultsBeforeLoad(t *testing.T) {
	store := newStore(setupDB(t))
	require.NoError(t, store.Load(context.Background()))

	st := store.Snapshot()
	assert.True(t, st.ShowIntroModal)
	assert.Len(t, st.Artists, 2)
	require.NotNil(t, st.CurrentBattle)
	assert.Equal(t, "battle-1", st.CurrentBattle.ID)
	assert.Empty(t, st.Votes)
	assert.Nil(t, st.CurrentUser)
}

func TestMutationsSurviveReload(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	store := newStore(db)

	require.NoError(t, store.DismissIntro(ctx))
	require.NoError(t, store.SetCurrentUser(ctx, &userdomain.User{ID: "u1", Name: "Jane", Email: "jane@example.com"}))
	require.NoError(t, store.ReplaceLedger(ctx, ledgerdomain.Snapshot{
		Artists:   []battledomain.Artist{{ID: "1", Votes: 3}, {ID: "2", Votes: 1}},
		Votes:     []ledgerdomain.Vote{{ID: "v1", ArtistID: "1", UserID: "u1", Type: ledgerdomain.VoteUp}},
		Donations: []ledgerdomain.Donation{{ID: "d1", ArtistID: "2", Amount: 50}},
		Timestamp: testNow,
	}))

	reloaded := newStore(db)
	require.NoError(t, reloaded.Load(ctx))
	st := reloaded.Snapshot()

	assert.False(t, st.ShowIntroModal)
	require.NotNil(t, st.CurrentUser)
	assert.Equal(t, "u1", st.CurrentUser.ID)
	assert.Equal(t, int64(3), st.Artists[0].Votes)
	assert.Len(t, st.Votes, 1)
	assert.Len(t, st.Donations, 1)
	require.NotNil(t, st.LastSyncedAt)
	assert.True(t, st.LastSyncedAt.Equal(testNow))
}

func TestResetKeepsUser(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	store := newStore(db)

	require.NoError(t, store.SetCurrentUser(ctx, &userdomain.User{ID: "u1"}))
	require.NoError(t, store.ReplaceLedger(ctx, ledgerdomain.Snapshot{
		Artists: []battledomain.Artist{{ID: "1", Votes: 5}},
		Votes:   []ledgerdomain.Vote{{ID: "v1"}},
	}))
	require.NoError(t, store.Reset(ctx))

	st := store.Snapshot()
	assert.Empty(t, st.Votes)
	assert.Len(t, st.Artists, 2)
	for _, a := range st.Artists {
		assert.Zero(t, a.Votes)
	}
	require.NotNil(t, st.CurrentUser)
	assert.Nil(t, st.LastSyncedAt)
}

func TestSnapshotIsACopy(t *testing.T) {
	store := newStore(setupDB(t))
	st := store.Snapshot()
	st.Artists[0].Name = "changed"
	assert.NotEqual(t, "changed", store.Snapshot().Artists[0].Name)
}

func TestLoadIgnoresCorruptBlob(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	require.NoError(t, db.Exec(`INSERT INTO app_state (name, payload, updated_at) VALUES (?, ?, ?)`, domain.StateName, "{bad", testNow).Error)

	store := newStore(db)
	require.NoError(t, store.Load(ctx))
	assert.True(t, store.Snapshot().ShowIntroModal)
}
