package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const catalogYAML = `battle:
  artists:
    - id: "10"
      name: "Nyashinski"
      genre: "Hip-hop"
    - id: "11"
      name: "Nadia Mukami"
      slug: "nadia"
  current:
    id: "battle-7"
    artist1Id: "10"
    artist2Id: "11"
    startDate: "2025-03-01T00:00:00Z"
    endDate: "2025-03-02T00:00:00Z"
    isActive: true
`

func TestCatalogHolderReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battle.yml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))

	holder, err := NewCatalogHolder(Config{CatalogPath: path}, zap.NewNop())
	require.NoError(t, err)

	b := holder.CurrentBattle()
	assert.Equal(t, "battle-7", b.ID)
	assert.True(t, b.IsActive)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), b.StartDate.UTC())

	artist, err := holder.Artist("10")
	require.NoError(t, err)
	assert.Equal(t, "nyashinski", artist.Slug)

	artist, err = holder.Artist("11")
	require.NoError(t, err)
	assert.Equal(t, "nadia", artist.Slug)
}

func TestCatalogHolderFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yml")

	holder, err := NewCatalogHolder(Config{CatalogPath: path}, zap.NewNop())
	require.NoError(t, err)

	assert.Len(t, holder.Artists(), 2)
	assert.Equal(t, "battle-1", holder.CurrentBattle().ID)
	artist, err := holder.Artist("1")
	require.NoError(t, err)
	assert.Equal(t, "bien-aime-baraza", artist.Slug)
}

func TestValidateCatalogRejectsUnknownContender(t *testing.T) {
	catalog := DefaultBattleCatalog(time.Now())
	catalog.Battle.Artist2ID = "99"

	assert.Error(t, validateCatalog(catalog))
}
