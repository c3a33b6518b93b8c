package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	battledomain "github.com/Franc-dev/donate-artist/internal/battle/domain"
	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/gosimple/slug"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BattleCatalog is the artist roster and the battle currently running.
type BattleCatalog struct {
	Artists []battledomain.Artist `mapstructure:"artists"`
	Battle  battledomain.Battle   `mapstructure:"current"`
}

func DefaultBattleCatalog(now time.Time) BattleCatalog {
	return BattleCatalog{
		Artists: []battledomain.Artist{
			{
				ID:         "1",
				Name:       "Bien Aime Baraza",
				Bio:        "Lead vocalist of Sauti Sol and solo artist known for his soulful voice and Afro-pop hits.",
				Genre:      "Afro-pop",
				YouTubeURL: "https://www.youtube.com/embed/uCTzC3y4kbU",
				SocialLinks: battledomain.SocialLinks{
					Instagram: "bienaimeb",
					Twitter:   "bienaimeb",
					Spotify:   "bien-aime-baraza",
				},
			},
			{
				ID:         "2",
				Name:       "Diamond Platnumz",
				Bio:        "Tanzanian bongo flava recording artist, dancer, philanthropist and businessman.",
				Genre:      "Bongo Flava",
				YouTubeURL: "https://www.youtube.com/embed/IokCG2J-_5Q",
				SocialLinks: battledomain.SocialLinks{
					Instagram: "diamondplatnumz",
					Twitter:   "diamondplatnumz",
					Spotify:   "diamond-platnumz",
				},
			},
		},
		Battle: battledomain.Battle{
			ID:        "battle-1",
			Artist1ID: "1",
			Artist2ID: "2",
			StartDate: now.UTC(),
			EndDate:   now.UTC().Add(24 * time.Hour),
			IsActive:  true,
		},
	}
}

type CatalogHolder struct {
	current atomic.Value // holds BattleCatalog
}

// NewCatalogHolder reads battle.yml (or BATTLE_CATALOG_PATH) and keeps it
// current while the file changes on disk. Without a file the built-in
// roster is used.
func NewCatalogHolder(cfg Config, log *zap.Logger) (*CatalogHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.catalog")

	v := viper.New()
	if cfg.CatalogPath != "" {
		v.SetConfigFile(cfg.CatalogPath)
	} else {
		v.SetConfigName("battle")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/donate-artist")
		v.AddConfigPath(".")
	}

	holder := &CatalogHolder{}

	if err := v.ReadInConfig(); err != nil {
		if !isMissingFile(err) {
			return nil, err
		}
		holder.current.Store(normalizeCatalog(DefaultBattleCatalog(time.Now())))
		log.Info("battle catalog file not found, using defaults")
		return holder, nil
	}

	catalog, err := decodeCatalog(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(catalog)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeCatalog(v)
		if err != nil {
			log.Warn("battle catalog reload failed", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("battle catalog reloaded", zap.String("file", filepath.Base(e.Name)))
	})

	return holder, nil
}

// NewStaticCatalog wraps a fixed catalog, used by tests and one-shot commands.
func NewStaticCatalog(catalog BattleCatalog) *CatalogHolder {
	holder := &CatalogHolder{}
	holder.current.Store(normalizeCatalog(catalog))
	return holder
}

func (h *CatalogHolder) Get() BattleCatalog {
	return h.current.Load().(BattleCatalog)
}

func (h *CatalogHolder) Artists() []battledomain.Artist {
	artists := h.Get().Artists
	out := make([]battledomain.Artist, len(artists))
	copy(out, artists)
	return out
}

func (h *CatalogHolder) Artist(id string) (battledomain.Artist, error) {
	for _, artist := range h.Get().Artists {
		if artist.ID == id {
			return artist, nil
		}
	}
	return battledomain.Artist{}, battledomain.ErrArtistNotFound
}

func (h *CatalogHolder) CurrentBattle() battledomain.Battle {
	return h.Get().Battle
}

func decodeCatalog(v *viper.Viper) (BattleCatalog, error) {
	var catalog BattleCatalog
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeHookFunc(time.RFC3339),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.UnmarshalKey("battle", &catalog, hook); err != nil {
		return BattleCatalog{}, err
	}
	catalog = normalizeCatalog(catalog)
	if err := validateCatalog(catalog); err != nil {
		return BattleCatalog{}, err
	}
	return catalog, nil
}

func normalizeCatalog(catalog BattleCatalog) BattleCatalog {
	for i := range catalog.Artists {
		catalog.Artists[i].ID = strings.TrimSpace(catalog.Artists[i].ID)
		if strings.TrimSpace(catalog.Artists[i].Slug) == "" {
			catalog.Artists[i].Slug = slug.Make(catalog.Artists[i].Name)
		}
	}
	return catalog
}

func validateCatalog(catalog BattleCatalog) error {
	if len(catalog.Artists) < 2 {
		return errors.New("battle.artists needs at least two artists")
	}
	known := make(map[string]struct{}, len(catalog.Artists))
	for _, artist := range catalog.Artists {
		if artist.ID == "" {
			return errors.New("battle.artists contains an artist without id")
		}
		known[artist.ID] = struct{}{}
	}
	b := catalog.Battle
	if b.ID == "" {
		return errors.New("battle.current.id is required")
	}
	if b.Artist1ID == b.Artist2ID {
		return errors.New("battle.current must pair two different artists")
	}
	for _, id := range []string{b.Artist1ID, b.Artist2ID} {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("battle.current references unknown artist %q", id)
		}
	}
	return nil
}

func isMissingFile(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}
