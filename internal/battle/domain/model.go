package domain

import (
	"errors"
	"time"
)

var (
	ErrArtistNotFound    = errors.New("artist_not_found")
	ErrArtistNotInBattle = errors.New("artist_not_in_battle")
	ErrNoActiveBattle    = errors.New("no_active_battle")
)

type SocialLinks struct {
	Instagram string `json:"instagram,omitempty" mapstructure:"instagram"`
	Twitter   string `json:"twitter,omitempty" mapstructure:"twitter"`
	Spotify   string `json:"spotify,omitempty" mapstructure:"spotify"`
	YouTube   string `json:"youtube,omitempty" mapstructure:"youtube"`
}

// Artist is the subject of votes and donations. Votes, TotalDonations and
// DonorCount are running counters owned by the ledger.
type Artist struct {
	ID          string      `json:"id" mapstructure:"id"`
	Slug        string      `json:"slug" mapstructure:"slug"`
	Name        string      `json:"name" mapstructure:"name"`
	Bio         string      `json:"bio" mapstructure:"bio"`
	Avatar      string      `json:"avatar" mapstructure:"avatar"`
	Genre       string      `json:"genre" mapstructure:"genre"`
	YouTubeURL  string      `json:"youtubeUrl" mapstructure:"youtubeUrl"`
	SocialLinks SocialLinks `json:"socialLinks" mapstructure:"socialLinks"`

	Votes          int64   `json:"votes" mapstructure:"-"`
	TotalDonations float64 `json:"totalDonations" mapstructure:"-"`
	DonorCount     int64   `json:"donorCount" mapstructure:"-"`
}

// Battle pairs exactly two artists.
type Battle struct {
	ID        string    `json:"id" mapstructure:"id"`
	Artist1ID string    `json:"artist1Id" mapstructure:"artist1Id"`
	Artist2ID string    `json:"artist2Id" mapstructure:"artist2Id"`
	StartDate time.Time `json:"startDate" mapstructure:"startDate"`
	EndDate   time.Time `json:"endDate" mapstructure:"endDate"`
	IsActive  bool      `json:"isActive" mapstructure:"isActive"`
}

// Includes reports whether the artist is one of the two contenders.
func (b Battle) Includes(artistID string) bool {
	return artistID != "" && (b.Artist1ID == artistID || b.Artist2ID == artistID)
}

// Opponent returns the other contender, or "" when artistID is not in the battle.
func (b Battle) Opponent(artistID string) string {
	switch artistID {
	case b.Artist1ID:
		return b.Artist2ID
	case b.Artist2ID:
		return b.Artist1ID
	default:
		return ""
	}
}

// Catalog exposes the configured artist profiles and the current battle.
type Catalog interface {
	Artists() []Artist
	Artist(id string) (Artist, error)
	CurrentBattle() Battle
}
