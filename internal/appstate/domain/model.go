package domain

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	battledomain "github.com/Franc-dev/donate-artist/internal/battle/domain"
	ledgerdomain "github.com/Franc-dev/donate-artist/internal/ledger/domain"
	userdomain "github.com/Franc-dev/donate-artist/internal/user/domain"
)

// StateName is the key the application blob is persisted under.
const StateName = "artist-battle-store"

// State is the cached application view: the last ledger snapshot plus the
// session-level selections.
type State struct {
	Artists        []battledomain.Artist   `json:"artists"`
	Votes          []ledgerdomain.Vote     `json:"votes"`
	Donations      []ledgerdomain.Donation `json:"donations"`
	CurrentUser    *userdomain.User        `json:"currentUser"`
	CurrentBattle  *battledomain.Battle    `json:"currentBattle"`
	ShowIntroModal bool                    `json:"showIntroModal"`
	LastSyncedAt   *time.Time              `json:"lastSyncedAt,omitempty"`
}

// Record is the persisted row for a named state blob.
type Record struct {
	Name      string         `gorm:"primaryKey;type:varchar(128)"`
	Payload   datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

func (Record) TableName() string { return "app_state" }

type Repository interface {
	Load(ctx context.Context, db *gorm.DB, name string) (*Record, error)
	Save(ctx context.Context, db *gorm.DB, record *Record) error
}
