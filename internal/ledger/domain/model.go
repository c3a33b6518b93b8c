package domain

import (
	"context"
	"time"

	battledomain "github.com/Franc-dev/donate-artist/internal/battle/domain"
)

type VoteType string

const (
	VoteUp   VoteType = "upvote"
	VoteDown VoteType = "downvote"
)

func (t VoteType) Valid() bool {
	return t == VoteUp || t == VoteDown
}

// Weight is the effect of the vote on the artist's vote counter.
func (t VoteType) Weight() int64 {
	if t == VoteDown {
		return -1
	}
	return 1
}

type Vote struct {
	ID        string    `json:"id"`
	ArtistID  string    `json:"artistId"`
	UserID    string    `json:"userId"`
	Type      VoteType  `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

type DonationStatus string

const (
	DonationPending   DonationStatus = "pending"
	DonationCompleted DonationStatus = "completed"
	DonationFailed    DonationStatus = "failed"
)

func (s DonationStatus) Terminal() bool {
	return s == DonationCompleted || s == DonationFailed
}

type PaymentMethod string

const (
	PaymentMpesa   PaymentMethod = "mpesa"
	PaymentPesapal PaymentMethod = "pesapal"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMpesa || m == PaymentPesapal
}

// Donation is one donation attempt. Its ID doubles as the external reference
// sent to the gateway.
type Donation struct {
	ID              string         `json:"id"`
	ArtistID        string         `json:"artistId"`
	ArtistName      string         `json:"artistName"`
	Amount          float64        `json:"amount"`
	DonorName       string         `json:"donorName"`
	DonorEmail      string         `json:"donorEmail"`
	Message         string         `json:"message,omitempty"`
	Status          DonationStatus `json:"status"`
	PaymentMethod   PaymentMethod  `json:"paymentMethod"`
	TransactionID   string         `json:"transactionId,omitempty"`
	OrderTrackingID string         `json:"orderTrackingId,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// Snapshot is the full remote view returned by a sync.
type Snapshot struct {
	Artists   []battledomain.Artist `json:"artists"`
	Votes     []Vote                `json:"votes"`
	Donations []Donation            `json:"donations"`
	Timestamp time.Time             `json:"timestamp"`
}

// Store is the shared append-only log of votes and donations plus the
// per-artist counters derived from them. Counter updates must be atomic in
// the backing store.
type Store interface {
	AppendVote(ctx context.Context, vote Vote) error
	AppendDonation(ctx context.Context, donation Donation) error
	IncrementArtistVotes(ctx context.Context, artistID string, delta int64) error
	IncrementArtistDonations(ctx context.Context, artistID string, amount float64) error
	GetUserVote(ctx context.Context, artistID, userID string) (*Vote, error)
	GetUserVotes(ctx context.Context, artistID, userID string) ([]Vote, error)
	ClearAll(ctx context.Context) error
	SyncFromRemote(ctx context.Context) (Snapshot, error)
}

// ActiveVoteIndex tracks the single vote a user currently holds in a battle.
// RecordVote applies the whole vote change, including retracting previous,
// or none of it.
type ActiveVoteIndex interface {
	ActiveVote(ctx context.Context, battleID, userID string) (*Vote, error)
	RecordVote(ctx context.Context, battleID string, vote Vote, previous *Vote) error
}

// Locker serialises vote casting per user.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}
