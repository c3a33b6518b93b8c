package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidEmail = errors.New("invalid_email")
	ErrInvalidID    = errors.New("invalid_user_id")
	ErrNotFound     = errors.New("user_not_found")
)

// User is a donor or voter. Totals are updated when a donation is submitted,
// before the payment settles.
type User struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name          string    `json:"name" gorm:"type:varchar(255);not null"`
	Email         string    `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	Phone         string    `json:"phone,omitempty" gorm:"type:varchar(32)"`
	TotalDonated  float64   `json:"totalDonated" gorm:"not null;default:0"`
	DonationCount int64     `json:"donationCount" gorm:"not null;default:0"`
	VotesCount    int64     `json:"votesCount" gorm:"not null;default:0"`
	CreatedAt     time.Time `json:"createdAt" gorm:"not null"`
	UpdatedAt     time.Time `json:"updatedAt" gorm:"not null"`
}

func (User) TableName() string { return "users" }

type Profile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*User, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error)
	UpdateProfile(ctx context.Context, db *gorm.DB, id, name, phone string, now time.Time) error
	AddDonation(ctx context.Context, db *gorm.DB, id string, amount float64, now time.Time) error
	IncrementVotes(ctx context.Context, db *gorm.DB, id string, now time.Time) error
	DeleteAll(ctx context.Context, db *gorm.DB) error
}
