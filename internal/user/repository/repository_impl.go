package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Franc-dev/donate-artist/internal/user/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO users (id, name, email, phone, total_donated, donation_count, votes_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Name,
		user.Email,
		user.Phone,
		user.TotalDonated,
		user.DonationCount,
		user.VotesCount,
		user.CreatedAt,
		user.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return r.findOne(ctx, db, `email = ?`, email)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.User, error) {
	var items []domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, email, phone, total_donated, donation_count, votes_count, created_at, updated_at
		 FROM users
		 WHERE `+where+`
		 LIMIT 1`,
		arg,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) UpdateProfile(ctx context.Context, db *gorm.DB, id, name, phone string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users
		 SET name = ?, phone = CASE WHEN ? = '' THEN phone ELSE ? END, updated_at = ?
		 WHERE id = ?`,
		name, phone, phone, now, id,
	).Error
}

func (r *repo) AddDonation(ctx context.Context, db *gorm.DB, id string, amount float64, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users
		 SET total_donated = total_donated + ?, donation_count = donation_count + 1, updated_at = ?
		 WHERE id = ?`,
		amount, now, id,
	).Error
}

func (r *repo) IncrementVotes(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE users SET votes_count = votes_count + 1, updated_at = ? WHERE id = ?`,
		now, id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) DeleteAll(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Exec(`DELETE FROM users`).Error
}
