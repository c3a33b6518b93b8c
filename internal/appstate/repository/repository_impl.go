package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Franc-dev/donate-artist/internal/appstate/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Load(ctx context.Context, db *gorm.DB, name string) (*domain.Record, error) {
	var items []domain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT name, payload, updated_at FROM app_state WHERE name = ? LIMIT 1`,
		name,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, record *domain.Record) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
		}).
		Create(record).Error
}
