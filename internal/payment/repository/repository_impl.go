package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Franc-dev/donate-artist/internal/payment/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// InsertCallback reports false when a callback with the same
// CheckoutRequestID was already stored.
func (r *repo) InsertCallback(ctx context.Context, db *gorm.DB, record *domain.CallbackRecord) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "checkout_request_id"}}, DoNothing: true}).
		Create(record)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) LatestCallback(ctx context.Context, db *gorm.DB, externalReference string) (*domain.CallbackRecord, error) {
	var items []domain.CallbackRecord
	err := db.WithContext(ctx).Raw(
		`SELECT checkout_request_id, external_reference, result_code, result_desc,
			bucket, message, amount, mpesa_receipt_number, phone_number,
			transaction_date, payload, received_at
		 FROM payment_callbacks
		 WHERE external_reference = ?
		 ORDER BY received_at DESC
		 LIMIT 1`,
		externalReference,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) DeleteAll(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Exec(`DELETE FROM payment_callbacks`).Error
}
