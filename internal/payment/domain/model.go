package domain

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Franc-dev/donate-artist/internal/payment/classifier"
)

// CallbackRecord is one inbound gateway callback, stored once per
// CheckoutRequestID.
type CallbackRecord struct {
	CheckoutRequestID  string         `json:"checkoutRequestId" gorm:"primaryKey;type:varchar(128)"`
	ExternalReference  string         `json:"externalReference" gorm:"type:varchar(128);index"`
	ResultCode         int            `json:"resultCode" gorm:"not null"`
	ResultDesc         string         `json:"resultDesc" gorm:"type:text"`
	Bucket             string         `json:"bucket" gorm:"type:varchar(16);not null"`
	Message            string         `json:"message" gorm:"type:text"`
	Amount             float64        `json:"amount"`
	MpesaReceiptNumber string         `json:"mpesaReceiptNumber" gorm:"type:varchar(64)"`
	PhoneNumber        string         `json:"phoneNumber" gorm:"type:varchar(32)"`
	TransactionDate    string         `json:"transactionDate" gorm:"type:varchar(64)"`
	Payload            datatypes.JSON `json:"payload"`
	ReceivedAt         time.Time      `json:"receivedAt" gorm:"not null;index"`
}

func (CallbackRecord) TableName() string { return "payment_callbacks" }

// Classification re-derives the outcome of a stored callback.
func (r CallbackRecord) Classification() classifier.Classification {
	return classifier.ClassifyResultCode(r.ResultCode, r.ResultDesc)
}

type Repository interface {
	InsertCallback(ctx context.Context, db *gorm.DB, record *CallbackRecord) (bool, error)
	LatestCallback(ctx context.Context, db *gorm.DB, externalReference string) (*CallbackRecord, error)
	DeleteAll(ctx context.Context, db *gorm.DB) error
}

// StatusEvent is published whenever a callback settles a reference.
type StatusEvent struct {
	Reference         string    `json:"reference"`
	Status            string    `json:"status"`
	Message           string    `json:"message"`
	CheckoutRequestID string    `json:"checkoutRequestId,omitempty"`
	ResultCode        int       `json:"resultCode"`
	Timestamp         time.Time `json:"timestamp"`
}

type StatusPublisher interface {
	Publish(ctx context.Context, event StatusEvent) error
}

// Subscription delivers status events for one reference until closed.
type Subscription interface {
	Events() <-chan StatusEvent
	Close() error
}

type StatusSubscriber interface {
	Subscribe(ctx context.Context, reference string) (Subscription, error)
}

// Report is the answer of the status query endpoint.
type Report struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Reference string    `json:"reference"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

const (
	ReportSourceCallback = "callback"
	ReportSourceGateway  = "gateway"
	ReportSourceFallback = "fallback"
)
