package callback

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Franc-dev/donate-artist/internal/clock"
	"github.com/Franc-dev/donate-artist/internal/config"
	"github.com/Franc-dev/donate-artist/internal/observability/metrics"
	"github.com/Franc-dev/donate-artist/internal/payment/classifier"
	"github.com/Franc-dev/donate-artist/internal/payment/domain"
)

const (
	SignatureHeader = "X-Payhero-Signature"
	AckMessage      = "Callback processed successfully"
	StatusIgnored   = "ignored"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Repo      domain.Repository
	Publisher domain.StatusPublisher
	Metrics   *metrics.PaymentMetrics `optional:"true"`
	Clock     clock.Clock
	Cfg       config.Config
}

// Ack is always returned to the gateway with HTTP 200 so it stops retrying,
// whatever the payment outcome.
type Ack struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	PaymentStatus     string `json:"paymentStatus"`
	ExternalReference string `json:"externalReference"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	repo      domain.Repository
	publisher domain.StatusPublisher
	metrics   *metrics.PaymentMetrics
	clock     clock.Clock
	secret    []byte
}

func NewService(p Params) *Service {
	var secret []byte
	if s := strings.TrimSpace(p.Cfg.PayHero.WebhookSecret); s != "" {
		secret = []byte(s)
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payment.callback"),
		repo:      p.Repo,
		publisher: p.Publisher,
		metrics:   p.Metrics,
		clock:     p.Clock,
		secret:    secret,
	}
}

func (s *Service) Ingest(ctx context.Context, body []byte, headers http.Header) Ack {
	ack := Ack{Success: true, Message: AckMessage, PaymentStatus: StatusIgnored}

	if err := s.verify(body, headers); err != nil {
		s.log.Warn("payment callback rejected", zap.Error(err))
		return ack
	}

	payload, err := ParsePayload(body)
	if err != nil {
		s.log.Warn("payment callback unreadable", zap.Error(err), zap.Int("bytes", len(body)))
		return ack
	}

	c := classifier.ClassifyResultCode(payload.ResultCode.Int(), payload.ResultDesc)
	ack.PaymentStatus = string(c.Bucket)
	ack.ExternalReference = payload.ExternalReference

	s.log.Info("payment callback classified",
		zap.String("payment_reference", payload.ExternalReference),
		zap.String("checkout_request_id", payload.CheckoutRequestID),
		zap.Int("result_code", payload.ResultCode.Int()),
		zap.String("bucket", string(c.Bucket)),
		zap.String("reason", c.Message),
	)

	checkoutID := payload.CheckoutRequestID
	if checkoutID == "" {
		checkoutID = uuid.NewString()
	}
	now := s.clock.Now()
	record := &domain.CallbackRecord{
		CheckoutRequestID:  checkoutID,
		ExternalReference:  payload.ExternalReference,
		ResultCode:         payload.ResultCode.Int(),
		ResultDesc:         payload.ResultDesc,
		Bucket:             string(c.Bucket),
		Message:            c.Message,
		Amount:             payload.Amount.Float(),
		MpesaReceiptNumber: payload.MpesaReceiptNumber,
		PhoneNumber:        string(payload.PhoneNumber),
		TransactionDate:    string(payload.TransactionDate),
		Payload:            datatypes.JSON(body),
		ReceivedAt:         now,
	}

	inserted, err := s.repo.InsertCallback(ctx, s.db, record)
	if err != nil {
		s.log.Error("payment callback not recorded", zap.String("checkout_request_id", checkoutID), zap.Error(err))
		return ack
	}
	if !inserted {
		s.log.Info("duplicate payment callback ignored", zap.String("checkout_request_id", checkoutID))
		return ack
	}
	s.metrics.RecordCallback(string(c.Bucket))

	if payload.ExternalReference != "" && s.publisher != nil {
		event := domain.StatusEvent{
			Reference:         payload.ExternalReference,
			Status:            string(c.Bucket),
			Message:           c.Message,
			CheckoutRequestID: checkoutID,
			ResultCode:        record.ResultCode,
			Timestamp:         now,
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.log.Warn("payment status publish failed", zap.String("payment_reference", payload.ExternalReference), zap.Error(err))
		}
	}
	return ack
}

// Reset drops every recorded callback.
func (s *Service) Reset(ctx context.Context) error {
	return s.repo.DeleteAll(ctx, s.db)
}

func (s *Service) verify(body []byte, headers http.Header) error {
	if len(s.secret) == 0 {
		return nil
	}
	signature := strings.TrimSpace(headers.Get(SignatureHeader))
	signature = strings.TrimPrefix(signature, "sha256=")
	if signature == "" {
		return domain.ErrInvalidSignature
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return errors.Join(domain.ErrInvalidSignature, err)
	}
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

// Sign computes the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
