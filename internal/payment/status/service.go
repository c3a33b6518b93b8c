package status

import (
	"context"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Franc-dev/donate-artist/internal/clock"
	gatewaydomain "github.com/Franc-dev/donate-artist/internal/gateway/domain"
	"github.com/Franc-dev/donate-artist/internal/payment/classifier"
	"github.com/Franc-dev/donate-artist/internal/payment/domain"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    domain.Repository
	Gateway gatewaydomain.PushGateway
	Clock   clock.Clock
}

// Service answers "is this payment done yet?". A recorded callback wins
// over a live gateway lookup.
type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	gateway gatewaydomain.PushGateway
	clock   clock.Clock
}

func NewService(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("payment.status"),
		repo:    p.Repo,
		gateway: p.Gateway,
		clock:   p.Clock,
	}
}

// Query classifies the current state of reference. Gateway errors are
// returned unchanged so the caller can retry.
func (s *Service) Query(ctx context.Context, reference string) (classifier.Classification, error) {
	c, _, err := s.query(ctx, reference)
	return c, err
}

// Check never fails: an inconclusive lookup reports pending.
func (s *Service) Check(ctx context.Context, reference string) (domain.Report, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.Report{}, domain.ErrMissingReference
	}

	c, source, err := s.query(ctx, reference)
	if err != nil {
		s.log.Warn("payment status lookup inconclusive", zap.String("payment_reference", reference), zap.Error(err))
		c = classifier.Classification{Bucket: classifier.BucketPending, Message: classifier.MessageProcessing}
		source = domain.ReportSourceFallback
	}

	return domain.Report{
		Status:    string(c.Bucket),
		Message:   c.Message,
		Reference: reference,
		Timestamp: s.clock.Now(),
		Source:    source,
	}, nil
}

func (s *Service) query(ctx context.Context, reference string) (classifier.Classification, string, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return classifier.Classification{}, "", domain.ErrMissingReference
	}

	record, err := s.repo.LatestCallback(ctx, s.db, reference)
	if err != nil {
		s.log.Warn("callback lookup failed", zap.String("payment_reference", reference), zap.Error(err))
	}
	if record != nil {
		return record.Classification(), domain.ReportSourceCallback, nil
	}

	res, err := s.gateway.QueryByReference(ctx, reference)
	if err != nil {
		return classifier.Classification{}, "", err
	}
	return classifier.ClassifyQuery(res), domain.ReportSourceGateway, nil
}
