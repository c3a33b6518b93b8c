package service

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Franc-dev/donate-artist/internal/clock"
	"github.com/Franc-dev/donate-artist/internal/user/domain"
	"github.com/Franc-dev/donate-artist/pkg/db"
)

var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	clock clock.Clock
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("user.service"),
		repo:  p.Repo,
		clock: clk,
	}
}

// Onboard creates the user for profile.Email or refreshes the stored name and
// phone when one already exists.
func (s *Service) Onboard(ctx context.Context, profile domain.Profile) (*domain.User, error) {
	profile, err := normalizeProfile(profile)
	if err != nil {
		return nil, err
	}
	return s.upsert(ctx, profile, 0)
}

// ApplyDonation records a submitted donation against the donor. A new donor
// starts with the amount as their total and a count of one.
func (s *Service) ApplyDonation(ctx context.Context, profile domain.Profile, amount float64) (*domain.User, error) {
	profile, err := normalizeProfile(profile)
	if err != nil {
		return nil, err
	}
	return s.upsert(ctx, profile, amount)
}

func (s *Service) upsert(ctx context.Context, profile domain.Profile, amount float64) (*domain.User, error) {
	var out *domain.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now().UTC()
		existing, err := s.repo.FindByEmail(ctx, tx, profile.Email)
		if err != nil {
			return err
		}

		if existing == nil {
			user := &domain.User{
				ID:        uuid.NewString(),
				Name:      profile.Name,
				Email:     profile.Email,
				Phone:     profile.Phone,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if amount > 0 {
				user.TotalDonated = amount
				user.DonationCount = 1
			}
			if err := s.repo.Insert(ctx, tx, user); err != nil {
				return err
			}
			out = user
			return nil
		}

		if err := s.repo.UpdateProfile(ctx, tx, existing.ID, profile.Name, profile.Phone, now); err != nil {
			return err
		}
		if amount > 0 {
			if err := s.repo.AddDonation(ctx, tx, existing.ID, amount, now); err != nil {
				return err
			}
		}
		out, err = s.repo.FindByID(ctx, tx, existing.ID)
		return err
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Lost a race with a concurrent insert for the same email.
			return s.upsert(ctx, profile, amount)
		}
		return nil, err
	}
	return out, nil
}

func (s *Service) IncrementVotes(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.ErrInvalidID
	}
	return s.repo.IncrementVotes(ctx, s.db, userID, s.clock.Now().UTC())
}

func (s *Service) Get(ctx context.Context, userID string) (*domain.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidID
	}
	user, err := s.repo.FindByID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

func (s *Service) Reset(ctx context.Context) error {
	return s.repo.DeleteAll(ctx, s.db)
}

func normalizeProfile(p domain.Profile) (domain.Profile, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Phone = strings.TrimSpace(p.Phone)
	if p.Name == "" {
		return p, domain.ErrInvalidName
	}
	if !emailPattern.MatchString(p.Email) {
		return p, domain.ErrInvalidEmail
	}
	return p, nil
}
