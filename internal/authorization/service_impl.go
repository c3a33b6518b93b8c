package authorization

import (
	"context"
	_ "embed"
	"errors"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Franc-dev/donate-artist/internal/config"
)

//go:embed model.conf
var modelText string

var (
	ErrDisabled      = errors.New("admin_disabled")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

const (
	ObjectLedger = "ledger"

	ActionLedgerClear = "clear"
)

const (
	actorAdmin = "admin"
	roleAdmin  = "role:admin"
)

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

type Params struct {
	fx.In

	Config   config.Config
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

// Service checks admin tokens against the configured bcrypt hash and the
// casbin policy.
type Service struct {
	tokenHash []byte
	log       *zap.Logger
	enforcer  *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) *Service {
	return &Service{
		tokenHash: []byte(strings.TrimSpace(p.Config.Admin.TokenHash)),
		log:       p.Log.Named("authorization.service"),
		enforcer:  p.Enforcer,
	}
}

func (s *Service) Enabled() bool {
	return s != nil && len(s.tokenHash) > 0
}

// Authorize resolves token to the admin actor and enforces object/action.
func (s *Service) Authorize(ctx context.Context, token, object, action string) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	token = strings.TrimSpace(token)
	if token == "" || bcrypt.CompareHashAndPassword(s.tokenHash, []byte(token)) != nil {
		s.log.Warn("admin token rejected", zap.String("object", object), zap.String("action", action))
		return ErrUnauthorized
	}

	allowed, err := s.enforcer.Enforce(actorAdmin, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Warn("admin action denied", zap.String("object", object), zap.String("action", action))
		return ErrForbidden
	}
	return nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{roleAdmin, ObjectLedger, ActionLedgerClear},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	if _, err := enforcer.AddGroupingPolicy(actorAdmin, roleAdmin); err != nil {
		return err
	}
	return nil
}
