package db

import (
	"context"
	"fmt"
	"time"

	"github.com/Franc-dev/donate-artist/internal/config"
	"github.com/Franc-dev/donate-artist/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprom "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
}

// New opens the configured database, attaches the tracing and pool metrics
// plugins, and closes the pool on shutdown.
func New(p Params) (*gorm.DB, error) {
	dialector, err := Dialect(p.Config)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.NewGormLogger(logger.DefaultGormLoggerConfig()),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(p.Config.DBName))); err != nil {
		return nil, fmt.Errorf("register otelgorm: %w", err)
	}
	if err := conn.Use(gormprom.New(gormprom.Config{
		DBName:          p.Config.DBName,
		RefreshInterval: 15,
	})); err != nil {
		return nil, fmt.Errorf("register gorm prometheus: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(p.Config.DBMaxIdleConn)
	sqlDB.SetMaxOpenConns(p.Config.DBMaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Duration(p.Config.DBConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(p.Config.DBConnMaxIdleTime) * time.Second)

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return sqlDB.Close()
		},
	})

	p.Log.Info("database connected", zap.String("type", p.Config.DBType))
	return conn, nil
}
