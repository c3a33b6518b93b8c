package db

import (
	"fmt"
	"strings"

	"github.com/Franc-dev/donate-artist/internal/config"
	glebarez "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const defaultSQLitePath = "donate-artist.db"

// Dialect picks the gorm driver for cfg.DBType. "sqlite" uses the pure-Go
// driver; "sqlite3" uses the cgo driver.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.DBType)) {
	case "mysql":
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
		)), nil
	case "postgres":
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBPort,
			cfg.DBSSLMode,
		)), nil
	case "sqlite", "":
		return glebarez.Open(sqlitePath(cfg)), nil
	case "sqlite3":
		return sqlite.Open(sqlitePath(cfg)), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.DBType)
	}
}

func sqlitePath(cfg config.Config) string {
	if name := strings.TrimSpace(cfg.DBName); name != "" && strings.ContainsAny(name, "./:") {
		return name
	}
	return defaultSQLitePath
}

// IsPostgres reports whether cfg targets postgres.
func IsPostgres(cfg config.Config) bool {
	return strings.EqualFold(strings.TrimSpace(cfg.DBType), "postgres")
}
