package db

import (
	"fmt"
	"log/slog"

	"github.com/icco/watchlist/lib/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open connects to the configured relational store. A DATABASE_URL selects
// hosted Postgres; otherwise a local SQLite file is used.
func Open(cfg config.DatabaseConfig, logger *slog.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:         NewGormLogger(logger),
		TranslateError: true,
	}

	var dialector gorm.Dialector
	if cfg.URL != "" {
		dialector = postgres.Open(cfg.URL)
	} else {
		dialector = sqlite.Open(cfg.Path)
	}

	gdb, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return gdb, nil
}

// IsSQLite reports whether the connection uses the SQLite dialector.
func IsSQLite(gdb *gorm.DB) bool {
	return gdb.Dialector.Name() == "sqlite"
}
