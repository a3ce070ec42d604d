package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/icco/watchlist/models"
	"gorm.io/gorm"
)

// RunMigrations brings the schema up to date and applies engine tuning.
func RunMigrations(gdb *gorm.DB, logger *slog.Logger) error {
	ctx := context.Background()

	if IsSQLite(gdb) {
		if err := enableSQLiteOptimizations(ctx, gdb, logger); err != nil {
			return fmt.Errorf("failed to enable SQLite optimizations: %w", err)
		}
	}

	if err := gdb.AutoMigrate(&models.Movie{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := createAdditionalIndexes(ctx, gdb, logger); err != nil {
		return fmt.Errorf("failed to create additional indexes: %w", err)
	}

	return nil
}

// enableSQLiteOptimizations enables SQLite-specific optimizations
func enableSQLiteOptimizations(ctx context.Context, gdb *gorm.DB, logger *slog.Logger) error {
	optimizations := []string{
		"PRAGMA journal_mode=WAL",   // Enable WAL mode for better concurrency
		"PRAGMA synchronous=NORMAL", // Faster writes while maintaining safety
		"PRAGMA foreign_keys=ON",    // Enable foreign key constraints
		"PRAGMA temp_store=MEMORY",  // Store temporary tables in memory
	}

	for _, pragma := range optimizations {
		if err := gdb.WithContext(ctx).Exec(pragma).Error; err != nil {
			logger.Warn("Failed to execute pragma", slog.String("pragma", pragma), slog.Any("error", err))
		} else {
			logger.Info("Successfully executed pragma", slog.String("pragma", pragma))
		}
	}

	return nil
}

// createAdditionalIndexes creates additional indexes for common queries
func createAdditionalIndexes(ctx context.Context, gdb *gorm.DB, logger *slog.Logger) error {
	additionalIndexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_movies_list_watched ON movies(list_id, watched)",
		"CREATE INDEX IF NOT EXISTS idx_movies_list_created ON movies(list_id, created_at)",
	}

	for _, indexSQL := range additionalIndexes {
		if err := gdb.WithContext(ctx).Exec(indexSQL).Error; err != nil {
			logger.Warn("Failed to create index", slog.String("sql", indexSQL), slog.Any("error", err))
		} else {
			logger.Info("Successfully created index", slog.String("sql", indexSQL))
		}
	}

	return nil
}
