package db

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runMigrations performs database migrations
func runMigrations(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(&User{}, &Source{}, &VideoChunk{}, &Secret{}, &SourceLease{}); err != nil {
		return err
	}

	return releaseExpiredLeases(db, logger)
}

// releaseExpiredLeases drops leases left behind by workers that died before
// releasing them. Sources they held stay at their last persisted status and
// are picked up again by the ingest poller.
func releaseExpiredLeases(db *gorm.DB, logger *zap.Logger) error {
	result := db.Where("expires_at < ?", time.Now()).Delete(&SourceLease{})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		logger.Warn("released expired source leases", zap.Int64("count", result.RowsAffected))
	}

	return nil
}
