package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gorm.io/gorm"

	"github.com/svrlab/video-archiver/internal/db"
)

// CreateSource registers a new source for a user after a quota check. The
// source starts in pending status and is picked up by the ingest poller.
func CreateSource(dbConn *gorm.DB, userID uint, name, url string) (*db.Source, error) {
	if name == "" {
		return nil, fmt.Errorf("name cannot be empty")
	}
	if url == "" {
		return nil, fmt.Errorf("url cannot be empty")
	}

	if err := CanRegister(dbConn, userID); err != nil {
		return nil, err
	}

	source := db.Source{
		Name:       name,
		URL:        url,
		StatusCode: db.StatusPending,
		UserID:     userID,
	}

	if err := dbConn.Create(&source).Error; err != nil {
		return nil, err
	}
	return &source, nil
}

// GetSource retrieves a source by ID
func GetSource(dbConn *gorm.DB, id uint) (*db.Source, error) {
	var source db.Source
	err := dbConn.First(&source, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("source %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &source, nil
}

// GetSourceForUser retrieves a source by ID, scoped to its owner. userID zero
// skips the ownership filter (admin or single-tenant access).
func GetSourceForUser(dbConn *gorm.DB, id, userID uint) (*db.Source, error) {
	if userID == 0 {
		return GetSource(dbConn, id)
	}
	var source db.Source
	err := dbConn.Where("id = ? AND user_id = ?", id, userID).First(&source).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("source %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &source, nil
}

// ListSources returns sources, optionally filtered by owner and status.
// Pass userID zero for all users and a nil status for all statuses.
func ListSources(dbConn *gorm.DB, userID uint, status *db.SourceStatus) ([]db.Source, error) {
	query := dbConn.Model(&db.Source{})
	if userID != 0 {
		query = query.Where("user_id = ?", userID)
	}
	if status != nil {
		query = query.Where("status_code = ?", *status)
	}

	var sources []db.Source
	if err := query.Order("id asc").Find(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

// ListByStatus returns all sources currently in the given status.
func ListByStatus(dbConn *gorm.DB, status db.SourceStatus) ([]db.Source, error) {
	return ListSources(dbConn, 0, &status)
}

// UpdateSourceStatus updates the status and status message of a source. Only
// the ingestion orchestrator and the admin reset path write status_code.
func UpdateSourceStatus(dbConn *gorm.DB, id uint, status db.SourceStatus, statusMsg string) error {
	updates := map[string]interface{}{
		"status_code": status,
		"status_msg":  statusMsg,
	}
	return dbConn.Model(&db.Source{}).Where("id = ?", id).Updates(updates).Error
}

// ResetSource returns a terminal source to pending so it can be re-ingested.
// Resetting a source that is still being processed is refused.
func ResetSource(dbConn *gorm.DB, id uint) error {
	source, err := GetSource(dbConn, id)
	if err != nil {
		return err
	}
	if !source.StatusCode.Terminal() {
		return fmt.Errorf("source %d is %s, only ready or failed sources can be reset",
			id, source.StatusCode)
	}
	return UpdateSourceStatus(dbConn, id, db.StatusPending, "")
}

// DeleteSource removes a source and all of its chunks in one transaction.
// The schema declares no cascade, so the chunk fan-out is explicit here.
// Chunk files are removed from disk best-effort after the commit.
func DeleteSource(dbConn *gorm.DB, id uint, chunksDir string) error {
	source, err := GetSource(dbConn, id)
	if err != nil {
		return err
	}

	err = dbConn.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("source_id = ?", id).Delete(&db.VideoChunk{}).Error; err != nil {
			return err
		}
		if err := tx.Where("source_id = ?", id).Delete(&db.SourceLease{}).Error; err != nil {
			return err
		}
		return tx.Delete(&db.Source{}, id).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete source %d: %w", source.ID, err)
	}

	if chunksDir != "" {
		os.RemoveAll(filepath.Join(chunksDir, strconv.FormatUint(uint64(id), 10)))
	}
	return nil
}
