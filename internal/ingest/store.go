package ingest

import (
	"time"

	"gorm.io/gorm"

	"github.com/svrlab/video-archiver/internal/db"
	"github.com/svrlab/video-archiver/internal/service"
)

// Store is the persistence surface the orchestrator needs.
type Store interface {
	GetSource(id uint) (*db.Source, error)
	UpdateStatus(id uint, status db.SourceStatus, statusMsg string) error
	ListRunnable() ([]db.Source, error)
	RecordChunk(sourceID uint, chunk service.Chunk) (uint, error)
	GetSecret(name string) (value string, encrypted bool, err error)
}

// gormStore adapts the service layer to the Store interface.
type gormStore struct {
	db *gorm.DB
}

func (s *gormStore) GetSource(id uint) (*db.Source, error) {
	return service.GetSource(s.db, id)
}

func (s *gormStore) UpdateStatus(id uint, status db.SourceStatus, statusMsg string) error {
	return service.UpdateSourceStatus(s.db, id, status, statusMsg)
}

// ListRunnable returns sources eligible for processing: every non-terminal
// source without a live lease. That covers fresh pending sources and sources
// stranded mid-pipeline by a crashed worker.
func (s *gormStore) ListRunnable() ([]db.Source, error) {
	var sources []db.Source
	err := s.db.
		Joins("LEFT JOIN source_lease ON source_lease.source_id = source.id AND source_lease.expires_at > ?",
			time.Now()).
		Where("source.status_code IN ?", []db.SourceStatus{
			db.StatusPending, db.StatusFetching, db.StatusSplitting, db.StatusIndexing,
		}).
		Where("source_lease.source_id IS NULL").
		Order("source.id asc").
		Find(&sources).Error
	if err != nil {
		return nil, err
	}
	return sources, nil
}

func (s *gormStore) RecordChunk(sourceID uint, chunk service.Chunk) (uint, error) {
	return service.RecordChunk(s.db, sourceID, chunk)
}

func (s *gormStore) GetSecret(name string) (string, bool, error) {
	return service.GetSecret(s.db, name)
}
