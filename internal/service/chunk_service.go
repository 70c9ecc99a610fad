package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/svrlab/video-archiver/internal/db"
)

// Chunk describes one produced slice of a source's video stream.
type Chunk struct {
	FilePath   string
	StartTime  float64
	EndTime    float64
	FrameCount int
}

// RecordChunk durably indexes one chunk for a source. The insert relies on
// the unique key on file_path as the only synchronization between concurrent
// workers: a duplicate insert maps to ErrDuplicateChunk, which the
// orchestrator treats as success-by-idempotence when replaying a partially
// indexed source.
func RecordChunk(dbConn *gorm.DB, sourceID uint, chunk Chunk) (uint, error) {
	if chunk.FilePath == "" {
		return 0, fmt.Errorf("empty file path: %w", ErrInvalidChunk)
	}
	if chunk.EndTime <= chunk.StartTime {
		return 0, fmt.Errorf("end time %.3f not after start time %.3f: %w",
			chunk.EndTime, chunk.StartTime, ErrInvalidChunk)
	}
	if chunk.FrameCount < 0 {
		return 0, fmt.Errorf("negative frame count %d: %w", chunk.FrameCount, ErrInvalidChunk)
	}

	row := db.VideoChunk{
		FilePath:   chunk.FilePath,
		StartTime:  chunk.StartTime,
		EndTime:    chunk.EndTime,
		FrameCount: chunk.FrameCount,
		SourceID:   sourceID,
	}
	if err := dbConn.Create(&row).Error; err != nil {
		if IsDuplicateKey(err) {
			return 0, fmt.Errorf("chunk %s: %w", chunk.FilePath, ErrDuplicateChunk)
		}
		return 0, err
	}
	return row.ID, nil
}

// ListChunks returns all chunks of a source ordered by start time.
func ListChunks(dbConn *gorm.DB, sourceID uint) ([]db.VideoChunk, error) {
	var chunks []db.VideoChunk
	err := dbConn.Where("source_id = ?", sourceID).
		Order("start_time asc").Find(&chunks).Error
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// ChunkAtTimestamp returns the chunk of a source that contains the given
// timestamp.
func ChunkAtTimestamp(dbConn *gorm.DB, sourceID uint, timestamp float64) (*db.VideoChunk, error) {
	var chunk db.VideoChunk
	err := dbConn.Where("source_id = ? AND start_time <= ? AND end_time >= ?",
		sourceID, timestamp, timestamp).First(&chunk).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("no chunk at %.3fs for source %d: %w", timestamp, sourceID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

// ChunksInInterval returns all chunks of a source intersecting the given time
// interval, ordered by start time.
func ChunksInInterval(dbConn *gorm.DB, sourceID uint, startTime, endTime float64) ([]db.VideoChunk, error) {
	var chunks []db.VideoChunk
	err := dbConn.Where("source_id = ? AND end_time >= ? AND start_time <= ?",
		sourceID, startTime, endTime).
		Order("start_time asc").Find(&chunks).Error
	if err != nil {
		return nil, err
	}
	return chunks, nil
}
