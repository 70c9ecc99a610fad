package ingest

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/svrlab/video-archiver/internal/db"
	"github.com/svrlab/video-archiver/internal/service"
)

// Leases serializes per-source processing: exactly one worker process may
// hold the lease for a source at a time.
type Leases interface {
	Acquire(sourceID uint) error
	Renew(sourceID uint) error
	Release(sourceID uint) error
	ReclaimExpired() (int64, error)
}

// LeaseManager implements Leases on the source_lease table. Each manager
// instance has a unique owner identity so leases survive being inspected by
// other processes but can only be renewed or released by their holder.
type LeaseManager struct {
	db    *gorm.DB
	owner string
	ttl   time.Duration
}

// NewLeaseManager creates a lease manager with a fresh owner identity.
func NewLeaseManager(dbConn *gorm.DB, ttl time.Duration) *LeaseManager {
	return &LeaseManager{
		db:    dbConn,
		owner: uuid.NewString(),
		ttl:   ttl,
	}
}

// Acquire claims the processing lease for a source. An expired lease or one
// already held by this owner is taken over; a live lease held elsewhere
// returns ErrLeaseHeld.
func (m *LeaseManager) Acquire(sourceID uint) error {
	now := time.Now()

	// Take over an expired lease, or refresh our own.
	takeover := m.db.Model(&db.SourceLease{}).
		Where("source_id = ? AND (expires_at < ? OR owner = ?)", sourceID, now, m.owner).
		Updates(map[string]interface{}{
			"owner":      m.owner,
			"expires_at": now.Add(m.ttl),
		})
	if takeover.Error != nil {
		return takeover.Error
	}
	if takeover.RowsAffected > 0 {
		return nil
	}

	lease := db.SourceLease{
		SourceID:  sourceID,
		Owner:     m.owner,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.db.Create(&lease).Error; err != nil {
		// A duplicate key after a failed takeover means another worker
		// holds the lease. Anything else is a real database error.
		if service.IsDuplicateKey(err) {
			return fmt.Errorf("source %d: %w", sourceID, ErrLeaseHeld)
		}
		return fmt.Errorf("claim lease for source %d: %w", sourceID, err)
	}
	return nil
}

// Renew extends the lease held by this owner. Fails with ErrLeaseHeld if the
// lease was reclaimed in the meantime.
func (m *LeaseManager) Renew(sourceID uint) error {
	result := m.db.Model(&db.SourceLease{}).
		Where("source_id = ? AND owner = ?", sourceID, m.owner).
		Update("expires_at", time.Now().Add(m.ttl))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("source %d: lease lost: %w", sourceID, ErrLeaseHeld)
	}
	return nil
}

// Release drops the lease held by this owner.
func (m *LeaseManager) Release(sourceID uint) error {
	return m.db.Where("source_id = ? AND owner = ?", sourceID, m.owner).
		Delete(&db.SourceLease{}).Error
}

// ReclaimExpired removes leases held past their deadline so the poller can
// hand the sources to another worker (crash recovery).
func (m *LeaseManager) ReclaimExpired() (int64, error) {
	result := m.db.Where("expires_at < ?", time.Now()).Delete(&db.SourceLease{})
	return result.RowsAffected, result.Error
}
