package service

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/svrlab/video-archiver/internal/db"
)

// CanRegister checks whether the user may register another source. All
// non-deleted sources count against the quota, failed ones included: failure
// does not free capacity until the source is explicitly deleted.
//
// userID zero means the deployment runs single-tenant without ownership and
// the check is a no-op.
func CanRegister(dbConn *gorm.DB, userID uint) error {
	if userID == 0 {
		return nil
	}

	user, err := GetUserByID(dbConn, userID)
	if err != nil {
		return err
	}
	if user.MaxSources < 0 {
		return nil
	}

	var count int64
	if err := dbConn.Model(&db.Source{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count sources: %w", err)
	}

	if count >= int64(user.MaxSources) {
		return fmt.Errorf("user %d owns %d of %d sources: %w",
			userID, count, user.MaxSources, ErrQuotaExceeded)
	}
	return nil
}
