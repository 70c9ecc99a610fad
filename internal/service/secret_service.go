package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/svrlab/video-archiver/internal/db"
)

// GetSecret retrieves a named credential. The returned value is exactly what
// was stored: when encrypted is true the caller must unseal it through the
// secretbox capability before use. Secret values are never logged.
func GetSecret(dbConn *gorm.DB, name string) (value string, encrypted bool, err error) {
	var secret db.Secret
	err = dbConn.Where("name = ?", name).First(&secret).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, fmt.Errorf("secret %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return "", false, err
	}
	return secret.Value, secret.Encrypted, nil
}

// PutSecret stores a new named credential. The value must already be sealed
// when encrypted is true; the store never encrypts or decrypts itself.
// Fails with ErrConflict if the name is taken; use UpdateSecret to overwrite.
func PutSecret(dbConn *gorm.DB, name, value string, encrypted bool) error {
	if name == "" {
		return fmt.Errorf("secret name cannot be empty")
	}

	secret := db.Secret{
		Name:      name,
		Value:     value,
		Encrypted: encrypted,
	}
	if err := dbConn.Create(&secret).Error; err != nil {
		if IsDuplicateKey(err) {
			return fmt.Errorf("secret %q: %w", name, ErrConflict)
		}
		return err
	}
	return nil
}

// UpdateSecret overwrites an existing named credential.
func UpdateSecret(dbConn *gorm.DB, name, value string, encrypted bool) error {
	updates := map[string]interface{}{
		"value":     value,
		"encrypted": encrypted,
	}
	result := dbConn.Model(&db.Secret{}).Where("name = ?", name).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("secret %q: %w", name, ErrNotFound)
	}
	return nil
}
