package service

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/svrlab/video-archiver/internal/db"
)

// CreateUser creates a new user with a bcrypt-hashed password. maxSources
// limits how many sources the user may own; negative means unlimited.
func CreateUser(dbConn *gorm.DB, name, password string, maxSources int, isAdmin bool) (*db.User, error) {
	if name == "" || password == "" {
		return nil, fmt.Errorf("name and password cannot be empty")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := db.User{
		Name:       name,
		Password:   string(hashed),
		MaxSources: maxSources,
		IsAdmin:    isAdmin,
	}

	if err := dbConn.Create(&user).Error; err != nil {
		if IsDuplicateKey(err) {
			return nil, fmt.Errorf("user %q: %w", name, ErrConflict)
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByName retrieves a user by name
func GetUserByName(dbConn *gorm.DB, name string) (*db.User, error) {
	var user db.User
	err := dbConn.Where("name = ?", name).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID retrieves a user by id
func GetUserByID(dbConn *gorm.DB, id uint) (*db.User, error) {
	var user db.User
	err := dbConn.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CheckPassword verifies a cleartext password against the stored hash.
func CheckPassword(user *db.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) == nil
}
