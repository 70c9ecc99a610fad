package service

import (
	"errors"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// Sentinel errors returned by the service layer. Callers branch on these with
// errors.Is.
var (
	// ErrQuotaExceeded means the user already owns max_sources sources.
	ErrQuotaExceeded = errors.New("source quota exceeded")

	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a unique name is already taken.
	ErrConflict = errors.New("name already exists")

	// ErrDuplicateChunk means a chunk with the same file path is already
	// indexed. Benign during idempotent replay of a partially indexed source.
	ErrDuplicateChunk = errors.New("chunk already indexed")

	// ErrInvalidChunk means the chunk metadata fails basic validation.
	ErrInvalidChunk = errors.New("invalid chunk")
)

const mysqlDuplicateEntry = 1062

// IsDuplicateKey reports whether err is a unique-constraint violation.
func IsDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry
	}
	// sqlmock and other drivers surface plain errors
	return err != nil && strings.Contains(err.Error(), "Duplicate entry")
}
