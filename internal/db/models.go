package db

import "time"

// SourceStatus is the persisted ingestion state of a source.
type SourceStatus int

const (
	StatusFailed    SourceStatus = -1
	StatusPending   SourceStatus = 0
	StatusFetching  SourceStatus = 1
	StatusSplitting SourceStatus = 2
	StatusIndexing  SourceStatus = 3
	StatusReady     SourceStatus = 4
)

// String returns a human-readable status name.
func (s SourceStatus) String() string {
	switch s {
	case StatusFailed:
		return "failed"
	case StatusPending:
		return "pending"
	case StatusFetching:
		return "fetching"
	case StatusSplitting:
		return "splitting"
	case StatusIndexing:
		return "indexing"
	case StatusReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final. Terminal sources are never
// re-processed automatically; re-ingestion requires an explicit reset.
func (s SourceStatus) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// User represents an account that owns sources. Accounts are managed by the
// auth layer; the pipeline only reads them for quota checks.
type User struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name       string    `gorm:"uniqueIndex;not null;size:100" json:"name"`
	Password   string    `gorm:"not null;size:255" json:"-"`
	MaxSources int       `gorm:"not null;default:5" json:"max_sources"` // negative means unlimited
	IsAdmin    bool      `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName keeps the historical singular table name.
func (User) TableName() string { return "user" }

// Source represents a registered remote video asset awaiting or having
// undergone ingestion.
type Source struct {
	ID         uint         `gorm:"primaryKey" json:"id"`
	Name       string       `gorm:"index;not null;size:255" json:"name"`
	URL        string       `gorm:"not null;size:768" json:"url"`
	StatusCode SourceStatus `gorm:"index;not null;default:0" json:"status_code"`
	StatusMsg  string       `json:"status_msg"`
	UserID     uint         `gorm:"index" json:"user_id"` // zero in single-tenant deployments
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
	User       User         `gorm:"foreignKey:UserID" json:"-"`
}

// TableName keeps the historical singular table name.
func (Source) TableName() string { return "source" }

// VideoChunk is a contiguous, file-backed slice of a source's video stream.
// FilePath is globally unique and acts as the de-duplication key between
// concurrent ingestion workers.
type VideoChunk struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	FilePath   string    `gorm:"uniqueIndex;not null;size:768" json:"file_path"`
	StartTime  float64   `gorm:"not null" json:"start_time"`
	EndTime    float64   `gorm:"not null" json:"end_time"`
	FrameCount int       `gorm:"not null" json:"frame_count"`
	SourceID   uint      `gorm:"index;not null" json:"source_id"`
	CreatedAt  time.Time `json:"created_at"`
	Source     Source    `gorm:"foreignKey:SourceID" json:"-"`
}

// TableName keeps the historical singular table name.
func (VideoChunk) TableName() string { return "video_chunk" }

// Secret holds a named credential used to fetch protected sources. When
// Encrypted is set the stored value is sealed and must pass through the
// secretbox capability before use.
type Secret struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"uniqueIndex;not null;size:191" json:"name"`
	Value     string `gorm:"size:4096" json:"-"`
	Encrypted bool   `gorm:"not null;default:false" json:"encrypted"`
}

// TableName keeps the historical singular table name.
func (Secret) TableName() string { return "secret" }

// SourceLease is an exclusive, time-bounded claim on a source held by one
// ingestion worker. Expired leases are reclaimed by the watchdog so another
// worker can resume from the last persisted status.
type SourceLease struct {
	SourceID  uint      `gorm:"primaryKey" json:"source_id"`
	Owner     string    `gorm:"not null;size:64" json:"owner"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
}

// TableName keeps table naming consistent with the rest of the schema.
func (SourceLease) TableName() string { return "source_lease" }
