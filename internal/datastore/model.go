// model.go this code defines the data model for the photo cache
package datastore

import "time"

// CachedPhoto is the durable record of a resolved photo reference.
// One logical mapping exists per (original_reference, max_width); multiple
// rows may accumulate over time and the most recent row by CreatedAt wins.
type CachedPhoto struct {
	ID                uint   `gorm:"primaryKey"`
	PlaceID           *uint  `gorm:"index"` // optional link to the place the photo belongs to
	OriginalReference string `gorm:"index:idx_cached_photos_ref_width;not null"`
	CachedURL         string
	MaxWidth          int    `gorm:"index:idx_cached_photos_ref_width"`
	QualityLevel      string `gorm:"type:varchar(10)"` // "high", "medium" or "low"
	ExpiresAt         time.Time
	FetchCount        int       // approximate access counter, see UpdateCachedPhotoAccess
	LastAccessedAt    time.Time // when the record was last served
	CreatedAt         time.Time `gorm:"index"`
	Source            string    `gorm:"type:varchar(20)"` // which resolution path created the row
}

// Place is an entity whose photo reference the batch processors operate on.
type Place struct {
	ID                uint   `gorm:"primaryKey"`
	Name              string `gorm:"index"`
	PhotoRef          string // raw provider reference, or a stored URL after migration
	PhotoCheckedAt    *time.Time
	PhotoNeedsRefresh bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Migration session status values.
const (
	SessionRunning   = "running"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
)

// ImageMigrationSession tracks one bulk migration run.
type ImageMigrationSession struct {
	ID          string `gorm:"primaryKey;type:varchar(36)"` // UUID
	Total       int
	Migrated    int
	Failed      int
	Skipped     int
	Status      string `gorm:"type:varchar(20)"`
	StartedAt   time.Time
	CompletedAt *time.Time
}

// ImageMigrationResult records the outcome of one migrated place.
// Rows are immutable once written.
type ImageMigrationResult struct {
	ID           uint   `gorm:"primaryKey"`
	SessionID    string `gorm:"index;not null;type:varchar(36)"`
	PlaceID      uint   `gorm:"index"`
	Success      bool
	Skipped      bool
	NewURL       string
	ErrorMessage string
	CreatedAt    time.Time
}

// ImageHealthSession tracks one bulk health check run.
type ImageHealthSession struct {
	ID          string `gorm:"primaryKey;type:varchar(36)"` // UUID
	Total       int
	Healthy     int
	Broken      int
	Status      string `gorm:"type:varchar(20)"`
	StartedAt   time.Time
	CompletedAt *time.Time
}

// ImageHealthResult records the outcome of one probed place photo.
// Rows are immutable once written.
type ImageHealthResult struct {
	ID                  uint   `gorm:"primaryKey"`
	SessionID           string `gorm:"index;not null;type:varchar(36)"`
	PlaceID             uint   `gorm:"index"`
	URL                 string
	Healthy             bool
	FailureKind         string `gorm:"type:varchar(20)"` // empty when healthy
	StatusCode          int
	ConsecutiveFailures int // carried across sessions, reset on success
	CheckedAt           time.Time
}
