// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"time"

	"github.com/placewise/photocache/internal/conf"
	"gorm.io/gorm"
)

// Interface abstracts the underlying database implementation and defines the
// operations the photo cache and its batch processors need.
type Interface interface {
	Open() error
	Close() error

	// cached photo records
	SaveCachedPhoto(photo *CachedPhoto) error
	GetLatestCachedPhoto(reference string, maxWidth int) (*CachedPhoto, error)
	UpdateCachedPhotoAccess(id uint) error
	DeleteExpiredCachedPhotos(now time.Time) (int64, error)
	CachedPhotoStats() (CachedPhotoStats, error)

	// places
	GetPlace(id uint) (Place, error)
	GetPlacesWithPhotos() ([]Place, error)
	GetPlacesNeedingMigration(storedURLPrefix string) ([]Place, error)
	UpdatePlacePhotoRef(id uint, url string) error
	FlagPlacePhoto(id uint, needsRefresh bool, checkedAt time.Time) error

	// migration sessions
	CreateMigrationSession(session *ImageMigrationSession) error
	UpdateMigrationSession(session *ImageMigrationSession) error
	SaveMigrationResult(result *ImageMigrationResult) error
	LatestMigrationSession() (*ImageMigrationSession, error)
	GetMigrationResults(sessionID string) ([]ImageMigrationResult, error)

	// health sessions
	CreateHealthSession(session *ImageHealthSession) error
	UpdateHealthSession(session *ImageHealthSession) error
	SaveHealthResult(result *ImageHealthResult) error
	LatestHealthSession() (*ImageHealthSession, error)
	GetHealthResults(sessionID string) ([]ImageHealthResult, error)
	LatestHealthResultForPlace(placeID uint) (*ImageHealthResult, error)
	RecentHealthFailures(limit int) ([]ImageHealthResult, error)
}

// CachedPhotoStats aggregates counters over the cached_photos table.
type CachedPhotoStats struct {
	Total      int64
	Expired    int64
	TotalFetch int64
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}
