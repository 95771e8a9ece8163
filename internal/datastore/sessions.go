// sessions.go: migration and health check session bookkeeping
package datastore

import (
	"github.com/placewise/photocache/internal/errors"
	"gorm.io/gorm"
)

// CreateMigrationSession inserts a new migration session row.
func (ds *DataStore) CreateMigrationSession(session *ImageMigrationSession) error {
	if session.ID == "" {
		return validationError("session ID cannot be empty", "id", session.ID)
	}
	if err := ds.DB.Create(session).Error; err != nil {
		return dbError(err, "create_migration_session", errors.PriorityHigh, "session_id", session.ID)
	}
	return nil
}

// UpdateMigrationSession persists the session's running counters and status.
func (ds *DataStore) UpdateMigrationSession(session *ImageMigrationSession) error {
	if err := ds.DB.Save(session).Error; err != nil {
		return dbError(err, "update_migration_session", errors.PriorityMedium, "session_id", session.ID)
	}
	return nil
}

// SaveMigrationResult inserts a per-place migration outcome.
func (ds *DataStore) SaveMigrationResult(result *ImageMigrationResult) error {
	if err := ds.DB.Create(result).Error; err != nil {
		return dbError(err, "save_migration_result", errors.PriorityMedium,
			"session_id", result.SessionID,
			"place_id", result.PlaceID)
	}
	return nil
}

// LatestMigrationSession returns the most recently started migration session,
// or nil if none exists.
func (ds *DataStore) LatestMigrationSession() (*ImageMigrationSession, error) {
	var session ImageMigrationSession
	err := ds.DB.Order("started_at DESC").First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, dbError(err, "latest_migration_session", errors.PriorityMedium)
	}
	return &session, nil
}

// GetMigrationResults returns every result row of a migration session.
func (ds *DataStore) GetMigrationResults(sessionID string) ([]ImageMigrationResult, error) {
	var results []ImageMigrationResult
	if err := ds.DB.Where("session_id = ?", sessionID).Find(&results).Error; err != nil {
		return nil, dbError(err, "get_migration_results", errors.PriorityMedium, "session_id", sessionID)
	}
	return results, nil
}

// CreateHealthSession inserts a new health check session row.
func (ds *DataStore) CreateHealthSession(session *ImageHealthSession) error {
	if session.ID == "" {
		return validationError("session ID cannot be empty", "id", session.ID)
	}
	if err := ds.DB.Create(session).Error; err != nil {
		return dbError(err, "create_health_session", errors.PriorityHigh, "session_id", session.ID)
	}
	return nil
}

// UpdateHealthSession persists the session's running counters and status.
func (ds *DataStore) UpdateHealthSession(session *ImageHealthSession) error {
	if err := ds.DB.Save(session).Error; err != nil {
		return dbError(err, "update_health_session", errors.PriorityMedium, "session_id", session.ID)
	}
	return nil
}

// SaveHealthResult inserts a per-place probe outcome.
func (ds *DataStore) SaveHealthResult(result *ImageHealthResult) error {
	if err := ds.DB.Create(result).Error; err != nil {
		return dbError(err, "save_health_result", errors.PriorityMedium,
			"session_id", result.SessionID,
			"place_id", result.PlaceID)
	}
	return nil
}

// LatestHealthSession returns the most recently started health session, or
// nil if none exists.
func (ds *DataStore) LatestHealthSession() (*ImageHealthSession, error) {
	var session ImageHealthSession
	err := ds.DB.Order("started_at DESC").First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, dbError(err, "latest_health_session", errors.PriorityMedium)
	}
	return &session, nil
}

// GetHealthResults returns every result row of a health session.
func (ds *DataStore) GetHealthResults(sessionID string) ([]ImageHealthResult, error) {
	var results []ImageHealthResult
	if err := ds.DB.Where("session_id = ?", sessionID).Find(&results).Error; err != nil {
		return nil, dbError(err, "get_health_results", errors.PriorityMedium, "session_id", sessionID)
	}
	return results, nil
}

// LatestHealthResultForPlace returns the most recent probe outcome for a
// place across all sessions, or nil if the place was never probed. Used to
// carry the consecutive failure counter across runs.
func (ds *DataStore) LatestHealthResultForPlace(placeID uint) (*ImageHealthResult, error) {
	var result ImageHealthResult
	err := ds.DB.Where("place_id = ?", placeID).
		Order("checked_at DESC").
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, dbError(err, "latest_health_result_for_place", errors.PriorityMedium, "place_id", placeID)
	}
	return &result, nil
}

// RecentHealthFailures returns the most recent failed probe results, newest
// first, capped at limit.
func (ds *DataStore) RecentHealthFailures(limit int) ([]ImageHealthResult, error) {
	var results []ImageHealthResult
	err := ds.DB.Where("healthy = ?", false).
		Order("checked_at DESC").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, dbError(err, "recent_health_failures", errors.PriorityMedium)
	}
	return results, nil
}
