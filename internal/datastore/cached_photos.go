// cached_photos.go: operations on the durable cached photo records
package datastore

import (
	"time"

	"github.com/placewise/photocache/internal/errors"
	"gorm.io/gorm"
)

// SaveCachedPhoto inserts a new cached photo record.
func (ds *DataStore) SaveCachedPhoto(photo *CachedPhoto) error {
	if photo.OriginalReference == "" {
		return validationError("original reference cannot be empty", "original_reference", photo.OriginalReference)
	}
	if photo.MaxWidth <= 0 {
		return validationError("max width must be positive", "max_width", photo.MaxWidth)
	}

	if err := ds.DB.Create(photo).Error; err != nil {
		return dbError(err, "save_cached_photo", errors.PriorityMedium,
			"reference", photo.OriginalReference,
			"max_width", photo.MaxWidth)
	}
	return nil
}

// GetLatestCachedPhoto returns the most recently created record matching the
// reference and width, or nil if no record exists. Expired rows are returned
// as-is, the caller decides what expiry means.
func (ds *DataStore) GetLatestCachedPhoto(reference string, maxWidth int) (*CachedPhoto, error) {
	var photo CachedPhoto
	err := ds.DB.Where("original_reference = ? AND max_width = ?", reference, maxWidth).
		Order("created_at DESC").
		First(&photo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, dbError(err, "get_latest_cached_photo", errors.PriorityMedium,
			"reference", reference,
			"max_width", maxWidth)
	}
	return &photo, nil
}

// UpdateCachedPhotoAccess bumps the fetch counter and access timestamp of a
// record. The read-modify-write is intentionally not transactional: the
// counter is approximate and concurrent updates may lose increments. The
// relaxation keeps the hot read path free of row locks.
func (ds *DataStore) UpdateCachedPhotoAccess(id uint) error {
	var photo CachedPhoto
	if err := ds.DB.First(&photo, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil // record swept between read and update, nothing to bump
		}
		return dbError(err, "update_cached_photo_access", errors.PriorityLow, "id", id)
	}

	updates := map[string]any{
		"fetch_count":      photo.FetchCount + 1,
		"last_accessed_at": time.Now(),
	}
	if err := ds.DB.Model(&CachedPhoto{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return dbError(err, "update_cached_photo_access", errors.PriorityLow, "id", id)
	}
	return nil
}

// DeleteExpiredCachedPhotos removes rows whose expiry has passed. This is the
// only deletion path for cached photo records; the hot path never deletes.
func (ds *DataStore) DeleteExpiredCachedPhotos(now time.Time) (int64, error) {
	result := ds.DB.Where("expires_at <= ?", now).Delete(&CachedPhoto{})
	if result.Error != nil {
		return 0, dbError(result.Error, "delete_expired_cached_photos", errors.PriorityMedium)
	}
	return result.RowsAffected, nil
}

// CachedPhotoStats aggregates record counts for dashboards.
func (ds *DataStore) CachedPhotoStats() (CachedPhotoStats, error) {
	var stats CachedPhotoStats
	if err := ds.DB.Model(&CachedPhoto{}).Count(&stats.Total).Error; err != nil {
		return stats, dbError(err, "cached_photo_stats", errors.PriorityLow)
	}
	if err := ds.DB.Model(&CachedPhoto{}).
		Where("expires_at <= ?", time.Now()).
		Count(&stats.Expired).Error; err != nil {
		return stats, dbError(err, "cached_photo_stats", errors.PriorityLow)
	}
	var totalFetch *int64
	if err := ds.DB.Model(&CachedPhoto{}).
		Select("SUM(fetch_count)").
		Scan(&totalFetch).Error; err != nil {
		return stats, dbError(err, "cached_photo_stats", errors.PriorityLow)
	}
	if totalFetch != nil {
		stats.TotalFetch = *totalFetch
	}
	return stats, nil
}
