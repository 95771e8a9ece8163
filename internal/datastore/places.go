// places.go: operations on place entities for the batch processors
package datastore

import (
	"time"

	"github.com/placewise/photocache/internal/errors"
)

// GetPlace retrieves a place by its ID.
func (ds *DataStore) GetPlace(id uint) (Place, error) {
	var place Place
	if err := ds.DB.First(&place, id).Error; err != nil {
		return Place{}, dbError(err, "get_place", errors.PriorityMedium, "id", id)
	}
	return place, nil
}

// GetPlacesWithPhotos returns every place that has a photo reference or URL.
func (ds *DataStore) GetPlacesWithPhotos() ([]Place, error) {
	var places []Place
	if err := ds.DB.Where("photo_ref <> ''").Find(&places).Error; err != nil {
		return nil, dbError(err, "get_places_with_photos", errors.PriorityMedium)
	}
	return places, nil
}

// GetPlacesNeedingMigration returns places whose photo reference is not yet a
// durably stored URL. The prefix identifies URLs already pointing at object
// storage; anything else is a raw provider reference.
func (ds *DataStore) GetPlacesNeedingMigration(storedURLPrefix string) ([]Place, error) {
	var places []Place
	err := ds.DB.Where("photo_ref <> '' AND photo_ref NOT LIKE ?", storedURLPrefix+"%").
		Find(&places).Error
	if err != nil {
		return nil, dbError(err, "get_places_needing_migration", errors.PriorityMedium)
	}
	return places, nil
}

// UpdatePlacePhotoRef replaces a place's photo reference with a stored URL.
func (ds *DataStore) UpdatePlacePhotoRef(id uint, url string) error {
	if url == "" {
		return validationError("photo URL cannot be empty", "url", url)
	}
	err := ds.DB.Model(&Place{}).Where("id = ?", id).
		Update("photo_ref", url).Error
	if err != nil {
		return dbError(err, "update_place_photo_ref", errors.PriorityMedium, "id", id)
	}
	return nil
}

// FlagPlacePhoto records the outcome of a health probe on a place photo:
// the check timestamp is always touched, and broken photos are flagged for
// downstream remediation.
func (ds *DataStore) FlagPlacePhoto(id uint, needsRefresh bool, checkedAt time.Time) error {
	updates := map[string]any{
		"photo_checked_at":    checkedAt,
		"photo_needs_refresh": needsRefresh,
	}
	if err := ds.DB.Model(&Place{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return dbError(err, "flag_place_photo", errors.PriorityMedium, "id", id)
	}
	return nil
}
