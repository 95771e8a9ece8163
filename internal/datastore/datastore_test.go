package datastore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placewise/photocache/internal/conf"
)

// newTestStore opens a SQLite store backed by a throwaway database file.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

	store := &SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestSaveAndGetLatestCachedPhoto(t *testing.T) {
	store := newTestStore(t)

	older := &CachedPhoto{
		OriginalReference: "ChIJ_abc",
		CachedURL:         "https://cdn.test.local/old.jpg",
		MaxWidth:          conf.WidthMedium,
		ExpiresAt:         time.Now().Add(time.Hour),
		CreatedAt:         time.Now().Add(-time.Hour),
	}
	newer := &CachedPhoto{
		OriginalReference: "ChIJ_abc",
		CachedURL:         "https://cdn.test.local/new.jpg",
		MaxWidth:          conf.WidthMedium,
		ExpiresAt:         time.Now().Add(time.Hour),
		CreatedAt:         time.Now(),
	}
	require.NoError(t, store.SaveCachedPhoto(older))
	require.NoError(t, store.SaveCachedPhoto(newer))

	got, err := store.GetLatestCachedPhoto("ChIJ_abc", conf.WidthMedium)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "https://cdn.test.local/new.jpg", got.CachedURL, "the most recent row wins")

	// A different width is a distinct mapping.
	got, err = store.GetLatestCachedPhoto("ChIJ_abc", conf.WidthLow)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetLatestCachedPhotoMissIsNotAnError(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetLatestCachedPhoto("ChIJ_missing", conf.WidthHigh)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveCachedPhotoValidation(t *testing.T) {
	store := newTestStore(t)

	err := store.SaveCachedPhoto(&CachedPhoto{MaxWidth: conf.WidthMedium})
	assert.Error(t, err, "empty reference must be rejected")

	err = store.SaveCachedPhoto(&CachedPhoto{OriginalReference: "ChIJ_abc"})
	assert.Error(t, err, "non-positive width must be rejected")
}

func TestUpdateCachedPhotoAccess(t *testing.T) {
	store := newTestStore(t)

	photo := &CachedPhoto{
		OriginalReference: "ChIJ_abc",
		CachedURL:         "https://cdn.test.local/abc.jpg",
		MaxWidth:          conf.WidthMedium,
		ExpiresAt:         time.Now().Add(time.Hour),
		FetchCount:        1,
		LastAccessedAt:    time.Now().Add(-time.Hour),
	}
	require.NoError(t, store.SaveCachedPhoto(photo))

	require.NoError(t, store.UpdateCachedPhotoAccess(photo.ID))

	got, err := store.GetLatestCachedPhoto("ChIJ_abc", conf.WidthMedium)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.FetchCount)
	assert.WithinDuration(t, time.Now(), got.LastAccessedAt, time.Minute)
}

func TestUpdateCachedPhotoAccessMissingRecord(t *testing.T) {
	store := newTestStore(t)

	// The record may be swept between read and update; that is not an error.
	assert.NoError(t, store.UpdateCachedPhotoAccess(9999))
}

func TestDeleteExpiredCachedPhotos(t *testing.T) {
	store := newTestStore(t)

	now := time.Now()
	fresh := &CachedPhoto{
		OriginalReference: "ChIJ_fresh",
		MaxWidth:          conf.WidthMedium,
		ExpiresAt:         now.Add(time.Hour),
	}
	stale := &CachedPhoto{
		OriginalReference: "ChIJ_stale",
		MaxWidth:          conf.WidthMedium,
		ExpiresAt:         now.Add(-time.Hour),
	}
	require.NoError(t, store.SaveCachedPhoto(fresh))
	require.NoError(t, store.SaveCachedPhoto(stale))

	removed, err := store.DeleteExpiredCachedPhotos(now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	got, err := store.GetLatestCachedPhoto("ChIJ_fresh", conf.WidthMedium)
	require.NoError(t, err)
	assert.NotNil(t, got)

	got, err = store.GetLatestCachedPhoto("ChIJ_stale", conf.WidthMedium)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCachedPhotoStats(t *testing.T) {
	store := newTestStore(t)

	now := time.Now()
	require.NoError(t, store.SaveCachedPhoto(&CachedPhoto{
		OriginalReference: "ChIJ_a",
		MaxWidth:          conf.WidthMedium,
		ExpiresAt:         now.Add(time.Hour),
		FetchCount:        3,
	}))
	require.NoError(t, store.SaveCachedPhoto(&CachedPhoto{
		OriginalReference: "ChIJ_b",
		MaxWidth:          conf.WidthLow,
		ExpiresAt:         now.Add(-time.Hour),
		FetchCount:        2,
	}))

	stats, err := store.CachedPhotoStats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Expired)
	assert.Equal(t, int64(5), stats.TotalFetch)
}

func TestCachedPhotoStatsEmptyTable(t *testing.T) {
	store := newTestStore(t)

	stats, err := store.CachedPhotoStats()
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.TotalFetch)
}

func TestPlaceQueries(t *testing.T) {
	store := newTestStore(t)

	seed := []Place{
		{Name: "Cafe", PhotoRef: "ChIJ_cafe"},
		{Name: "Park", PhotoRef: "https://storage.test.local/places/2/abc.jpg"},
		{Name: "NoPhoto", PhotoRef: ""},
	}
	for i := range seed {
		require.NoError(t, store.DB.Create(&seed[i]).Error)
	}

	withPhotos, err := store.GetPlacesWithPhotos()
	require.NoError(t, err)
	assert.Len(t, withPhotos, 2, "places without a photo are excluded")

	needing, err := store.GetPlacesNeedingMigration("https://storage.test.local/")
	require.NoError(t, err)
	require.Len(t, needing, 1)
	assert.Equal(t, "Cafe", needing[0].Name)

	place, err := store.GetPlace(seed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Cafe", place.Name)
}

func TestUpdatePlacePhotoRef(t *testing.T) {
	store := newTestStore(t)

	place := Place{Name: "Cafe", PhotoRef: "ChIJ_cafe"}
	require.NoError(t, store.DB.Create(&place).Error)

	require.NoError(t, store.UpdatePlacePhotoRef(place.ID, "https://storage.test.local/places/1/abc.jpg"))

	got, err := store.GetPlace(place.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://storage.test.local/places/1/abc.jpg", got.PhotoRef)

	// After the rewrite the place no longer needs migration.
	needing, err := store.GetPlacesNeedingMigration("https://storage.test.local/")
	require.NoError(t, err)
	assert.Empty(t, needing)

	assert.Error(t, store.UpdatePlacePhotoRef(place.ID, ""), "empty URL must be rejected")
}

func TestFlagPlacePhoto(t *testing.T) {
	store := newTestStore(t)

	place := Place{Name: "Cafe", PhotoRef: "ChIJ_cafe"}
	require.NoError(t, store.DB.Create(&place).Error)

	checkedAt := time.Now()
	require.NoError(t, store.FlagPlacePhoto(place.ID, true, checkedAt))

	got, err := store.GetPlace(place.ID)
	require.NoError(t, err)
	assert.True(t, got.PhotoNeedsRefresh)
	require.NotNil(t, got.PhotoCheckedAt)
	assert.WithinDuration(t, checkedAt, *got.PhotoCheckedAt, time.Second)

	// A later healthy probe clears the flag but keeps the timestamp fresh.
	require.NoError(t, store.FlagPlacePhoto(place.ID, false, time.Now()))
	got, err = store.GetPlace(place.ID)
	require.NoError(t, err)
	assert.False(t, got.PhotoNeedsRefresh)
}

func TestMigrationSessionLifecycle(t *testing.T) {
	store := newTestStore(t)

	session := &ImageMigrationSession{
		ID:        uuid.NewString(),
		Total:     2,
		Status:    SessionRunning,
		StartedAt: time.Now(),
	}
	require.NoError(t, store.CreateMigrationSession(session))
	assert.Error(t, store.CreateMigrationSession(&ImageMigrationSession{}), "empty ID must be rejected")

	require.NoError(t, store.SaveMigrationResult(&ImageMigrationResult{
		SessionID: session.ID,
		PlaceID:   1,
		Success:   true,
		NewURL:    "https://storage.test.local/places/1/abc.jpg",
	}))
	require.NoError(t, store.SaveMigrationResult(&ImageMigrationResult{
		SessionID:    session.ID,
		PlaceID:      2,
		ErrorMessage: "origin fetch failed with status 500",
	}))

	now := time.Now()
	session.Migrated = 1
	session.Failed = 1
	session.Status = SessionCompleted
	session.CompletedAt = &now
	require.NoError(t, store.UpdateMigrationSession(session))

	latest, err := store.LatestMigrationSession()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, session.ID, latest.ID)
	assert.Equal(t, SessionCompleted, latest.Status)
	require.NotNil(t, latest.CompletedAt)

	results, err := store.GetMigrationResults(session.ID)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestLatestMigrationSessionPicksNewest(t *testing.T) {
	store := newTestStore(t)

	old := &ImageMigrationSession{ID: uuid.NewString(), Status: SessionCompleted, StartedAt: time.Now().Add(-time.Hour)}
	recent := &ImageMigrationSession{ID: uuid.NewString(), Status: SessionRunning, StartedAt: time.Now()}
	require.NoError(t, store.CreateMigrationSession(old))
	require.NoError(t, store.CreateMigrationSession(recent))

	latest, err := store.LatestMigrationSession()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, recent.ID, latest.ID)
}

func TestLatestSessionsEmpty(t *testing.T) {
	store := newTestStore(t)

	migration, err := store.LatestMigrationSession()
	require.NoError(t, err)
	assert.Nil(t, migration)

	health, err := store.LatestHealthSession()
	require.NoError(t, err)
	assert.Nil(t, health)
}

func TestHealthResultQueries(t *testing.T) {
	store := newTestStore(t)

	first := &ImageHealthSession{ID: uuid.NewString(), Status: SessionCompleted, StartedAt: time.Now().Add(-time.Hour)}
	second := &ImageHealthSession{ID: uuid.NewString(), Status: SessionRunning, StartedAt: time.Now()}
	require.NoError(t, store.CreateHealthSession(first))
	require.NoError(t, store.CreateHealthSession(second))

	require.NoError(t, store.SaveHealthResult(&ImageHealthResult{
		SessionID:           first.ID,
		PlaceID:             1,
		FailureKind:         "not_found",
		StatusCode:          404,
		ConsecutiveFailures: 1,
		CheckedAt:           time.Now().Add(-time.Hour),
	}))
	require.NoError(t, store.SaveHealthResult(&ImageHealthResult{
		SessionID:           second.ID,
		PlaceID:             1,
		FailureKind:         "not_found",
		StatusCode:          404,
		ConsecutiveFailures: 2,
		CheckedAt:           time.Now(),
	}))
	require.NoError(t, store.SaveHealthResult(&ImageHealthResult{
		SessionID: second.ID,
		PlaceID:   2,
		Healthy:   true,
		CheckedAt: time.Now(),
	}))

	// The carry-over query sees the newest probe across sessions.
	prior, err := store.LatestHealthResultForPlace(1)
	require.NoError(t, err)
	require.NotNil(t, prior)
	assert.Equal(t, 2, prior.ConsecutiveFailures)
	assert.Equal(t, second.ID, prior.SessionID)

	none, err := store.LatestHealthResultForPlace(42)
	require.NoError(t, err)
	assert.Nil(t, none)

	failures, err := store.RecentHealthFailures(10)
	require.NoError(t, err)
	require.Len(t, failures, 2, "healthy results are excluded")
	assert.Equal(t, second.ID, failures[0].SessionID, "newest failures come first")

	capped, err := store.RecentHealthFailures(1)
	require.NoError(t, err)
	assert.Len(t, capped, 1)

	results, err := store.GetHealthResults(second.ID)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
