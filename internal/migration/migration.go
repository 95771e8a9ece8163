// migration.go: session-tracked bulk migration of place photo references to
// durably stored URLs
package migration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/placewise/photocache/internal/conf"
	"github.com/placewise/photocache/internal/datastore"
	"github.com/placewise/photocache/internal/errors"
	"github.com/placewise/photocache/internal/photocache"
	"golang.org/x/sync/errgroup"
)

// maxImageBytes caps how much of an origin response is read into memory.
const maxImageBytes = 10 << 20 // 10 MiB

// Config tunes a migration service. Zero values fall back to the package
// defaults from conf.
type Config struct {
	ProxyEndpoint   string        // photo proxy used to fetch origin images
	StoredURLPrefix string        // URL prefix identifying already-migrated references
	BatchSize       int           // defaults to conf.MigrationBatchSize
	BatchDelay      time.Duration // pause between batches, defaults to conf.MigrationBatchDelay
	FetchTimeout    time.Duration // per-image origin fetch timeout
}

// Service migrates raw photo references to durable stored URLs in
// session-tracked, rate-limited batches. Individual failures are recorded
// and never abort the run; only session bootstrap failures propagate.
type Service struct {
	store   datastore.Interface
	objects ObjectStore
	client  *http.Client
	cfg     Config
}

// New creates a migration service.
func New(store datastore.Interface, objects ObjectStore, cfg Config) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = conf.MigrationBatchSize
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = conf.MigrationBatchDelay
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	return &Service{
		store:   store,
		objects: objects,
		client:  &http.Client{Timeout: cfg.FetchTimeout},
		cfg:     cfg,
	}
}

// Run executes one full migration pass over every place whose photo
// reference is not yet a stored URL. Re-running is idempotent: already
// migrated places are recognized and recorded as skipped.
func (s *Service) Run(ctx context.Context) (*datastore.ImageMigrationSession, error) {
	places, err := s.store.GetPlacesNeedingMigration(s.cfg.StoredURLPrefix)
	if err != nil {
		return nil, errors.New(err).
			Component("migration").
			Category(errors.CategoryMigration).
			Context("operation", "query_candidates").
			Build()
	}

	session := &datastore.ImageMigrationSession{
		ID:        uuid.NewString(),
		Total:     len(places),
		Status:    datastore.SessionRunning,
		StartedAt: time.Now(),
	}
	if err := s.store.CreateMigrationSession(session); err != nil {
		// The session row is the only fatal dependency of a run.
		return nil, errors.New(err).
			Component("migration").
			Category(errors.CategoryMigration).
			Priority(errors.PriorityHigh).
			Context("operation", "create_session").
			Build()
	}

	getLogger().Info("Migration run started",
		"session_id", session.ID,
		"candidates", len(places),
		"batch_size", s.cfg.BatchSize)

	for start := 0; start < len(places); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(places) {
			end = len(places)
		}

		s.processBatch(ctx, session, places[start:end])

		if err := s.store.UpdateMigrationSession(session); err != nil {
			getLogger().Warn("Failed to update session counters",
				"session_id", session.ID,
				"error", err)
		}

		if ctx.Err() != nil {
			return s.finalize(session, datastore.SessionFailed), ctx.Err()
		}

		// Rate-limit batches so the upstream origin is not overwhelmed.
		if end < len(places) {
			select {
			case <-ctx.Done():
				return s.finalize(session, datastore.SessionFailed), ctx.Err()
			case <-time.After(s.cfg.BatchDelay):
			}
		}
	}

	session = s.finalize(session, datastore.SessionCompleted)

	getLogger().Info("Migration run completed",
		"session_id", session.ID,
		"migrated", session.Migrated,
		"failed", session.Failed,
		"skipped", session.Skipped)

	return session, nil
}

// processBatch migrates one batch with full parallelism inside the batch.
// Every outcome is recorded; errors never escape the batch.
func (s *Service) processBatch(ctx context.Context, session *datastore.ImageMigrationSession, batch []datastore.Place) {
	type outcome struct {
		result  datastore.ImageMigrationResult
		skipped bool
		failed  bool
	}

	outcomes := make([]outcome, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	for i := range batch {
		i := i
		g.Go(func() error {
			place := batch[i]
			res := datastore.ImageMigrationResult{
				SessionID: session.ID,
				PlaceID:   place.ID,
			}

			switch {
			case strings.HasPrefix(place.PhotoRef, s.cfg.StoredURLPrefix):
				// Defensive re-check: the reference was migrated between the
				// candidate query and now, or by a previous run.
				res.Success = true
				res.Skipped = true
				res.NewURL = place.PhotoRef
				outcomes[i] = outcome{result: res, skipped: true}
			default:
				newURL, err := s.migrateOne(gctx, &place)
				if err != nil {
					res.ErrorMessage = err.Error()
					outcomes[i] = outcome{result: res, failed: true}
					getLogger().Warn("Place migration failed",
						"session_id", session.ID,
						"place_id", place.ID,
						"error", err)
				} else {
					res.Success = true
					res.NewURL = newURL
					outcomes[i] = outcome{result: res}
				}
			}
			return nil
		})
	}
	_ = g.Wait() // workers only record outcomes, they never return errors

	for i := range outcomes {
		if err := s.store.SaveMigrationResult(&outcomes[i].result); err != nil {
			getLogger().Warn("Failed to record migration result",
				"session_id", session.ID,
				"place_id", outcomes[i].result.PlaceID,
				"error", err)
		}
		switch {
		case outcomes[i].skipped:
			session.Skipped++
		case outcomes[i].failed:
			session.Failed++
		default:
			session.Migrated++
		}
	}
}

// migrateOne fetches the origin image of a place through the proxy, stores
// it durably and rewrites the place's photo reference.
func (s *Service) migrateOne(ctx context.Context, place *datastore.Place) (string, error) {
	data, contentType, err := s.fetchOriginImage(ctx, place.PhotoRef)
	if err != nil {
		return "", err
	}

	key := objectKey(place.ID, place.PhotoRef)
	storedURL, err := s.objects.Store(ctx, key, data, contentType)
	if err != nil {
		return "", err
	}

	if err := s.store.UpdatePlacePhotoRef(place.ID, storedURL); err != nil {
		return "", err
	}

	return storedURL, nil
}

// fetchOriginImage downloads the image bytes a reference resolves to.
func (s *Service) fetchOriginImage(ctx context.Context, reference string) ([]byte, string, error) {
	originURL := photocache.BuildProxyURL(s.cfg.ProxyEndpoint, reference, conf.WidthHigh)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, originURL, http.NoBody)
	if err != nil {
		return nil, "", errors.New(err).
			Component("migration").
			Category(errors.CategoryImageFetch).
			Build()
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", errors.New(err).
			Component("migration").
			Category(errors.CategoryImageFetch).
			NetworkContext(originURL, s.client.Timeout).
			Build()
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, "", errors.Newf("origin fetch failed with status %d", resp.StatusCode).
			Component("migration").
			Category(errors.CategoryImageFetch).
			Context("status_code", resp.StatusCode).
			Build()
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", errors.New(err).
			Component("migration").
			Category(errors.CategoryImageFetch).
			Build()
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	return data, contentType, nil
}

// finalize stamps the session's terminal status and persists it.
func (s *Service) finalize(session *datastore.ImageMigrationSession, status string) *datastore.ImageMigrationSession {
	now := time.Now()
	session.Status = status
	session.CompletedAt = &now
	if err := s.store.UpdateMigrationSession(session); err != nil {
		getLogger().Warn("Failed to finalize migration session",
			"session_id", session.ID,
			"error", err)
	}
	return session
}

// LatestSession returns the most recent migration session, or nil.
func (s *Service) LatestSession() (*datastore.ImageMigrationSession, error) {
	return s.store.LatestMigrationSession()
}

// SessionResults returns every per-place result of a session.
func (s *Service) SessionResults(sessionID string) ([]datastore.ImageMigrationResult, error) {
	return s.store.GetMigrationResults(sessionID)
}

// objectKey derives a stable storage key for a place photo.
func objectKey(placeID uint, reference string) string {
	sum := sha256.Sum256([]byte(reference))
	return fmt.Sprintf("places/%d/%s.jpg", placeID, hex.EncodeToString(sum[:8]))
}
