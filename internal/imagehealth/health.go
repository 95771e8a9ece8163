// health.go: session-tracked liveness probing of cached place photo URLs
package imagehealth

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/placewise/photocache/internal/conf"
	"github.com/placewise/photocache/internal/datastore"
	"github.com/placewise/photocache/internal/errors"
	"golang.org/x/sync/errgroup"
)

// Probe failure taxonomy. Every failed probe maps into exactly one kind.
const (
	FailureTimeout     = "timeout"
	FailureNotFound    = "not_found"
	FailureForbidden   = "forbidden"
	FailureServerError = "server_error"
	FailureNetwork     = "network"
	FailureUnknown     = "unknown"
)

// recentFailureLimit caps the failure sample returned by Stats.
const recentFailureLimit = 20

// Config tunes a health check service. Zero values fall back to the package
// defaults from conf.
type Config struct {
	BatchSize    int           // defaults to conf.HealthCheckBatchSize
	BatchDelay   time.Duration // pause between batches, defaults to conf.HealthCheckBatchDelay
	ProbeTimeout time.Duration // per-probe timeout, defaults to conf.HealthProbeTimeout
}

// Service probes place photo URLs for liveness in session-tracked batches,
// classifies failures and flags broken photos for remediation. Individual
// probe failures are recorded, never fatal; only session bootstrap failures
// propagate.
type Service struct {
	store  datastore.Interface
	client *http.Client
	cfg    Config
}

// Stats aggregates the latest session's outcomes for dashboards.
type Stats struct {
	TotalChecked   int
	Healthy        int
	Broken         int
	ErrorBreakdown map[string]int
	RecentFailures []datastore.ImageHealthResult
}

// New creates a health check service.
func New(store datastore.Interface, cfg Config) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = conf.HealthCheckBatchSize
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = conf.HealthCheckBatchDelay
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = conf.HealthProbeTimeout
	}
	return &Service{
		store: store,
		// Timeouts are enforced per probe via context, not on the client.
		client: &http.Client{},
		cfg:    cfg,
	}
}

// Run executes one full health check pass over every place with a photo.
func (s *Service) Run(ctx context.Context) (*datastore.ImageHealthSession, error) {
	places, err := s.store.GetPlacesWithPhotos()
	if err != nil {
		return nil, errors.New(err).
			Component("imagehealth").
			Category(errors.CategoryHealthCheck).
			Context("operation", "query_places").
			Build()
	}

	session := &datastore.ImageHealthSession{
		ID:        uuid.NewString(),
		Total:     len(places),
		Status:    datastore.SessionRunning,
		StartedAt: time.Now(),
	}
	if err := s.store.CreateHealthSession(session); err != nil {
		// The session row is the only fatal dependency of a run.
		return nil, errors.New(err).
			Component("imagehealth").
			Category(errors.CategoryHealthCheck).
			Priority(errors.PriorityHigh).
			Context("operation", "create_session").
			Build()
	}

	getLogger().Info("Health check run started",
		"session_id", session.ID,
		"places", len(places),
		"batch_size", s.cfg.BatchSize)

	for start := 0; start < len(places); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(places) {
			end = len(places)
		}

		s.processBatch(ctx, session, places[start:end])

		if err := s.store.UpdateHealthSession(session); err != nil {
			getLogger().Warn("Failed to update session counters",
				"session_id", session.ID,
				"error", err)
		}

		if ctx.Err() != nil {
			return s.finalize(session, datastore.SessionFailed), ctx.Err()
		}

		if end < len(places) {
			select {
			case <-ctx.Done():
				return s.finalize(session, datastore.SessionFailed), ctx.Err()
			case <-time.After(s.cfg.BatchDelay):
			}
		}
	}

	session = s.finalize(session, datastore.SessionCompleted)

	getLogger().Info("Health check run completed",
		"session_id", session.ID,
		"healthy", session.Healthy,
		"broken", session.Broken)

	return session, nil
}

// processBatch probes one batch with full parallelism inside the batch.
func (s *Service) processBatch(ctx context.Context, session *datastore.ImageHealthSession, batch []datastore.Place) {
	results := make([]datastore.ImageHealthResult, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	for i := range batch {
		i := i
		g.Go(func() error {
			results[i] = s.checkPlace(gctx, session.ID, &batch[i])
			return nil
		})
	}
	_ = g.Wait() // workers only record outcomes, they never return errors

	now := time.Now()
	for i := range results {
		if err := s.store.SaveHealthResult(&results[i]); err != nil {
			getLogger().Warn("Failed to record health result",
				"session_id", session.ID,
				"place_id", results[i].PlaceID,
				"error", err)
		}

		if results[i].Healthy {
			session.Healthy++
		} else {
			session.Broken++
		}

		// Touch the place: broken photos are flagged for remediation.
		if err := s.store.FlagPlacePhoto(results[i].PlaceID, !results[i].Healthy, now); err != nil {
			getLogger().Warn("Failed to flag place photo",
				"place_id", results[i].PlaceID,
				"error", err)
		}
	}
}

// checkPlace probes one place photo and builds its result record, carrying
// the consecutive failure counter over from the previous run.
func (s *Service) checkPlace(ctx context.Context, sessionID string, place *datastore.Place) datastore.ImageHealthResult {
	result := datastore.ImageHealthResult{
		SessionID: sessionID,
		PlaceID:   place.ID,
		URL:       place.PhotoRef,
		CheckedAt: time.Now(),
	}

	statusCode, failureKind := s.probe(ctx, place.PhotoRef)
	result.StatusCode = statusCode

	if failureKind == "" {
		result.Healthy = true
		result.ConsecutiveFailures = 0
		return result
	}

	result.FailureKind = failureKind

	prior, err := s.store.LatestHealthResultForPlace(place.ID)
	if err != nil {
		getLogger().Debug("Could not load prior health result",
			"place_id", place.ID,
			"error", err)
	}
	if prior != nil {
		result.ConsecutiveFailures = prior.ConsecutiveFailures + 1
	} else {
		result.ConsecutiveFailures = 1
	}

	getLogger().Debug("Photo probe failed",
		"place_id", place.ID,
		"kind", failureKind,
		"status_code", statusCode,
		"consecutive_failures", result.ConsecutiveFailures)

	return result
}

// probe issues a bounded liveness check against a URL. An empty failure kind
// means the URL is healthy. The status code is zero when the request never
// produced a response.
func (s *Service) probe(ctx context.Context, url string) (int, string) {
	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, url, http.NoBody)
	if err != nil {
		return 0, FailureUnknown
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if probeCtx.Err() != nil {
			return 0, FailureTimeout
		}
		return 0, FailureNetwork
	}
	defer func() { _ = resp.Body.Close() }()

	// A response that only arrived after the deadline still counts as a
	// timeout.
	if probeCtx.Err() != nil {
		return 0, FailureTimeout
	}

	return resp.StatusCode, classifyStatus(resp.StatusCode)
}

// classifyStatus maps an HTTP status code into the failure taxonomy. An
// empty string means healthy.
func classifyStatus(code int) string {
	switch {
	case code >= 200 && code < 400:
		return ""
	case code == http.StatusNotFound || code == http.StatusGone:
		return FailureNotFound
	case code == http.StatusForbidden || code == http.StatusUnauthorized:
		return FailureForbidden
	case code >= 500:
		return FailureServerError
	default:
		return FailureUnknown
	}
}

// finalize stamps the session's terminal status and persists it.
func (s *Service) finalize(session *datastore.ImageHealthSession, status string) *datastore.ImageHealthSession {
	now := time.Now()
	session.Status = status
	session.CompletedAt = &now
	if err := s.store.UpdateHealthSession(session); err != nil {
		getLogger().Warn("Failed to finalize health session",
			"session_id", session.ID,
			"error", err)
	}
	return session
}

// LatestSession returns the most recent health session, or nil.
func (s *Service) LatestSession() (*datastore.ImageHealthSession, error) {
	return s.store.LatestHealthSession()
}

// SessionResults returns every per-place result of a session.
func (s *Service) SessionResults(sessionID string) ([]datastore.ImageHealthResult, error) {
	return s.store.GetHealthResults(sessionID)
}

// Stats aggregates the latest session with a sample of recent failures.
func (s *Service) Stats() (Stats, error) {
	stats := Stats{ErrorBreakdown: make(map[string]int)}

	session, err := s.store.LatestHealthSession()
	if err != nil {
		return stats, err
	}
	if session == nil {
		return stats, nil
	}

	stats.TotalChecked = session.Total
	stats.Healthy = session.Healthy
	stats.Broken = session.Broken

	results, err := s.store.GetHealthResults(session.ID)
	if err != nil {
		return stats, err
	}
	for i := range results {
		if !results[i].Healthy {
			stats.ErrorBreakdown[results[i].FailureKind]++
		}
	}

	failures, err := s.store.RecentHealthFailures(recentFailureLimit)
	if err != nil {
		return stats, err
	}
	stats.RecentFailures = failures

	return stats, nil
}
