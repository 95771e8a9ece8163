package imagehealth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placewise/photocache/internal/datastore"
)

// mockStore implements the datastore methods the health service touches.
type mockStore struct {
	datastore.Interface

	mu       sync.Mutex
	places   []datastore.Place
	sessions map[string]*datastore.ImageHealthSession
	results  []datastore.ImageHealthResult
	prior    map[uint]*datastore.ImageHealthResult
	flags    map[uint]bool
	latestID string
}

func newMockStore(places ...datastore.Place) *mockStore {
	return &mockStore{
		places:   places,
		sessions: make(map[string]*datastore.ImageHealthSession),
		prior:    make(map[uint]*datastore.ImageHealthResult),
		flags:    make(map[uint]bool),
	}
}

func (m *mockStore) GetPlacesWithPhotos() ([]datastore.Place, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.places, nil
}

func (m *mockStore) CreateHealthSession(session *datastore.ImageHealthSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *session
	m.sessions[session.ID] = &copied
	m.latestID = session.ID
	return nil
}

func (m *mockStore) UpdateHealthSession(session *datastore.ImageHealthSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

func (m *mockStore) SaveHealthResult(result *datastore.ImageHealthResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, *result)
	return nil
}

func (m *mockStore) FlagPlacePhoto(placeID uint, needsRefresh bool, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[placeID] = needsRefresh
	return nil
}

func (m *mockStore) LatestHealthResultForPlace(placeID uint) (*datastore.ImageHealthResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prior[placeID], nil
}

func (m *mockStore) LatestHealthSession() (*datastore.ImageHealthSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latestID == "" {
		return nil, nil
	}
	return m.sessions[m.latestID], nil
}

func (m *mockStore) GetHealthResults(sessionID string) ([]datastore.ImageHealthResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []datastore.ImageHealthResult
	for _, r := range m.results {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) RecentHealthFailures(limit int) ([]datastore.ImageHealthResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []datastore.ImageHealthResult
	for i := len(m.results) - 1; i >= 0 && len(out) < limit; i-- {
		if !m.results[i].Healthy {
			out = append(out, m.results[i])
		}
	}
	return out, nil
}

func (m *mockStore) resultFor(placeID uint) *datastore.ImageHealthResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.results {
		if m.results[i].PlaceID == placeID {
			return &m.results[i]
		}
	}
	return nil
}

func newTestService(store datastore.Interface) *Service {
	return New(store, Config{
		BatchSize:    2,
		BatchDelay:   time.Millisecond,
		ProbeTimeout: time.Second,
	})
}

func TestRunClassifiesFailures(t *testing.T) {
	store := newMockStore(
		datastore.Place{ID: 1, PhotoRef: "https://img.test.local/ok.jpg"},
		datastore.Place{ID: 2, PhotoRef: "https://img.test.local/gone.jpg"},
		datastore.Place{ID: 3, PhotoRef: "https://img.test.local/private.jpg"},
		datastore.Place{ID: 4, PhotoRef: "https://img.test.local/broken.jpg"},
		datastore.Place{ID: 5, PhotoRef: "https://img.test.local/unreachable.jpg"},
	)
	svc := newTestService(store)

	httpmock.ActivateNonDefault(svc.client)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("HEAD", "https://img.test.local/ok.jpg", httpmock.NewStringResponder(200, ""))
	httpmock.RegisterResponder("HEAD", "https://img.test.local/gone.jpg", httpmock.NewStringResponder(404, ""))
	httpmock.RegisterResponder("HEAD", "https://img.test.local/private.jpg", httpmock.NewStringResponder(403, ""))
	httpmock.RegisterResponder("HEAD", "https://img.test.local/broken.jpg", httpmock.NewStringResponder(503, ""))
	httpmock.RegisterResponder("HEAD", "https://img.test.local/unreachable.jpg",
		httpmock.NewErrorResponder(assert.AnError))

	session, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, session.Total)
	assert.Equal(t, 1, session.Healthy)
	assert.Equal(t, 4, session.Broken)
	assert.Equal(t, datastore.SessionCompleted, session.Status)

	assert.True(t, store.resultFor(1).Healthy)
	assert.Equal(t, FailureNotFound, store.resultFor(2).FailureKind)
	assert.Equal(t, FailureForbidden, store.resultFor(3).FailureKind)
	assert.Equal(t, FailureServerError, store.resultFor(4).FailureKind)
	assert.Equal(t, FailureNetwork, store.resultFor(5).FailureKind)

	assert.Equal(t, 404, store.resultFor(2).StatusCode)
	assert.Equal(t, 0, store.resultFor(5).StatusCode, "no response means no status code")
}

func TestRunProbeTimeout(t *testing.T) {
	store := newMockStore(
		datastore.Place{ID: 1, PhotoRef: "https://img.test.local/slow.jpg"},
	)
	svc := New(store, Config{
		BatchSize:    1,
		BatchDelay:   time.Millisecond,
		ProbeTimeout: 50 * time.Millisecond,
	})

	httpmock.ActivateNonDefault(svc.client)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("HEAD", "https://img.test.local/slow.jpg",
		httpmock.NewStringResponder(200, "").Delay(300*time.Millisecond))

	session, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, session.Broken)
	assert.Equal(t, FailureTimeout, store.resultFor(1).FailureKind)
}

func TestRunFlagsPlaces(t *testing.T) {
	store := newMockStore(
		datastore.Place{ID: 1, PhotoRef: "https://img.test.local/ok.jpg"},
		datastore.Place{ID: 2, PhotoRef: "https://img.test.local/gone.jpg"},
	)
	svc := newTestService(store)

	httpmock.ActivateNonDefault(svc.client)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("HEAD", "https://img.test.local/ok.jpg", httpmock.NewStringResponder(200, ""))
	httpmock.RegisterResponder("HEAD", "https://img.test.local/gone.jpg", httpmock.NewStringResponder(404, ""))

	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.flags, 2, "every probed place is touched")
	assert.False(t, store.flags[1])
	assert.True(t, store.flags[2], "broken photos are flagged for remediation")
}

func TestConsecutiveFailuresCarryOver(t *testing.T) {
	store := newMockStore(
		datastore.Place{ID: 1, PhotoRef: "https://img.test.local/gone.jpg"},
	)
	store.prior[1] = &datastore.ImageHealthResult{
		PlaceID:             1,
		Healthy:             false,
		FailureKind:         FailureNotFound,
		ConsecutiveFailures: 3,
	}
	svc := newTestService(store)

	httpmock.ActivateNonDefault(svc.client)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("HEAD", "https://img.test.local/gone.jpg", httpmock.NewStringResponder(404, ""))

	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, store.resultFor(1).ConsecutiveFailures)
}

func TestConsecutiveFailuresResetOnSuccess(t *testing.T) {
	store := newMockStore(
		datastore.Place{ID: 1, PhotoRef: "https://img.test.local/recovered.jpg"},
	)
	store.prior[1] = &datastore.ImageHealthResult{
		PlaceID:             1,
		Healthy:             false,
		ConsecutiveFailures: 7,
	}
	svc := newTestService(store)

	httpmock.ActivateNonDefault(svc.client)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("HEAD", "https://img.test.local/recovered.jpg", httpmock.NewStringResponder(200, ""))

	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	result := store.resultFor(1)
	assert.True(t, result.Healthy)
	assert.Equal(t, 0, result.ConsecutiveFailures)
}

func TestFirstFailureStartsAtOne(t *testing.T) {
	store := newMockStore(
		datastore.Place{ID: 1, PhotoRef: "https://img.test.local/gone.jpg"},
	)
	svc := newTestService(store)

	httpmock.ActivateNonDefault(svc.client)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("HEAD", "https://img.test.local/gone.jpg", httpmock.NewStringResponder(404, ""))

	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, store.resultFor(1).ConsecutiveFailures)
}

func TestStatsAggregatesLatestSession(t *testing.T) {
	store := newMockStore(
		datastore.Place{ID: 1, PhotoRef: "https://img.test.local/ok.jpg"},
		datastore.Place{ID: 2, PhotoRef: "https://img.test.local/gone.jpg"},
		datastore.Place{ID: 3, PhotoRef: "https://img.test.local/also-gone.jpg"},
		datastore.Place{ID: 4, PhotoRef: "https://img.test.local/private.jpg"},
	)
	svc := newTestService(store)

	httpmock.ActivateNonDefault(svc.client)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("HEAD", "https://img.test.local/ok.jpg", httpmock.NewStringResponder(200, ""))
	httpmock.RegisterResponder("HEAD", "https://img.test.local/gone.jpg", httpmock.NewStringResponder(404, ""))
	httpmock.RegisterResponder("HEAD", "https://img.test.local/also-gone.jpg", httpmock.NewStringResponder(410, ""))
	httpmock.RegisterResponder("HEAD", "https://img.test.local/private.jpg", httpmock.NewStringResponder(401, ""))

	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	stats, err := svc.Stats()
	require.NoError(t, err)

	assert.Equal(t, 4, stats.TotalChecked)
	assert.Equal(t, 1, stats.Healthy)
	assert.Equal(t, 3, stats.Broken)
	assert.Equal(t, 2, stats.ErrorBreakdown[FailureNotFound])
	assert.Equal(t, 1, stats.ErrorBreakdown[FailureForbidden])
	assert.Len(t, stats.RecentFailures, 3)
}

func TestStatsWithoutSessions(t *testing.T) {
	svc := newTestService(newMockStore())

	stats, err := svc.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.TotalChecked)
	assert.Empty(t, stats.RecentFailures)
}

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		code int
		kind string
	}{
		{200, ""},
		{204, ""},
		{301, ""},
		{404, FailureNotFound},
		{410, FailureNotFound},
		{401, FailureForbidden},
		{403, FailureForbidden},
		{500, FailureServerError},
		{503, FailureServerError},
		{418, FailureUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, classifyStatus(tc.code), "status %d", tc.code)
	}
}

func TestRunCancelledContextFailsSession(t *testing.T) {
	store := newMockStore(
		datastore.Place{ID: 1, PhotoRef: "https://img.test.local/a.jpg"},
		datastore.Place{ID: 2, PhotoRef: "https://img.test.local/b.jpg"},
	)
	svc := New(store, Config{BatchSize: 1, BatchDelay: time.Millisecond, ProbeTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session, err := svc.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, session)
	assert.Equal(t, datastore.SessionFailed, session.Status)
}

func TestProbeInvalidURL(t *testing.T) {
	svc := newTestService(newMockStore())

	code, kind := svc.probe(context.Background(), "://not-a-url")
	assert.Equal(t, 0, code)
	assert.Equal(t, FailureUnknown, kind)
}
