// service.go: orchestrator composing the cache layers into one photo URL API
package photocache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/placewise/photocache/internal/conf"
	"github.com/placewise/photocache/internal/datastore"
	"github.com/placewise/photocache/internal/observability/metrics"
	"golang.org/x/sync/singleflight"
)

// backgroundQueueSize bounds the task queue feeding the background worker.
// Overflow drops the task; every enqueued write is best-effort anyway.
const backgroundQueueSize = 256

// recordSource tags which resolution path created a durable record.
const recordSourceProxy = "proxy"

// Service resolves photo references to display URLs through a layered cache:
// device cache, process-local cache, request coalescer, durable record store
// and finally the deterministic proxy URL. The resolution path never fails
// outward; every error degrades to a constructed proxy URL.
type Service struct {
	store    datastore.Interface
	device   *DeviceCache
	memory   *gocache.Cache
	flight   singleflight.Group
	metrics  *metrics.PhotoCacheMetrics
	endpoint string

	// pendingUpdates coalesces access counter bumps: at most one scheduled
	// write per record per conf.AccessUpdateInterval.
	pendingUpdates map[uint]time.Time
	pendingMu      sync.Mutex

	tasks chan func()
	quit  chan struct{}
	wg    sync.WaitGroup
}

// PhotoURLResult is one resolved entry of a batch request.
type PhotoURLResult struct {
	Reference string
	Quality   conf.QualityLevel
	URL       string
}

// ServiceStats aggregates statistics over all cache layers.
type ServiceStats struct {
	MemoryEntries int
	Device        DeviceCacheStats
	Durable       datastore.CachedPhotoStats
}

// New creates a photo cache service and starts its background write worker.
// The device cache and metrics are optional; a nil device cache simply skips
// that layer. Callers own the service lifecycle and must Close it.
func New(store datastore.Interface, device *DeviceCache, proxyEndpoint string, m *metrics.PhotoCacheMetrics) *Service {
	s := &Service{
		store:          store,
		device:         device,
		memory:         gocache.New(conf.MemoryCacheTTL, conf.MemoryCacheTTL*2),
		metrics:        m,
		endpoint:       proxyEndpoint,
		pendingUpdates: make(map[uint]time.Time),
		tasks:          make(chan func(), backgroundQueueSize),
		quit:           make(chan struct{}),
	}

	if device != nil && m != nil {
		device.SetMetrics(m)
	}

	s.wg.Add(1)
	go s.backgroundWorker()

	return s
}

// backgroundWorker runs detached best-effort writes (durable record inserts,
// access counter bumps) off the response path.
func (s *Service) backgroundWorker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		case task := <-s.tasks:
			task()
		}
	}
}

// enqueue hands a task to the background worker. A full queue drops the
// task: these writes are best-effort by contract.
func (s *Service) enqueue(task func()) {
	select {
	case s.tasks <- task:
	default:
		getLogger().Warn("Background task queue full, dropping write")
	}
}

// GetPhotoURL resolves a photo reference to a display URL. Resolution
// short-circuits on the first cache hit: device cache, process-local cache,
// coalesced in-flight request, durable record, constructed proxy URL. The
// call never fails; the worst case is an uncached proxy URL. An empty
// reference yields an empty URL.
func (s *Service) GetPhotoURL(reference string, quality conf.QualityLevel, placeID *uint) string {
	if reference == "" {
		return ""
	}

	width := conf.WidthForQuality(quality)
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveLookupDuration(time.Since(start).Seconds())
		}
	}()

	// Layer 1: device cache. Already durable, no write-back needed.
	if s.device != nil {
		if url := s.device.Get(reference, width); url != "" {
			if s.metrics != nil {
				s.metrics.IncrementCacheHit("device")
			}
			return url
		}
	}

	key := cacheKey(reference, width)

	// Layer 2: process-local cache. Write the hit through to the device
	// cache so later sessions on this device benefit.
	if v, found := s.memory.Get(key); found {
		url := v.(string)
		if s.device != nil {
			s.device.Set(reference, width, url, quality, 0)
		}
		if s.metrics != nil {
			s.metrics.IncrementCacheHit("memory")
		}
		return url
	}

	// Layers 3-5: coalesce concurrent identical requests into one durable
	// lookup. The resolver absorbs all errors, so Do never returns one.
	v, _, shared := s.flight.Do(key, func() (any, error) {
		return s.resolveAndStore(reference, width, quality, placeID), nil
	})
	if shared && s.metrics != nil {
		s.metrics.IncrementCacheHit("coalesced")
	}
	return v.(string)
}

// resolveAndStore performs the durable lookup and stores the result into the
// faster layers.
func (s *Service) resolveAndStore(reference string, width int, quality conf.QualityLevel, placeID *uint) string {
	url := s.fetchDurable(reference, width, quality, placeID)

	s.memory.Set(cacheKey(reference, width), url, gocache.DefaultExpiration)
	if s.device != nil {
		s.device.Set(reference, width, url, quality, 0)
	}

	return url
}

// fetchDurable queries the durable record store for the latest mapping. A
// live record schedules a lazy access bump and is returned immediately. A
// miss, an expired record or a store failure all degrade to the proxy URL;
// on a plain miss a fresh durable record is persisted fire-and-forget.
func (s *Service) fetchDurable(reference string, width int, quality conf.QualityLevel, placeID *uint) string {
	if s.metrics != nil {
		s.metrics.IncrementDurableLookups()
	}

	record, err := s.store.GetLatestCachedPhoto(reference, width)
	if err != nil {
		getLogger().Warn("Durable photo lookup failed, falling back to proxy URL",
			"reference", reference,
			"max_width", width,
			"error", err)
		if s.metrics != nil {
			s.metrics.IncrementProxyFallbacks()
		}
		return BuildProxyURL(s.endpoint, reference, width)
	}

	now := time.Now()
	if record != nil && record.ExpiresAt.After(now) {
		s.scheduleAccessUpdate(record.ID)
		if s.metrics != nil {
			s.metrics.IncrementCacheHit("durable")
		}
		return record.CachedURL
	}

	if s.metrics != nil {
		s.metrics.IncrementCacheMisses()
	}

	proxyURL := BuildProxyURL(s.endpoint, reference, width)

	photo := &datastore.CachedPhoto{
		PlaceID:           placeID,
		OriginalReference: reference,
		CachedURL:         proxyURL,
		MaxWidth:          width,
		QualityLevel:      string(quality),
		ExpiresAt:         now.Add(conf.DurableRecordTTL),
		FetchCount:        1,
		LastAccessedAt:    now,
		Source:            recordSourceProxy,
	}
	s.enqueue(func() {
		if err := s.store.SaveCachedPhoto(photo); err != nil {
			getLogger().Warn("Failed to persist durable photo record",
				"reference", photo.OriginalReference,
				"error", err)
		}
	})

	return proxyURL
}

// scheduleAccessUpdate queues a fetch counter bump for a record unless one
// was already scheduled within the coalescing interval. The write itself is
// an approximate, non-linearizable read-modify-write; lost updates under
// concurrency are accepted.
func (s *Service) scheduleAccessUpdate(recordID uint) {
	now := time.Now()

	s.pendingMu.Lock()
	if last, ok := s.pendingUpdates[recordID]; ok && now.Sub(last) < conf.AccessUpdateInterval {
		s.pendingMu.Unlock()
		return
	}
	s.pendingUpdates[recordID] = now
	s.pendingMu.Unlock()

	s.enqueue(func() {
		if err := s.store.UpdateCachedPhotoAccess(recordID); err != nil {
			getLogger().Debug("Access counter update failed", "record_id", recordID, "error", err)
			return
		}
		if s.metrics != nil {
			s.metrics.IncrementAccessUpdates()
		}
	})
}

// comboKey identifies one requested (reference, quality) pair.
type comboKey struct {
	reference string
	quality   conf.QualityLevel
}

// GetPhotoURLs resolves the Cartesian product of references and qualities.
// Identical pairs are deduplicated up front, the device cache is consulted
// for all pairs in one batch, and only misses fall through to the full
// resolution path. Exactly one entry per unique requested pair is returned;
// ordering follows completion, not input.
func (s *Service) GetPhotoURLs(references []string, qualities []conf.QualityLevel, placeID *uint) []PhotoURLResult {
	seen := make(map[comboKey]struct{})
	combos := make([]comboKey, 0, len(references)*len(qualities))
	for _, ref := range references {
		if ref == "" {
			continue
		}
		for _, q := range qualities {
			key := comboKey{reference: ref, quality: q}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			combos = append(combos, key)
		}
	}

	results := make([]PhotoURLResult, 0, len(combos))
	var misses []comboKey

	// Batch-check the device cache for every combination at once.
	if s.device != nil {
		hits := make(map[PhotoRequest]string, len(combos))
		requests := make([]PhotoRequest, 0, len(combos))
		for _, combo := range combos {
			requests = append(requests, PhotoRequest{
				Reference: combo.reference,
				MaxWidth:  conf.WidthForQuality(combo.quality),
			})
		}
		for _, res := range s.device.BatchGet(requests) {
			if res.URL != "" {
				hits[PhotoRequest{Reference: res.Reference, MaxWidth: res.MaxWidth}] = res.URL
			}
		}
		for _, combo := range combos {
			req := PhotoRequest{Reference: combo.reference, MaxWidth: conf.WidthForQuality(combo.quality)}
			if url, ok := hits[req]; ok {
				if s.metrics != nil {
					s.metrics.IncrementCacheHit("device")
				}
				results = append(results, PhotoURLResult{
					Reference: combo.reference,
					Quality:   combo.quality,
					URL:       url,
				})
				continue
			}
			misses = append(misses, combo)
		}
	} else {
		misses = combos
	}

	// Resolve misses through the single-item path in parallel.
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, combo := range misses {
		wg.Add(1)
		go func(ck comboKey) {
			defer wg.Done()
			url := s.GetPhotoURL(ck.reference, ck.quality, placeID)
			mu.Lock()
			results = append(results, PhotoURLResult{
				Reference: ck.reference,
				Quality:   ck.quality,
				URL:       url,
			})
			mu.Unlock()
		}(combo)
	}
	wg.Wait()

	return results
}

// PrecachePlacePhotos warms every cache layer for a place's photos. Each
// resolution runs in parallel; the inner path never fails, so the whole
// warm-up always completes.
func (s *Service) PrecachePlacePhotos(placeID uint, references []string, qualities []conf.QualityLevel) {
	var wg sync.WaitGroup
	for _, ref := range references {
		for _, q := range qualities {
			wg.Add(1)
			go func(reference string, quality conf.QualityLevel) {
				defer wg.Done()
				s.GetPhotoURL(reference, quality, &placeID)
			}(ref, q)
		}
	}
	wg.Wait()

	getLogger().Debug("Precached place photos",
		"place_id", placeID,
		"references", len(references),
		"qualities", len(qualities))
}

// Stats reports entry counts across the cache layers. Durable store errors
// leave that section zeroed.
func (s *Service) Stats() ServiceStats {
	stats := ServiceStats{
		MemoryEntries: s.memory.ItemCount(),
	}
	if s.device != nil {
		stats.Device = s.device.Stats()
		if s.metrics != nil {
			s.metrics.SetDeviceCacheSize(float64(stats.Device.Size))
		}
	}
	if durable, err := s.store.CachedPhotoStats(); err == nil {
		stats.Durable = durable
	}
	return stats
}

// Close stops the background worker. The device cache is owned by the
// caller and closed separately.
func (s *Service) Close() {
	close(s.quit)
	s.wg.Wait()
}
