// devicecache.go: persistent per-device cache of resolved photo URLs
package photocache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/placewise/photocache/internal/conf"
	"github.com/placewise/photocache/internal/observability/metrics"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// keyPrefix namespaces cache rows so the underlying store can hold
// unrelated data without collisions.
const keyPrefix = "photo_cache_"

// deviceCacheRow is the storage schema of one cache entry. The payload is
// JSON so a corrupt row degrades to a miss instead of a query error.
type deviceCacheRow struct {
	Key       string    `gorm:"primaryKey"`
	Payload   string    // JSON-encoded devicePayload
	Timestamp time.Time `gorm:"index"` // write time, decides eviction order
}

func (deviceCacheRow) TableName() string {
	return "device_cache"
}

type devicePayload struct {
	URL     string `json:"url"`
	Quality string `json:"quality"`
	TTLSec  int64  `json:"ttl"`
}

// DeviceCacheConfig tunes a DeviceCache. Zero values fall back to the
// package defaults from conf.
type DeviceCacheConfig struct {
	Path            string        // path of the local SQLite file
	MaxEntries      int           // size bound, defaults to conf.MaxDeviceCacheEntries
	DefaultTTL      time.Duration // defaults to conf.DeviceCacheTTL
	JanitorInterval time.Duration // defaults to conf.DeviceCacheJanitor
}

// DeviceCache is a durable, size-bounded cache of (reference, maxWidth) to
// URL mappings scoped to this device. Expiry is lazy on read; the only
// proactive sweep is the periodic janitor. Every operation fails soft: a
// broken store produces misses, never errors on the read path.
type DeviceCache struct {
	db         *gorm.DB
	maxEntries int
	defaultTTL time.Duration
	metrics    *metrics.PhotoCacheMetrics
	quit       chan struct{}
}

// SetMetrics attaches eviction metrics to the cache. Optional; a nil receiver
// value simply skips instrumentation.
func (c *DeviceCache) SetMetrics(m *metrics.PhotoCacheMetrics) {
	c.metrics = m
}

// DeviceCacheStats summarizes the current cache contents.
type DeviceCacheStats struct {
	Size           int
	TotalSizeBytes int64
	ExpiredCount   int
}

// PhotoRequest identifies one cache lookup.
type PhotoRequest struct {
	Reference string
	MaxWidth  int
}

// BatchResult is the outcome of one lookup in a batch get. URL is empty on
// a miss.
type BatchResult struct {
	Reference string
	MaxWidth  int
	URL       string
}

// NewDeviceCache opens the local cache store and starts the cleanup janitor.
func NewDeviceCache(cfg DeviceCacheConfig) (*DeviceCache, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("device cache path cannot be empty")
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = conf.MaxDeviceCacheEntries
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = conf.DeviceCacheTTL
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = conf.DeviceCacheJanitor
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open device cache store: %w", err)
	}
	if err := db.AutoMigrate(&deviceCacheRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate device cache store: %w", err)
	}

	c := &DeviceCache{
		db:         db,
		maxEntries: cfg.MaxEntries,
		defaultTTL: cfg.DefaultTTL,
		quit:       make(chan struct{}),
	}

	go c.startJanitor(cfg.JanitorInterval)

	return c, nil
}

// startJanitor periodically removes expired entries until Close.
func (c *DeviceCache) startJanitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.quit:
			return
		case <-ticker.C:
			removed := c.Cleanup()
			if removed > 0 {
				getLogger().Debug("Device cache janitor removed expired entries",
					"removed", removed)
			}
		}
	}
}

// cacheKey derives the storage key for a reference and width. Deterministic,
// no hashing.
func cacheKey(reference string, maxWidth int) string {
	return fmt.Sprintf("%s%s:%d", keyPrefix, reference, maxWidth)
}

// Get returns the cached URL for the reference and width, or "" on a miss.
// Entries past their TTL are deleted on read. Read or parse failures degrade
// to a miss.
func (c *DeviceCache) Get(reference string, maxWidth int) string {
	var row deviceCacheRow
	err := c.db.First(&row, "key = ?", cacheKey(reference, maxWidth)).Error
	if err != nil {
		return ""
	}

	var payload devicePayload
	if err := json.Unmarshal([]byte(row.Payload), &payload); err != nil {
		// Corrupt entry, drop it and treat as a miss.
		c.Delete(reference, maxWidth)
		return ""
	}

	ttl := time.Duration(payload.TTLSec) * time.Second
	if time.Since(row.Timestamp) > ttl {
		c.Delete(reference, maxWidth)
		return ""
	}

	return payload.URL
}

// Set writes a cache entry, enforcing the size bound first. A failed write
// triggers one cleanup of expired entries followed by a single retry;
// persistent failure is swallowed.
func (c *DeviceCache) Set(reference string, maxWidth int, resolvedURL string, quality conf.QualityLevel, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.ensureCacheSize()

	payload, err := json.Marshal(devicePayload{
		URL:     resolvedURL,
		Quality: string(quality),
		TTLSec:  int64(ttl / time.Second),
	})
	if err != nil {
		return
	}

	row := deviceCacheRow{
		Key:       cacheKey(reference, maxWidth),
		Payload:   string(payload),
		Timestamp: time.Now(),
	}

	if err := c.db.Save(&row).Error; err != nil {
		getLogger().Warn("Device cache write failed, cleaning up and retrying",
			"reference", reference,
			"error", err)
		c.Cleanup()
		if err := c.db.Save(&row).Error; err != nil {
			getLogger().Warn("Device cache write failed after cleanup",
				"reference", reference,
				"error", err)
		}
	}
}

// ensureCacheSize evicts the oldest entries by write timestamp when the
// entry count reaches the bound. Eviction order is approximate LRU: a
// frequently read but never rewritten entry is evicted as readily as a dead
// one. Intentional simplicity, kept as-is.
func (c *DeviceCache) ensureCacheSize() {
	var count int64
	if err := c.db.Model(&deviceCacheRow{}).
		Where("key LIKE ?", keyPrefix+"%").
		Count(&count).Error; err != nil {
		return
	}

	if count < int64(c.maxEntries) {
		return
	}

	// Remove enough entries to get under the bound with headroom for the
	// incoming write.
	toRemove := int(count) - c.maxEntries + 10

	var victims []deviceCacheRow
	if err := c.db.Where("key LIKE ?", keyPrefix+"%").
		Order("timestamp ASC").
		Limit(toRemove).
		Find(&victims).Error; err != nil {
		return
	}

	keys := make([]string, 0, len(victims))
	for i := range victims {
		keys = append(keys, victims[i].Key)
	}
	if len(keys) == 0 {
		return
	}

	if err := c.db.Where("key IN ?", keys).Delete(&deviceCacheRow{}).Error; err != nil {
		getLogger().Warn("Device cache eviction failed", "error", err)
		return
	}

	if c.metrics != nil {
		c.metrics.IncrementDeviceEvictions(float64(len(keys)))
	}

	getLogger().Debug("Device cache evicted oldest entries",
		"evicted", len(keys),
		"count", count)
}

// BatchGet fans a list of lookups out over Get. Misses carry an empty URL;
// there are no partial failure semantics beyond that.
func (c *DeviceCache) BatchGet(requests []PhotoRequest) []BatchResult {
	results := make([]BatchResult, 0, len(requests))
	for _, req := range requests {
		results = append(results, BatchResult{
			Reference: req.Reference,
			MaxWidth:  req.MaxWidth,
			URL:       c.Get(req.Reference, req.MaxWidth),
		})
	}
	return results
}

// Delete removes a single cache entry.
func (c *DeviceCache) Delete(reference string, maxWidth int) {
	c.db.Where("key = ?", cacheKey(reference, maxWidth)).Delete(&deviceCacheRow{})
}

// Clear removes every entry under this cache's namespace.
func (c *DeviceCache) Clear() error {
	if err := c.db.Where("key LIKE ?", keyPrefix+"%").Delete(&deviceCacheRow{}).Error; err != nil {
		return fmt.Errorf("failed to clear device cache: %w", err)
	}
	return nil
}

// Cleanup removes all expired entries and returns how many were removed.
func (c *DeviceCache) Cleanup() int {
	var rows []deviceCacheRow
	if err := c.db.Where("key LIKE ?", keyPrefix+"%").Find(&rows).Error; err != nil {
		return 0
	}

	removed := 0
	now := time.Now()
	for i := range rows {
		var payload devicePayload
		expired := false
		if err := json.Unmarshal([]byte(rows[i].Payload), &payload); err != nil {
			expired = true // corrupt rows count as expired
		} else if now.Sub(rows[i].Timestamp) > time.Duration(payload.TTLSec)*time.Second {
			expired = true
		}
		if expired {
			if err := c.db.Where("key = ?", rows[i].Key).Delete(&deviceCacheRow{}).Error; err == nil {
				removed++
			}
		}
	}
	return removed
}

// Stats reports the current entry count, approximate payload bytes and how
// many entries are already past their TTL.
func (c *DeviceCache) Stats() DeviceCacheStats {
	var stats DeviceCacheStats

	var rows []deviceCacheRow
	if err := c.db.Where("key LIKE ?", keyPrefix+"%").Find(&rows).Error; err != nil {
		return stats
	}

	now := time.Now()
	for i := range rows {
		stats.Size++
		stats.TotalSizeBytes += int64(len(rows[i].Key) + len(rows[i].Payload))

		var payload devicePayload
		if err := json.Unmarshal([]byte(rows[i].Payload), &payload); err != nil {
			stats.ExpiredCount++
			continue
		}
		if now.Sub(rows[i].Timestamp) > time.Duration(payload.TTLSec)*time.Second {
			stats.ExpiredCount++
		}
	}
	return stats
}

// Close stops the janitor and releases the store handle.
func (c *DeviceCache) Close() error {
	close(c.quit)
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
