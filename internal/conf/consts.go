// consts.go: tuning constants for the photo cache and its batch processors
package conf

import "time"

// QualityLevel selects the target pixel width of a resolved photo URL.
type QualityLevel string

const (
	QualityHigh   QualityLevel = "high"
	QualityMedium QualityLevel = "medium"
	QualityLow    QualityLevel = "low"
)

// Per-quality pixel widths requested from the photo proxy.
const (
	WidthHigh   = 1200
	WidthMedium = 800
	WidthLow    = 400
)

// WidthForQuality maps a quality level to its pixel width.
// Unknown levels fall back to medium.
func WidthForQuality(q QualityLevel) int {
	switch q {
	case QualityHigh:
		return WidthHigh
	case QualityLow:
		return WidthLow
	default:
		return WidthMedium
	}
}

// Cache layer lifetimes.
const (
	DeviceCacheTTL     = 30 * time.Minute    // default TTL of device cache entries
	MemoryCacheTTL     = 5 * time.Minute     // process-local cache TTL
	DurableRecordTTL   = 30 * 24 * time.Hour // expiry of durable cached_photos rows
	DeviceCacheJanitor = 5 * time.Minute     // interval of the device cache cleanup sweep
)

// MaxDeviceCacheEntries bounds the device cache size. When the bound is
// reached the oldest entries by write timestamp are evicted.
const MaxDeviceCacheEntries = 200

// AccessUpdateInterval coalesces fetch_count bumps for a single record to at
// most one write per interval.
const AccessUpdateInterval = 5 * time.Minute

// Migration processor tuning.
const (
	MigrationBatchSize  = 10
	MigrationBatchDelay = 2 * time.Second
)

// Health check processor tuning.
const (
	HealthCheckBatchSize  = 5
	HealthCheckBatchDelay = 1 * time.Second
	HealthProbeTimeout    = 10 * time.Second
)
