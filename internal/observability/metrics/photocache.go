// Package metrics provides custom Prometheus metrics for the photo cache.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PhotoCacheMetrics contains all Prometheus metrics related to photo cache operations.
type PhotoCacheMetrics struct {
	CacheHits       *prometheus.CounterVec
	CacheMisses     prometheus.Counter
	ProxyFallbacks  prometheus.Counter
	DurableLookups  prometheus.Counter
	LookupDuration  prometheus.Histogram
	DeviceCacheSize prometheus.Gauge
	DeviceEvictions prometheus.Counter
	AccessUpdates   prometheus.Counter

	registry *prometheus.Registry
}

// NewPhotoCacheMetrics creates a new instance of PhotoCacheMetrics.
// It requires a Prometheus registry to register the metrics.
// It returns an error if metric registration fails.
func NewPhotoCacheMetrics(registry *prometheus.Registry) (*PhotoCacheMetrics, error) {
	m := &PhotoCacheMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize PhotoCache metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register PhotoCache metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for PhotoCacheMetrics.
func (m *PhotoCacheMetrics) initMetrics() error {
	m.CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "photocache_hits_total",
		Help: "Total number of cache hits by cache layer.",
	}, []string{"layer"})

	m.CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "photocache_misses_total",
		Help: "Total number of full cache misses.",
	})

	m.ProxyFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "photocache_proxy_fallbacks_total",
		Help: "Total number of requests degraded to a constructed proxy URL.",
	})

	m.DurableLookups = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "photocache_durable_lookups_total",
		Help: "Total number of durable record store lookups.",
	})

	m.LookupDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "photocache_lookup_duration_seconds",
		Help:    "Duration of photo URL resolutions in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	m.DeviceCacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "photocache_device_cache_entries",
		Help: "Current number of entries in the device cache.",
	})

	m.DeviceEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "photocache_device_cache_evictions_total",
		Help: "Total number of device cache entries evicted by the size bound.",
	})

	m.AccessUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "photocache_access_updates_total",
		Help: "Total number of lazy access counter writes.",
	})

	return nil
}

// IncrementCacheHit increases the cache hit counter for the given layer.
func (m *PhotoCacheMetrics) IncrementCacheHit(layer string) {
	m.CacheHits.WithLabelValues(layer).Inc()
}

// IncrementCacheMisses increases the full cache miss counter by one.
func (m *PhotoCacheMetrics) IncrementCacheMisses() {
	m.CacheMisses.Inc()
}

// IncrementProxyFallbacks increases the proxy fallback counter by one.
func (m *PhotoCacheMetrics) IncrementProxyFallbacks() {
	m.ProxyFallbacks.Inc()
}

// IncrementDurableLookups increases the durable lookup counter by one.
func (m *PhotoCacheMetrics) IncrementDurableLookups() {
	m.DurableLookups.Inc()
}

// ObserveLookupDuration records the duration of a resolution in seconds.
func (m *PhotoCacheMetrics) ObserveLookupDuration(durationSeconds float64) {
	m.LookupDuration.Observe(durationSeconds)
}

// SetDeviceCacheSize updates the device cache entry count gauge.
func (m *PhotoCacheMetrics) SetDeviceCacheSize(entries float64) {
	m.DeviceCacheSize.Set(entries)
}

// IncrementDeviceEvictions adds evicted entries to the eviction counter.
func (m *PhotoCacheMetrics) IncrementDeviceEvictions(count float64) {
	m.DeviceEvictions.Add(count)
}

// IncrementAccessUpdates increases the lazy access write counter by one.
func (m *PhotoCacheMetrics) IncrementAccessUpdates() {
	m.AccessUpdates.Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *PhotoCacheMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.CacheHits.Describe(ch)
	ch <- m.CacheMisses.Desc()
	ch <- m.ProxyFallbacks.Desc()
	ch <- m.DurableLookups.Desc()
	m.LookupDuration.Describe(ch)
	ch <- m.DeviceCacheSize.Desc()
	ch <- m.DeviceEvictions.Desc()
	ch <- m.AccessUpdates.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *PhotoCacheMetrics) Collect(ch chan<- prometheus.Metric) {
	m.CacheHits.Collect(ch)
	ch <- m.CacheMisses
	ch <- m.ProxyFallbacks
	ch <- m.DurableLookups
	m.LookupDuration.Collect(ch)
	ch <- m.DeviceCacheSize
	ch <- m.DeviceEvictions
	ch <- m.AccessUpdates
}
