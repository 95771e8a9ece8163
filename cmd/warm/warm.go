// Package warm implements the cache warm-up subcommand.
package warm

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/placewise/photocache/internal/conf"
	"github.com/placewise/photocache/internal/datastore"
	"github.com/placewise/photocache/internal/observability/metrics"
	"github.com/placewise/photocache/internal/photocache"
)

// Command creates a new command that precaches photo URLs for every place
// with a photo, warming the device cache and the durable record store.
func Command(settings *conf.Settings, store datastore.Interface) *cobra.Command {
	var qualities []string

	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Precache photo URLs for every place",
		Long:  "Resolve every place photo through the full cache stack so later lookups are served from the device cache.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWarm(settings, store, qualities)
		},
	}

	cmd.Flags().StringSliceVar(&qualities, "quality", []string{"high", "medium"},
		"Quality levels to precache (high, medium, low)")

	return cmd
}

func runWarm(settings *conf.Settings, store datastore.Interface, qualities []string) error {
	levels := make([]conf.QualityLevel, 0, len(qualities))
	for _, q := range qualities {
		switch level := conf.QualityLevel(strings.ToLower(q)); level {
		case conf.QualityHigh, conf.QualityMedium, conf.QualityLow:
			levels = append(levels, level)
		default:
			return fmt.Errorf("unknown quality level %q", q)
		}
	}

	registry := prometheus.NewRegistry()
	m, err := metrics.NewPhotoCacheMetrics(registry)
	if err != nil {
		return err
	}

	device, err := photocache.NewDeviceCache(photocache.DeviceCacheConfig{
		Path: settings.DeviceCache.Path,
	})
	if err != nil {
		return err
	}
	defer func() { _ = device.Close() }()

	service := photocache.New(store, device, settings.Proxy.Endpoint, m)
	defer service.Close()

	places, err := store.GetPlacesWithPhotos()
	if err != nil {
		return err
	}

	for i := range places {
		service.PrecachePlacePhotos(places[i].ID, []string{places[i].PhotoRef}, levels)
	}

	stats := service.Stats()
	fmt.Printf("Warmed %d places: %d device cache entries, %d durable records\n",
		len(places), stats.Device.Size, stats.Durable.Total)
	return nil
}
