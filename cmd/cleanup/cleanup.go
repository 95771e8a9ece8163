// Package cleanup implements the expired record sweep subcommand.
package cleanup

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/placewise/photocache/internal/conf"
	"github.com/placewise/photocache/internal/datastore"
)

// Command creates a new command for sweeping expired cached photo records.
// This is the only deletion path for durable records; the hot path never
// deletes them.
func Command(settings *conf.Settings, store datastore.Interface) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired cached photo records",
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := store.DeleteExpiredCachedPhotos(time.Now())
			if err != nil {
				return err
			}

			stats, err := store.CachedPhotoStats()
			if err != nil {
				return err
			}

			fmt.Printf("Removed %d expired records, %d remain (%d pending expiry)\n",
				removed, stats.Total, stats.Expired)
			return nil
		},
	}

	return cmd
}
