// Package migrate implements the image migration subcommand.
package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/placewise/photocache/internal/conf"
	"github.com/placewise/photocache/internal/datastore"
	"github.com/placewise/photocache/internal/migration"
)

// Command creates a new command for running the image migration batch job.
func Command(settings *conf.Settings, store datastore.Interface) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate place photo references to durable storage",
		Long:  "Fetch every unmigrated place photo through the proxy, store it durably and rewrite the place reference. Re-running is idempotent.",
		RunE: func(cmd *cobra.Command, args []string) error {
			objects := migration.NewHTTPObjectStore(settings.Storage.UploadURL, settings.Storage.PublicURL)
			service := migration.New(store, objects, migration.Config{
				ProxyEndpoint:   settings.Proxy.Endpoint,
				StoredURLPrefix: settings.Storage.PublicURL,
			})

			session, err := service.Run(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("Migration session %s: %d migrated, %d failed, %d skipped of %d\n",
				session.ID, session.Migrated, session.Failed, session.Skipped, session.Total)
			return nil
		},
	}

	return cmd
}
