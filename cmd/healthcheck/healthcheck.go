// Package healthcheck implements the image health check subcommand.
package healthcheck

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/placewise/photocache/internal/conf"
	"github.com/placewise/photocache/internal/datastore"
	"github.com/placewise/photocache/internal/imagehealth"
)

// Command creates a new command for running the image health check batch job.
func Command(settings *conf.Settings, store datastore.Interface) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe place photo URLs for liveness",
		Long:  "Probe every place photo URL, classify failures and flag broken photos for remediation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			service := imagehealth.New(store, imagehealth.Config{})

			session, err := service.Run(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("Health session %s: %d healthy, %d broken of %d\n",
				session.ID, session.Healthy, session.Broken, session.Total)

			stats, err := service.Stats()
			if err != nil {
				return err
			}
			for kind, count := range stats.ErrorBreakdown {
				fmt.Printf("  %s: %d\n", kind, count)
			}
			return nil
		},
	}

	return cmd
}
