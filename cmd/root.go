package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/placewise/photocache/cmd/cleanup"
	"github.com/placewise/photocache/cmd/healthcheck"
	"github.com/placewise/photocache/cmd/migrate"
	"github.com/placewise/photocache/cmd/warm"
	"github.com/placewise/photocache/internal/conf"
	"github.com/placewise/photocache/internal/datastore"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, store datastore.Interface) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "photocache",
		Short: "Photo cache maintenance CLI",
	}

	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		migrate.Command(settings, store),
		healthcheck.Command(settings, store),
		cleanup.Command(settings, store),
		warm.Command(settings, store),
	}

	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags configures the global flags for the root command.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVar(&settings.Debug, "debug", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Proxy.Endpoint, "proxy", viper.GetString("proxy.endpoint"), "Base URL of the photo proxy endpoint")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		cobra.CheckErr(err)
	}
}
