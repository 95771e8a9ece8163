package main

import (
	"fmt"
	"os"

	"github.com/placewise/photocache/cmd"
	"github.com/placewise/photocache/internal/conf"
	"github.com/placewise/photocache/internal/datastore"
	"github.com/placewise/photocache/internal/logging"
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	store := datastore.New(settings)
	if store == nil {
		fmt.Fprintln(os.Stderr, "no durable store enabled in configuration")
		os.Exit(1)
	}
	if err := store.Open(); err != nil {
		fmt.Fprintf(os.Stderr, "error opening durable store: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error("Failed to close durable store", "error", err)
		}
	}()

	rootCmd := cmd.RootCommand(settings, store)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "command error: %v\n", err)
		os.Exit(1)
	}
}
