package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jonesrussell/shortsync/internal/app"
)

const flushCacheTimeout = 30 * time.Second

// configPath returns the config file path from the environment.
func configPath() string {
	if path := os.Getenv("SHORTSYNC_CONFIG"); path != "" {
		return path
	}
	return "config.yml"
}

// runService builds the app in the given mode and blocks until shutdown.
func runService(mode string) {
	ctx := context.Background()

	application, err := app.New(ctx, app.Options{
		ConfigPath: configPath(),
		Version:    version,
		Mode:       app.Mode(mode),
	})
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer func() {
		if closeErr := application.Close(); closeErr != nil {
			log.Printf("Cleanup error: %v", closeErr)
		}
	}()

	if runErr := application.Run(ctx); runErr != nil {
		log.Fatalf("Service error: %v", runErr)
	}
}

// runFlushCache clears the published-candidate dedup cache and exits.
func runFlushCache() {
	ctx, cancel := context.WithTimeout(context.Background(), flushCacheTimeout)
	defer cancel()

	application, err := app.New(ctx, app.Options{
		ConfigPath: configPath(),
		Version:    version,
		Mode:       app.ModeAPI,
	})
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer func() {
		if closeErr := application.Close(); closeErr != nil {
			log.Printf("Cleanup error: %v", closeErr)
		}
	}()

	if flushErr := application.FlushCache(ctx); flushErr != nil {
		log.Fatalf("Failed to flush cache: %v", flushErr)
	}
	log.Println("Published-candidate cache flushed")
}
