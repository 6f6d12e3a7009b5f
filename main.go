// Package main is the entry point for the shortsync service.
package main

import (
	"log"
	"os"
)

var (
	// version can be set at build time via -ldflags
	version = "dev"
)

func main() {
	command := "both"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "both", "all":
		runService("both")
	case "scheduler":
		runService("scheduler")
	case "api":
		runService("api")
	case "flush-cache":
		runFlushCache()
	case "version":
		log.Printf("shortsync version %s\n", version)
		os.Exit(0)
	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)
	default:
		log.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	log.Println("shortsync - Short-video repost scheduler")
	log.Println()
	log.Println("Usage:")
	log.Println("  shortsync [command]")
	log.Println()
	log.Println("Commands:")
	log.Println("  both         Start the scheduler worker and HTTP API (default)")
	log.Println("  scheduler    Start the background scheduler worker only")
	log.Println("  api          Start the reporting/control HTTP API only")
	log.Println("  flush-cache  Clear the published-candidate dedup cache")
	log.Println("  version      Print version information")
	log.Println("  help         Show this help message")
	log.Println()
	log.Println("Examples:")
	log.Println("  shortsync                        # Start worker and API (default)")
	log.Println("  shortsync scheduler              # Worker only")
	log.Println("  shortsync api                    # API only on port 8075")
	log.Println("  SHORTSYNC_CONFIG=prod.yml shortsync")
	log.Println()
	log.Println("Environment Variables:")
	log.Println("  General:")
	log.Println("    SHORTSYNC_CONFIG             - Config file path (default: config.yml)")
	log.Println("    SHORTSYNC_PORT               - HTTP port (default: 8075)")
	log.Println("    APP_DEBUG                    - Debug logging: true|false")
	log.Println()
	log.Println("  Database:")
	log.Println("    POSTGRES_SHORTSYNC_HOST      - PostgreSQL host (default: localhost)")
	log.Println("    POSTGRES_SHORTSYNC_PORT      - PostgreSQL port (default: 5432)")
	log.Println("    POSTGRES_SHORTSYNC_USER      - PostgreSQL user (default: postgres)")
	log.Println("    POSTGRES_SHORTSYNC_PASSWORD  - PostgreSQL password")
	log.Println("    POSTGRES_SHORTSYNC_DB        - PostgreSQL database (default: shortsync)")
	log.Println()
	log.Println("  Cache:")
	log.Println("    REDIS_ADDR                   - Redis address (default: localhost:6379)")
	log.Println("    REDIS_PASSWORD               - Redis password (optional)")
	log.Println()
	log.Println("  Collaborators:")
	log.Println("    INGEST_URL                   - Ingestion sidecar URL (default: http://localhost:8091)")
	log.Println("    UPLOADER_URL                 - Upload sidecar URL (default: http://localhost:8092)")
	log.Println()
	log.Println("  Quota:")
	log.Println("    QUOTA_DAILY_BUDGET           - Daily API budget in units (default: 10000)")
}
