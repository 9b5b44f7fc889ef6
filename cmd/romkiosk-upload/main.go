package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/claude/romkiosk/internal/persist"
	"github.com/claude/romkiosk/internal/storage"
	"github.com/claude/romkiosk/internal/upload"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "", "central romkiosk server URL (e.g. https://romkiosk-central.tail1234.ts.net)")
	dbPath := flag.String("db", "", "path to the kiosk's SQLite results database")
	apiKey := flag.String("api-key", os.Getenv("ROMKIOSK_AUTH_API_KEY"), "API key of the central server")
	name := flag.String("name", "", "source name recorded in the state database (defaults to the hostname)")
	dryRun := flag.Bool("dry-run", false, "list results that would be uploaded without sending them")
	batchSize := flag.Int("batch-size", 500, "results read from the local database per query")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("romkiosk-upload", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *dbPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: romkiosk-upload -server <URL> -db <results.db> [-dry-run] [-batch-size N]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *serverURL == "" && !*dryRun {
		fmt.Fprintf(os.Stderr, "Error: -server is required (or use -dry-run)\n")
		os.Exit(1)
	}

	// Strip trailing slash from server URL
	*serverURL = strings.TrimRight(*serverURL, "/")

	if *name == "" {
		host, err := os.Hostname()
		if err != nil {
			log.Error("failed to get hostname; pass -name", "error", err)
			os.Exit(1)
		}
		*name = host
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := os.Stat(*dbPath); err != nil {
		log.Error("results database not found", "path", *dbPath, "error", err)
		os.Exit(1)
	}
	db, err := storage.Open(ctx, storage.Options{Driver: storage.DriverSQLite, Path: *dbPath})
	if err != nil {
		log.Error("failed to open results database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Open state database
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Error("failed to get home directory", "error", err)
		os.Exit(1)
	}
	stateDir := filepath.Join(homeDir, ".romkiosk-upload")

	state, err := upload.OpenStateDB(stateDir)
	if err != nil {
		log.Error("failed to open state database", "error", err)
		os.Exit(1)
	}
	defer state.Close()

	// Create client (nil in dry-run mode)
	var sender upload.Sender
	if !*dryRun {
		sender = persist.NewClient(*serverURL, *apiKey)
	} else {
		log.Info("DRY RUN mode: results are listed but not sent")
	}

	// Run upload
	uploader := upload.New(db, sender, state, *name, *dryRun, *batchSize, log)
	stats, err := uploader.Run(ctx)
	if err != nil {
		log.Error("upload failed", "error", err)
		printStats(stats)
		os.Exit(1)
	}

	printStats(stats)
	log.Info("upload complete", "source", *name)
}

func printStats(stats *upload.Stats) {
	fmt.Println()
	fmt.Println("=== Upload Summary ===")
	fmt.Printf("  Results total:    %d\n", stats.ResultsTotal)
	fmt.Printf("  Results uploaded: %d\n", stats.ResultsUploaded)
	fmt.Printf("  Results skipped:  %d (already uploaded)\n", stats.ResultsSkipped)
	fmt.Printf("  Results errored:  %d\n", stats.ResultsErrored)
	fmt.Println()
}
