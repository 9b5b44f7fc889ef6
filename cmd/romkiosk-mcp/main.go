package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/claude/romkiosk/internal/config"
	"github.com/claude/romkiosk/internal/exercise"
	"github.com/claude/romkiosk/internal/mcp"
	"github.com/claude/romkiosk/internal/storage"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "", "romkiosk server URL; tools call its REST API")
	configPath := flag.String("config", "", "path to config file; tools read the configured database")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("romkiosk-mcp", Version)
		return
	}

	// stdout carries the MCP protocol, so logs go to stderr.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if (*serverURL == "") == (*configPath == "") {
		fmt.Fprintf(os.Stderr, "Usage: romkiosk-mcp -server <URL> | -config <config.yaml>\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	var (
		ds        mcp.DataSource
		exercises mcp.ExerciseSource
	)
	if *serverURL != "" {
		client := mcp.NewHTTPClient(*serverURL)
		ds, exercises = client, client
		log.Info("using remote server", "url", *serverURL)
	} else {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		opts := storage.Options{Driver: cfg.Database.Driver, Path: cfg.Database.Path}
		if cfg.Database.Driver == config.DriverPostgres {
			opts.DSN = cfg.Database.DSN()
		}
		db, err := storage.Open(context.Background(), opts)
		if err != nil {
			log.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		ds = db

		if catalog, err := exercise.LoadCatalog(cfg.Exercises.Path); err != nil {
			log.Warn("exercise catalog unavailable", "path", cfg.Exercises.Path, "error", err)
		} else {
			exercises = mcp.CatalogSource{Catalog: catalog}
		}
	}

	s := mcp.New(ds, exercises, Version, log)
	if err := server.ServeStdio(s); err != nil {
		log.Error("mcp server stopped", "error", err)
		os.Exit(1)
	}
}
