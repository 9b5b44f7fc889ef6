package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tailscale.com/tsnet"

	"github.com/claude/romkiosk/internal/config"
	"github.com/claude/romkiosk/internal/exercise"
	"github.com/claude/romkiosk/internal/fps"
	"github.com/claude/romkiosk/internal/kiosk"
	"github.com/claude/romkiosk/internal/metrics"
	"github.com/claude/romkiosk/internal/overlay"
	"github.com/claude/romkiosk/internal/persist"
	"github.com/claude/romkiosk/internal/remote"
	"github.com/claude/romkiosk/internal/server"
	"github.com/claude/romkiosk/internal/session"
	"github.com/claude/romkiosk/internal/storage"
	"github.com/claude/romkiosk/internal/tracking"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log, logFile, err := cfg.Logging.NewLogger(os.Stdout)
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer logFile.Close()
	log.Info("romkiosk starting", "version", Version)

	// Connect database and run migrations
	ctx := context.Background()
	dbOpts := storage.Options{Driver: cfg.Database.Driver, Path: cfg.Database.Path}
	if cfg.Database.Driver == config.DriverPostgres {
		dbOpts.DSN = cfg.Database.DSN()
	}
	db, err := storage.Open(ctx, dbOpts)
	if err != nil {
		log.Error("failed to open database", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(log); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied", "driver", db.Driver())

	if *migrateOnly {
		log.Info("migrate-only: exiting")
		return
	}

	catalog, err := exercise.LoadCatalog(cfg.Exercises.Path)
	if err != nil {
		log.Error("failed to load exercises", "path", cfg.Exercises.Path, "error", err)
		os.Exit(1)
	}
	log.Info("exercises loaded", "count", len(catalog.Collection()))

	m := metrics.New()

	// Results go to the local database unless a central server is set.
	var persister session.Persister = storage.LocalPersister{DB: db}
	if cfg.Persistence.URL != "" {
		persister = persist.NewClient(cfg.Persistence.URL, cfg.Persistence.APIKey)
		log.Info("results sent to remote server", "url", cfg.Persistence.URL)
	}
	store := session.NewStore(catalog, session.Options{
		Persister: metrics.CountingPersister{Next: persister, Metrics: m},
	}, log)

	renderer, err := overlay.New(overlay.Options{
		Width:   cfg.Tracking.CanvasWidth,
		Height:  cfg.Tracking.CanvasHeight,
		DevMode: cfg.Tracking.DevMode,
	})
	if err != nil {
		log.Error("failed to create overlay renderer", "error", err)
		os.Exit(1)
	}

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	deps := kiosk.Deps{
		Store:    store,
		Monitor:  fps.New(cfg.Tracking.LowFPSThreshold, cfg.Tracking.LowFPSTimeout),
		Renderer: renderer,
		Metrics:  m,
		Catalog:  catalog,
	}
	if err := selectSource(runCtx, cfg.Tracking, &deps, log); err != nil {
		log.Error("failed to start landmark source", "error", err)
		os.Exit(1)
	}
	if cfg.Tracking.RecordFile != "" {
		f, err := openRecordFile(cfg.Tracking.RecordFile)
		if err != nil {
			log.Error("failed to open record file", "error", err)
			os.Exit(1)
		}
		defer f.Close()
		deps.Recorder = tracking.NewRecorder(f)
	}

	k, err := kiosk.New(deps, kiosk.Options{
		VisibilityThreshold: cfg.Tracking.VisibilityThreshold,
		Keys:                remote.DefaultKeyMap,
		Debounce:            cfg.Remote.Debounce,
		ReleaseDelay:        cfg.Remote.ReleaseDelay,
		NavWindow:           session.DefaultNavWindow,
		WatchCatalog:        cfg.Exercises.Watch,
	}, log)
	if err != nil {
		log.Error("failed to create kiosk", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := k.Run(runCtx); err != nil {
			log.Error("tracking stopped", "error", err)
		}
	}()

	// Create server
	srv := server.New(server.Options{
		DB:        db,
		Kiosk:     k,
		Metrics:   m,
		APIKey:    cfg.Auth.APIKey,
		FrameRate: cfg.Tracking.MaxFrameRate,
	}, log)
	if cfg.Server.WebDir != "" {
		srv.SetFrontend(os.DirFS(cfg.Server.WebDir))
	}

	// Start server on tsnet or plain HTTP.
	var listener net.Listener
	var tsServer *tsnet.Server

	if cfg.Tailscale.Enabled {
		tsServer = &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
	}

	httpSrv := &http.Server{Handler: srv}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	stopRun()
	if err := k.Stop(); err != nil {
		log.Warn("stopping tracking", "error", err)
	}
	log.Info("server stopped")
}

// selectSource picks where landmarks come from: a recorded replay, a
// detector subprocess fed by the camera, or browser clients pushing them.
func selectSource(ctx context.Context, cfg config.TrackingConfig, deps *kiosk.Deps, log *slog.Logger) error {
	switch {
	case cfg.ReplayFile != "":
		replay, err := tracking.OpenReplay(cfg.ReplayFile, cfg.ReplayLoop, cfg.CanvasWidth, cfg.CanvasHeight)
		if err != nil {
			return err
		}
		deps.Device, deps.Detector = replay, replay
		log.Info("replaying landmarks", "file", cfg.ReplayFile, "frames", replay.Len())
	case cfg.DetectorCommand != "":
		detector, err := tracking.StartProcessDetector(ctx, tracking.ProcessConfig{
			Command: cfg.DetectorCommand,
			Args:    cfg.DetectorArgs,
		}, log)
		if err != nil {
			return err
		}
		camera, err := tracking.OpenCamera(tracking.CameraConfig{
			Input:     cfg.CameraInput,
			Format:    cfg.CameraFormat,
			Width:     cfg.CanvasWidth,
			Height:    cfg.CanvasHeight,
			FrameRate: cfg.CameraFPS,
		}, log)
		if err != nil {
			detector.Close()
			return err
		}
		deps.Device, deps.Detector = camera, detector
	default:
		push := tracking.NewPush()
		deps.Device, deps.Detector, deps.Push = push, push, push
		log.Info("waiting for landmarks from kiosk clients")
	}
	return nil
}

func openRecordFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.Create(path)
}
