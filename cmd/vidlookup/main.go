// Package main wires together the VID lookup service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/oemtools/vid-lookup/internal/api"
	"github.com/oemtools/vid-lookup/internal/browser"
	"github.com/oemtools/vid-lookup/internal/cache"
	"github.com/oemtools/vid-lookup/internal/catalog"
	"github.com/oemtools/vid-lookup/internal/clock/system"
	"github.com/oemtools/vid-lookup/internal/config"
	"github.com/oemtools/vid-lookup/internal/logging"
	"github.com/oemtools/vid-lookup/internal/lookup"
	"github.com/oemtools/vid-lookup/internal/metrics"
	pubsubnotify "github.com/oemtools/vid-lookup/internal/notify/pubsub"
	"github.com/oemtools/vid-lookup/internal/resolver"
	gcssnapshot "github.com/oemtools/vid-lookup/internal/snapshot/gcs"
	localsnapshot "github.com/oemtools/vid-lookup/internal/snapshot/local"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	clock := system.New()

	store, err := cache.New(ctx, cache.Config{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.Table,
		MaxConns: cfg.DB.MaxConns,
	}, clock, logger.Named("cache"))
	if err != nil {
		logger.Fatal("cache init failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal("schema bootstrap failed", zap.Error(err))
	}

	manager := browser.NewManager(browser.Config{
		Headless:  cfg.Browser.Headless,
		NoSandbox: cfg.Browser.NoSandbox,
		UserAgent: cfg.Browser.UserAgent,
	}, logger.Named("browser"))
	defer manager.Close()

	var probe *resolver.Probe
	if cfg.Probe.Enabled {
		probe = resolver.NewProbe(cfg.Browser.UserAgent, cfg.Probe.Timeout())
	}

	var snapshots catalog.SnapshotStore
	if cfg.Snapshot.Enabled {
		switch cfg.Snapshot.Backend {
		case "gcs":
			client, err := gcsclient.NewClient(ctx)
			if err != nil {
				logger.Fatal("gcs client init failed", zap.Error(err))
			}
			defer func() {
				if closeErr := client.Close(); closeErr != nil {
					logger.Warn("gcs client close failed", zap.Error(closeErr))
				}
			}()
			snapshots, err = gcssnapshot.New(client, cfg.Snapshot.GCSBucket)
			if err != nil {
				logger.Fatal("gcs snapshot store init failed", zap.Error(err))
			}
		default:
			snapshots, err = localsnapshot.New(cfg.Snapshot.BaseDir)
			if err != nil {
				logger.Fatal("local snapshot store init failed", zap.Error(err))
			}
		}
	}

	urls := catalog.URLBuilder{
		BaseURL: cfg.Catalog.BaseURL,
		Product: cfg.Catalog.Product,
		Archive: cfg.Catalog.Archive,
	}
	res := resolver.New(urls, manager, probe, snapshots, clock, resolver.Config{
		NavTimeout:     cfg.Browser.NavTimeout(),
		WaitTimeout:    cfg.Browser.WaitTimeout(),
		MaxQPS:         cfg.Browser.MaxQPS,
		UserAgent:      cfg.Browser.UserAgent,
		SnapshotPrefix: cfg.Snapshot.Prefix,
	}, logger.Named("resolver"))

	var publisher catalog.Publisher
	if cfg.Notify.Enabled {
		pub, err := pubsubnotify.New(ctx, cfg.Notify.ProjectID, cfg.Notify.Topic)
		if err != nil {
			logger.Fatal("pubsub publisher init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := pub.Close(); closeErr != nil {
				logger.Warn("pubsub publisher close failed", zap.Error(closeErr))
			}
		}()
		publisher = pub
	}

	coord := lookup.New(store, res, publisher, cfg.Notify.Topic, logger.Named("lookup"))
	apiServer := api.NewServer(coord, clock, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
