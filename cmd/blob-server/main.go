// Package main runs the blob server: the HTTP API over the erasure-coded
// blob store that file and thumbnail blobs are fetched from.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/ZentaChain/zentalk-client/pkg/blob"
	"github.com/ZentaChain/zentalk-client/pkg/blob/api"
	"github.com/ZentaChain/zentalk-client/pkg/config"
	"github.com/ZentaChain/zentalk-client/pkg/logger"
	"github.com/ZentaChain/zentalk-client/pkg/metrics"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("blob-server", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "YAML config file")
	envFile := flagSet.String("env-file", ".env", "dotenv file with ZENTALK_* variables")
	enableCORS := flagSet.Bool("cors", true, "enable CORS headers")
	rateLimit := flagSet.Int("rate-limit", 600, "requests per minute per client, 0 disables")
	maxUploadMB := flagSet.Int("max-upload", 101, "maximum upload size in MB")
	maxAge := flagSet.Duration("max-age", 0, "delete blobs older than this, 0 keeps them forever")
	flags := config.BindFlags(flagSet)

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		return err
	}
	flags.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.NewLogger(cfg.LogLevel)

	store, err := blob.Open(cfg.DataDir, log)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if stats, err := store.Stats(ctx); err == nil {
		log.Info("blob store ready", "path", store.Path(), "blobs", stats.Blobs, "size", humanize.Bytes(uint64(stats.TotalBytes)))
	}

	if *maxAge > 0 {
		go cleanupLoop(ctx, store, *maxAge, log)
	}

	apiConfig := api.DefaultConfig()
	apiConfig.ListenAddr = cfg.ListenAddr
	apiConfig.EnableCORS = *enableCORS
	apiConfig.RateLimit = *rateLimit
	apiConfig.MaxUploadSizeMB = *maxUploadMB

	server := api.NewServer(store, apiConfig, log, metrics.New())
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("blob API: %w", err)
	}

	log.Info("goodbye")
	return nil
}

// cleanupLoop drops expired blobs once per hour until ctx ends
func cleanupLoop(ctx context.Context, store *blob.Store, maxAge time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Cleanup(ctx, maxAge)
			if err != nil {
				log.Warn("blob cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				log.Info("expired blobs removed", "count", n)
			}
		}
	}
}
