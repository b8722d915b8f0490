package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/pdftoolkit/internal/config"
	"github.com/local/pdftoolkit/internal/engine"
	"github.com/local/pdftoolkit/internal/filetype"
	"github.com/local/pdftoolkit/internal/history"
	"github.com/local/pdftoolkit/internal/imageplace"
	"github.com/local/pdftoolkit/internal/limiter"
	logpkg "github.com/local/pdftoolkit/internal/logger"
	"github.com/local/pdftoolkit/internal/metrics"
	"github.com/local/pdftoolkit/internal/server"
	"github.com/local/pdftoolkit/internal/statuscheck"
	"github.com/local/pdftoolkit/internal/storage"
)

func main() {
	cfg := cfgpkg.Load()

	// Init logging
	if err := logpkg.Init(cfg.Logging, cfg.Axiom); err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
	}
	defer logpkg.Close()

	metrics.Init()
	// pdfcpu would otherwise create a config dir under the user's home.
	api.DisableConfigDir()

	ctx := context.Background()

	// Artifact storage
	var (
		sink        storage.Sink
		storagePing statuscheck.Pinger
		s3dl        storage.Downloader
	)
	switch cfg.Storage.Backend {
	case "s3":
		s3c, err := storage.NewS3Client(ctx, storage.S3Options{
			Bucket:          cfg.Storage.Bucket,
			Prefix:          cfg.Storage.Prefix,
			Region:          cfg.Storage.Region,
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretKey,
			SealPassword:    cfg.Storage.SealPassword,
			URLTTL:          cfg.Storage.URLTTL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init s3 storage")
		}
		sink, storagePing, s3dl = s3c, s3c, s3c
	default:
		local, err := storage.NewLocalSink(cfg.Storage.OutputDir, cfg.Storage.BaseURL, cfg.Storage.SealPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init output dir")
		}
		sink, storagePing = local, local
	}

	// History: redis when configured, memory otherwise
	var (
		hist      history.Store
		redisPing statuscheck.Pinger
	)
	if cfg.Redis.URL != "" {
		rs, err := history.NewRedisStore(cfg.Redis.URL, cfg.Redis.HistoryTTL, cfg.Redis.MaxEntries)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init redis history store")
		}
		hist, redisPing = rs, rs
	} else {
		hist = history.NewMemoryStore(cfg.Redis.MaxEntries)
	}
	defer hist.Close()

	fetchOpts := storage.FetchOptions{
		AllowedHosts: cfg.Limits.FetchAllowedHosts,
		AllowPrivate: cfg.Limits.FetchAllowPrivate,
		MaxBytes:     cfg.Limits.FetchMaxBytes,
		Timeout:      cfg.Limits.FetchTimeout,
	}
	if s3dl != nil {
		// Remote s3:// inputs are limited to the artifact bucket and prefix.
		fetchOpts.S3, fetchOpts.Bucket, fetchOpts.Prefix = s3dl, cfg.Storage.Bucket, cfg.Storage.Prefix
	}

	width, height := imageplace.PageSize(cfg.Engine.PageSize)
	eng := engine.New(engine.Options{PageWidth: width, PageHeight: height})
	inflight := limiter.New(limiter.Options{MaxInflight: cfg.Limits.MaxInflight, MaxBytes: 4 * cfg.Limits.MaxUploadBytes})
	status := statuscheck.New(statuscheck.Options{Redis: redisPing, Storage: storagePing, StorageBackend: sink.Backend()})
	limits := server.Limits{
		MaxUploadBytes: cfg.Limits.MaxUploadBytes,
		MaxMergeFiles:  cfg.Limits.MaxMergeFiles,
		MaxBatchFiles:  cfg.Limits.MaxBatchFiles,
	}
	srv := server.New(server.Dependencies{
		Engine:   eng,
		Sink:     sink,
		History:  hist,
		Limiter:  inflight,
		Fetcher:  storage.NewFetcher(fetchOpts),
		Status:   status,
		Detector: filetype.New(),
		Limits:   limits,
	})

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("storage", sink.Backend()).Str("page_size", cfg.Engine.PageSize).Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	fmt.Println("shutdown complete")
}
