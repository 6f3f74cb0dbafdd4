package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"mc-launcher-engine/internal/analytics"
	"mc-launcher-engine/internal/api"
	"mc-launcher-engine/internal/auth"
	"mc-launcher-engine/internal/config"
	"mc-launcher-engine/internal/filesystem"
	"mc-launcher-engine/internal/integrity"
	"mc-launcher-engine/internal/launcher"
	"mc-launcher-engine/internal/logger"
	"mc-launcher-engine/internal/manifest"
	"mc-launcher-engine/internal/network"
	"mc-launcher-engine/internal/security"
	"mc-launcher-engine/internal/storage"
)

// accountsFileName is the default on-disk AccountStore path (spec.md §6
// "Persistent state": default ./.config.json).
const accountsFileName = "./.config.json"

func main() {
	log, err := logger.New(os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error initializing logger:", err)
		os.Exit(1)
	}

	store, err := storage.NewStorage()
	if err != nil {
		log.Error("error initializing storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	cfg := config.NewConfigManager(store)
	audit := security.NewAuditLogger(log)
	defer audit.Close()

	accounts := auth.NewAccountStore()
	if err := accounts.Load(accountsFileName); err != nil {
		log.Info("no existing account store found, starting empty", "path", accountsFileName)
	}
	defer func() {
		if err := accounts.Save(accountsFileName); err != nil {
			log.Error("failed to persist account store", "error", err)
		}
	}()

	layout := filesystem.NewCacheLayout(cacheDir())
	httpClient := &http.Client{Timeout: 60 * time.Second}
	resolver := manifest.NewManifestResolver(
		layout.VersionsRoot(),
		layout.LibrariesRoot(),
		layout.AssetsRoot(),
		httpClient,
		manifest.DefaultHostProfile(runtime.GOOS, runtime.GOARCH, ""),
	)

	bandwidth := network.NewBandwidthManager()
	bandwidth.SetLimit(cfg.GetBandwidthLimitBps())
	bandwidth.SeedMinecraftDefaults()
	throttledClient := network.NewThrottledClient(httpClient, bandwidth)

	congestion := network.NewCongestionController(1, cfg.GetDownloadParallelism())
	congestion.SeedMinecraftDefaults()

	scanner := security.NewScanner(log)

	deps := launcher.Deps{
		Client:     throttledClient,
		Bandwidth:  bandwidth,
		Congestion: congestion,
		Allocator:  filesystem.NewAllocator(),
		Verifier:   integrity.NewFileVerifier(),
		Stats:      analytics.NewStatsManager(store, func() (string, error) { return layout.Root, nil }),
		Scanner:    scanner,
		Settings: launcher.DownloadSettings{
			ChunkSize:       cfg.GetDownloadChunkSize(),
			Parallelism:     cfg.GetDownloadParallelism(),
			PollInterval:    time.Second,
			BandwidthBps:    cfg.GetBandwidthLimitBps(),
			VerifyIntegrity: cfg.GetEnableIntegrityCheck(),
			UserAgent:       "mc-launcher-engine/1.0",
		},
	}

	service := launcher.NewService(log, accounts, resolver, httpClient, cfg.GetOAuthClientID(), deps)

	controlServer := api.NewControlServer(log, service, cfg, audit)
	controlServer.Start(cfg.GetControlServerPort())

	log.Info("mc-launcher-engine running", "control_port", cfg.GetControlServerPort())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()
	log.Info("shutting down")
}

// cacheDir resolves the launcher's cache root (versions/libraries/assets),
// per spec.md §6's filesystem layout.
func cacheDir() string {
	appData, err := os.UserCacheDir()
	if err != nil {
		appData = "."
	}
	return filepath.Join(appData, "mc-launcher-engine")
}
