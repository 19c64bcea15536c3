// Package main implements the tzcompare JSON API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codeGROOVE-dev/tzcompare/pkg/board"
	"github.com/codeGROOVE-dev/tzcompare/pkg/clocksource"
	"github.com/codeGROOVE-dev/tzcompare/pkg/directory"
	"github.com/codeGROOVE-dev/tzcompare/pkg/geoip"
)

var (
	port         = flag.String("port", "8080", "Port for web server (or set PORT)")
	directoryURL = flag.String("directory-url", "", "City metadata backend URL (or set DIRECTORY_URL)")
	clockURL     = flag.String("clock-url", "", "Time service URL (or set CLOCK_URL)")
	geoipURL     = flag.String("geoip-url", "", "IP geolocation service URL (or set GEOIP_URL)")
	gazetteer    = flag.String("gazetteer", "", "YAML city list to use instead of the built-in one")
	cacheDir     = flag.String("cache-dir", "", "Directory cache location (or set CACHE_DIR)")
	cacheTTL     = flag.Duration("cache-ttl", 24*time.Hour, "How long directory records are cached")
	verbose      = flag.Bool("verbose", false, "Enable verbose logging")
	version      = flag.Bool("version", false, "Show version")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Println("tzcompare Server v1.0.0")
		return
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	envDefault(port, "PORT")
	envDefault(directoryURL, "DIRECTORY_URL")
	envDefault(clockURL, "CLOCK_URL")
	envDefault(geoipURL, "GEOIP_URL")
	envDefault(cacheDir, "CACHE_DIR")

	if err := checkCacheTTL(*cacheTTL); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("Server configuration",
		"port", *port,
		"verbose", *verbose,
		"cache_dir", *cacheDir,
		"cache_ttl", cacheTTL.String(),
		"has_directory_url", *directoryURL != "",
		"has_clock_url", *clockURL != "",
		"has_geoip_url", *geoipURL != "")

	gaz, err := loadGazetteer(*gazetteer)
	if err != nil {
		logger.Error("Failed to load gazetteer", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	var sources directory.Chain
	if *directoryURL != "" {
		sources = append(sources, directory.NewClient(*directoryURL, httpClient, logger))
	}
	sources = append(sources, gaz)

	cache := directory.NewCache(*cacheTTL, nil, logger)
	if *cacheDir != "" {
		if cache, err = directory.NewDiskCache(*cacheDir, *cacheTTL, nil, logger); err != nil {
			logger.Warn("Disk cache unavailable, using memory only", "error", err, "cache_dir", *cacheDir)
			cache = directory.NewCache(*cacheTTL, nil, logger)
		}
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Error("Failed to save directory cache", "error", err)
		}
	}()
	dir := directory.NewCached(sources, cache)

	s := newServer(serverConfig{
		gazetteer: gaz,
		board:     board.New(dir, logger),
		clock:     clocksource.NewRemote(*clockURL, logger, clocksource.WithHTTPClient(httpClient)),
		geo:       geoip.NewClient(*geoipURL, httpClient, logger),
		logger:    logger,
	})

	srv := &http.Server{
		Addr:              ":" + *port,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", *port, "cities", gaz.Len())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", "error", err)
	}
	logger.Info("Server stopped")
}

func envDefault(value *string, key string) {
	if *value == "" {
		*value = os.Getenv(key)
	}
}

func checkCacheTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("-cache-ttl must be positive, got %s", ttl)
	}
	return nil
}

func loadGazetteer(path string) (*directory.Gazetteer, error) {
	if path == "" {
		return directory.DefaultGazetteer()
	}
	return directory.LoadGazetteerFile(path)
}
