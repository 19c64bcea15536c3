// Package main implements the tzcompare CLI for comparing and converting city clocks.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codeGROOVE-dev/tzcompare/pkg/board"
	"github.com/codeGROOVE-dev/tzcompare/pkg/clocksource"
	"github.com/codeGROOVE-dev/tzcompare/pkg/directory"
	"github.com/codeGROOVE-dev/tzcompare/pkg/geoip"
)

const version = "tzcompare CLI v1.0.0"

// app holds the collaborators shared by every subcommand.
type app struct {
	cfg       *viper.Viper
	logger    *slog.Logger
	out       io.Writer
	gazetteer *directory.Gazetteer
	cache     *directory.Cache
	dir       directory.Source
	clock     clocksource.Source
	board     *board.Board
	geo       *geoip.Client
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{cfg: viper.New(), out: out}

	root := &cobra.Command{
		Use:           "tzcompare",
		Short:         "Compare city clocks and convert times between them",
		Version:       version,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.Bool("verbose", false, "Enable verbose logging")
	pf.Bool("no-color", false, "Disable colored output")
	pf.Bool("json", false, "Print JSON instead of a table")
	pf.String("directory-url", "", "City metadata backend URL (or set TZCOMPARE_DIRECTORY_URL)")
	pf.String("clock-url", "", "Time service URL (or set TZCOMPARE_CLOCK_URL)")
	pf.String("geoip-url", "http://ip-api.com/json/", "IP geolocation service URL")
	pf.String("gazetteer", "", "YAML city list to use instead of the built-in one")
	pf.String("cache-dir", "", "Directory cache location (or set TZCOMPARE_CACHE_DIR)")
	pf.Duration("cache-ttl", 24*time.Hour, "How long directory records are cached")
	pf.Bool("no-cache", false, "Disable directory caching")
	pf.String("store", "", "Saved selections database (default: user config dir)")

	root.AddCommand(
		newNowCmd(a),
		newConvertCmd(a),
		newSearchCmd(a),
		newLocateCmd(a),
		newSavedCmd(a),
	)
	return root
}

// setup reads configuration and builds the collaborators.
// Precedence: flags, then TZCOMPARE_* environment, then config.yaml.
func (a *app) setup(cmd *cobra.Command) error {
	v := a.cfg
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	v.SetEnvPrefix("TZCOMPARE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if dir, err := os.UserConfigDir(); err == nil {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(dir, "tzcompare"))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("reading config: %w", err)
			}
		}
	}

	level := slog.LevelError
	if v.GetBool("verbose") {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	if v.GetBool("no-color") {
		color.NoColor = true
	}

	if ttl := v.GetDuration("cache-ttl"); ttl <= 0 {
		return fmt.Errorf("--cache-ttl must be positive, got %s", ttl)
	}

	var err error
	if path := v.GetString("gazetteer"); path != "" {
		a.gazetteer, err = directory.LoadGazetteerFile(path)
	} else {
		a.gazetteer, err = directory.DefaultGazetteer()
	}
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	var sources directory.Chain
	if u := v.GetString("directory-url"); u != "" {
		sources = append(sources, directory.NewClient(u, httpClient, a.logger))
	}
	sources = append(sources, a.gazetteer)
	a.dir = sources

	if !v.GetBool("no-cache") {
		a.cache = a.openCache(v.GetString("cache-dir"), v.GetDuration("cache-ttl"))
		a.dir = directory.NewCached(sources, a.cache)
	}

	a.clock = clocksource.NewRemote(v.GetString("clock-url"), a.logger, clocksource.WithHTTPClient(httpClient))
	a.board = board.New(a.dir, a.logger)
	a.geo = geoip.NewClient(v.GetString("geoip-url"), httpClient, a.logger)

	a.logger.Debug("configuration",
		"directory_url", v.GetString("directory-url"),
		"clock_url", v.GetString("clock-url"),
		"gazetteer_cities", a.gazetteer.Len(),
		"cache", a.cache != nil)
	return nil
}

func (a *app) openCache(dir string, ttl time.Duration) *directory.Cache {
	if dir == "" {
		userCacheDir, err := os.UserCacheDir()
		if err != nil {
			a.logger.Debug("could not determine user cache directory", "error", err)
			return directory.NewCache(ttl, nil, a.logger)
		}
		dir = filepath.Join(userCacheDir, "tzcompare")
	}
	c, err := directory.NewDiskCache(dir, ttl, nil, a.logger)
	if err != nil {
		a.logger.Warn("cache initialization failed", "error", err, "cache_dir", dir)
		return directory.NewCache(ttl, nil, a.logger)
	}
	return c
}

func (a *app) close() error {
	if a.cache == nil {
		return nil
	}
	return a.cache.Close()
}
