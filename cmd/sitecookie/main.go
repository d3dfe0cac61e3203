// Command sitecookie serves the per-tenant cookie pipeline with admin
// endpoints for settings, reports and manual flushes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aadithya-v/sitecookie"
	"github.com/aadithya-v/sitecookie/internal/config"
	"github.com/aadithya-v/sitecookie/scheduler"
	"github.com/aadithya-v/sitecookie/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)

	mcfg, err := managerConfig(cfg, logger)
	if err != nil {
		return err
	}
	m, err := sitecookie.New(mcfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close manager")
		}
	}()

	tenants, err := cfg.HostTenants()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if mcfg.UsageLogMode == sitecookie.ModeBatch {
		go func() {
			_ = scheduler.Every(ctx, cfg.FlushInterval, "usage-flush", func(ctx context.Context) error {
				_, err := m.FlushBatch(ctx)
				return err
			}, logger)
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(m, tenants, headerIdentity, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("db", cfg.DBDriver).Str("usage_mode", string(mcfg.UsageLogMode)).Msg("sitecookie server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Persist whatever is still buffered before exiting.
	if mcfg.UsageLogMode == sitecookie.ModeBatch {
		_ = scheduler.RunOnce(shutdownCtx, "usage-flush", func(ctx context.Context) error {
			_, err := m.FlushBatch(ctx)
			return err
		}, logger)
	}
	logger.Info().Msg("sitecookie server stopped")
	return nil
}

func newLogger(cfg config.Config) zerolog.Logger {
	setLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// setLogLevel configures the global zerolog level.
// Supported values (case-insensitive): debug, info, warn, error.
func setLogLevel(lvl string) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// managerConfig selects the backends named by the environment.
func managerConfig(cfg config.Config, logger zerolog.Logger) (sitecookie.Config, error) {
	mcfg := sitecookie.DefaultConfig()

	switch sitecookie.UsageLogMode(cfg.UsageMode) {
	case sitecookie.ModeImmediate, sitecookie.ModeBatch:
	default:
		return mcfg, fmt.Errorf("unknown usage mode %q (want %q or %q)", cfg.UsageMode, sitecookie.ModeImmediate, sitecookie.ModeBatch)
	}
	switch sitecookie.GeoCacheKeyMode(cfg.GeoKeyMode) {
	case sitecookie.GeoKeyPerIP, sitecookie.GeoKeyShared:
	default:
		return mcfg, fmt.Errorf("unknown geo key mode %q (want %q or %q)", cfg.GeoKeyMode, sitecookie.GeoKeyPerIP, sitecookie.GeoKeyShared)
	}

	mcfg.Logger = &logger
	mcfg.DefaultExpiration = cfg.DefaultExpiration
	mcfg.UsageLogMode = sitecookie.UsageLogMode(cfg.UsageMode)
	mcfg.GeoCacheTTL = cfg.GeoCacheTTL
	mcfg.GeoCacheKeyMode = sitecookie.GeoCacheKeyMode(cfg.GeoKeyMode)
	mcfg.SkipPrivateIPs = cfg.SkipPrivateIPs
	mcfg.DatabasePath = cfg.DBPath

	switch cfg.DBDriver {
	case "sqlite", "":
		// default store created by sitecookie.New
	case "memory":
		mcfg.UsageStore = store.NewMemoryUsageStore()
	case "mysql":
		s, err := store.NewMySQLFromDSN(cfg.DBDSN)
		if err != nil {
			return mcfg, err
		}
		mcfg.UsageStore = s
	case "postgres":
		s, err := store.NewPostgresFromDSN(cfg.DBDSN)
		if err != nil {
			return mcfg, err
		}
		mcfg.UsageStore = s
	default:
		return mcfg, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}

	if cfg.RedisAddr != "" {
		client, err := store.NewRedisClient(store.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisPrefix,
		})
		if err != nil {
			return mcfg, err
		}
		mcfg.GeoCache = store.NewRedisGeoCache(client, cfg.RedisPrefix)
		mcfg.PendingBuffer = store.NewRedisBuffer(client, cfg.RedisPrefix)
		mcfg.SettingsStore = store.NewRedisSettingsStore(client, cfg.RedisPrefix)
	}

	switch {
	case cfg.GeoAPIKey != "":
		mcfg.GeoProvider = sitecookie.NewIPGeolocationProvider(cfg.GeoEndpoint, cfg.GeoAPIKey, cfg.GeoTimeout)
	case cfg.GeoIPDatabase != "":
		p, err := sitecookie.NewMaxMindProvider(cfg.GeoIPDatabase)
		if err != nil {
			return mcfg, err
		}
		mcfg.GeoProvider = p
	default:
		logger.Warn().Msg("no geolocation provider configured; cookies carry no geo data")
	}

	return mcfg, nil
}
