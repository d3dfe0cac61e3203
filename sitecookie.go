package sitecookie

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/aadithya-v/sitecookie/store"
)

// Manager is the main SDK interface for per-tenant cookie issuance and usage logging.
type Manager struct {
	config   Config
	usage    store.UsageLogStore
	pending  store.PendingBuffer
	settings store.SettingsStore
	geoCache store.GeoCache
	geo      *Geolocator
	log      zerolog.Logger
	now      func() time.Time
}

// New creates a new Manager with the given configuration.
// If stores are not provided, defaults are used:
// - UsageStore and SettingsStore: SQLite (creates sitecookie.db)
// - PendingBuffer: in-memory
// - GeoCache: in-memory LRU
func New(cfg Config) (*Manager, error) {
	cfg.applyDefaults()

	m := &Manager{
		config: cfg,
		log:    cfg.Logger.With().Str("component", "sitecookie").Logger(),
		now:    time.Now,
	}

	// Initialize usage store (default: SQLite)
	if cfg.UsageStore != nil {
		m.usage = cfg.UsageStore
	} else {
		sqliteStore, err := store.NewSQLite(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("sitecookie: failed to initialize SQLite store: %w", err)
		}
		m.usage = sqliteStore
		if cfg.SettingsStore == nil {
			m.settings = sqliteStore
		}
	}

	if cfg.SettingsStore != nil {
		m.settings = cfg.SettingsStore
	} else if m.settings == nil {
		m.settings = store.NewMemorySettingsStore()
	}

	if cfg.PendingBuffer != nil {
		m.pending = cfg.PendingBuffer
	} else {
		m.pending = store.NewMemoryBuffer()
	}

	if cfg.GeoCache != nil {
		m.geoCache = cfg.GeoCache
	} else {
		m.geoCache = store.NewMemoryGeoCache(cfg.GeoCacheSize, cfg.GeoCacheTTL)
	}

	m.geo = NewGeolocator(cfg.GeoProvider, m.geoCache, cfg.GeoCacheTTL, cfg.GeoCacheKeyMode, m.log)
	m.geo.skipPrivate = cfg.SkipPrivateIPs

	return m, nil
}

// Close releases all resources held by the Manager, including the geo provider
// when it implements io.Closer. A store shared between roles is closed once.
// Should be called when the application shuts down.
func (m *Manager) Close() error {
	var errs []error
	closed := make(map[io.Closer]bool)

	closers := []io.Closer{m.usage, m.settings, m.pending, m.geoCache}
	if c, ok := m.config.GeoProvider.(io.Closer); ok {
		closers = append(closers, c)
	}

	for _, c := range closers {
		if c == nil || closed[c] {
			continue
		}
		closed[c] = true
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("sitecookie: errors during close: %w", errors.Join(errs...))
	}
	return nil
}

// Geolocator returns the cache-backed geolocation lookup used by the Manager.
func (m *Manager) Geolocator() *Geolocator {
	return m.geo
}

// IssueRequest carries the per-request inputs for cookie issuance.
type IssueRequest struct {
	Tenant Tenant
	// Identity is the visitor's login state and roles.
	Identity Identity
	// IP is the visitor's address, used for geolocation.
	IP string
	// ExistingSessionID is the inbound __user_session value, if any.
	ExistingSessionID string
}

// Issue resolves the expiration, looks up geo data and mints the tenant cookie.
// Geo and settings failures degrade the result but never fail issuance.
func (m *Manager) Issue(ctx context.Context, req IssueRequest) (*IssuedCookie, error) {
	expiration := m.ResolveExpiration(ctx, req.Tenant.ID, req.Identity)
	geo := m.geo.Lookup(ctx, req.IP)

	issued, err := Mint(req.Tenant, req.ExistingSessionID, geo, expiration, m.now())
	if err != nil {
		return nil, err
	}

	m.log.Debug().
		Int64("tenant_id", req.Tenant.ID).
		Str("cookie", issued.Name).
		Str("session_id", issued.SessionID).
		Bool("new_session", issued.NewSession).
		Dur("expiration", expiration).
		Msg("issued tenant cookie")

	return issued, nil
}
