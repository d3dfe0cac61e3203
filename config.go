package sitecookie

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aadithya-v/sitecookie/store"
)

// UsageLogMode selects how inbound tenant cookies are logged.
type UsageLogMode string

const (
	// ModeImmediate records each distinct (tenant, cookie) pair on the request path.
	ModeImmediate UsageLogMode = "immediate"

	// ModeBatch appends entries to the pending buffer for a later FlushBatch.
	ModeBatch UsageLogMode = "batch"
)

// GeoCacheKeyMode selects how geolocation lookups are keyed in the cache.
type GeoCacheKeyMode string

const (
	// GeoKeyPerIP caches one record per requesting IP.
	GeoKeyPerIP GeoCacheKeyMode = "per-ip"

	// GeoKeyShared caches a single record for every visitor. All visitors
	// receive the first visitor's location until the entry expires.
	GeoKeyShared GeoCacheKeyMode = "shared"
)

// Config contains configuration options for the Manager.
type Config struct {
	// DefaultExpiration is the base cookie lifetime before role adjustments.
	// Default: 24 hours.
	DefaultExpiration time.Duration

	// UsageLogMode selects immediate or batch logging of inbound cookies.
	// Default: ModeImmediate.
	UsageLogMode UsageLogMode

	// PendingTTL bounds how long buffered entries survive without a flush,
	// counted from the first entry.
	// Default: 1 hour.
	PendingTTL time.Duration

	// GeoCacheTTL is how long a complete geolocation record is cached.
	// Default: 1 hour.
	GeoCacheTTL time.Duration

	// GeoCacheKeyMode selects per-IP or shared cache keys.
	// Default: GeoKeyPerIP.
	GeoCacheKeyMode GeoCacheKeyMode

	// SkipPrivateIPs answers lookups for loopback and private addresses with
	// the negative geo result instead of asking the provider.
	SkipPrivateIPs bool

	// GeoProvider performs geolocation lookups. If nil, cookies carry the
	// negative geo result.
	GeoProvider GeoProvider

	// UsageStore is the usage log backend.
	// Default: SQLite store (creates sitecookie.db in current directory).
	UsageStore store.UsageLogStore

	// SettingsStore holds per-tenant expiration settings.
	// Default: the SQLite store when UsageStore is nil, otherwise in-memory.
	SettingsStore store.SettingsStore

	// PendingBuffer holds entries awaiting FlushBatch.
	// Default: in-memory buffer.
	PendingBuffer store.PendingBuffer

	// GeoCache caches geolocation records.
	// Default: in-memory LRU of GeoCacheSize entries.
	GeoCache store.GeoCache

	// GeoCacheSize bounds the default in-memory geo cache.
	// Default: 4096.
	GeoCacheSize int

	// DatabasePath is the path for the default SQLite database.
	// Only used if UsageStore is nil.
	// Default: "sitecookie.db".
	DatabasePath string

	// Logger receives diagnostics. Default: zerolog.Nop().
	Logger *zerolog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultExpiration: 24 * time.Hour,
		UsageLogMode:      ModeImmediate,
		PendingTTL:        time.Hour,
		GeoCacheTTL:       time.Hour,
		GeoCacheKeyMode:   GeoKeyPerIP,
		GeoCacheSize:      4096,
		DatabasePath:      "sitecookie.db",
	}
}

// applyDefaults fills in default values for zero-value fields.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.DefaultExpiration == 0 {
		c.DefaultExpiration = defaults.DefaultExpiration
	}
	if c.UsageLogMode != ModeBatch {
		c.UsageLogMode = defaults.UsageLogMode
	}
	if c.PendingTTL <= 0 {
		c.PendingTTL = defaults.PendingTTL
	}
	if c.GeoCacheTTL <= 0 {
		c.GeoCacheTTL = defaults.GeoCacheTTL
	}
	if c.GeoCacheKeyMode != GeoKeyShared {
		c.GeoCacheKeyMode = defaults.GeoCacheKeyMode
	}
	if c.GeoCacheSize <= 0 {
		c.GeoCacheSize = defaults.GeoCacheSize
	}
	if c.DatabasePath == "" {
		c.DatabasePath = defaults.DatabasePath
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
}
