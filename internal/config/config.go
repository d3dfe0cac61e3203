// Package config loads the sitecookie service configuration from the
// environment, reading a .env file first when one is present.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/aadithya-v/sitecookie"
)

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed into the config struct
	ErrParsingConfig = errors.New("config: failed to parse environment variables")

	// ErrInvalidTenant is returned for a malformed SITECOOKIE_TENANTS entry
	ErrInvalidTenant = errors.New("config: invalid tenant entry")
)

// Prefix is prepended to every variable name.
const Prefix = "SITECOOKIE_"

// Config is the service configuration.
type Config struct {
	Addr      string `env:"ADDR" envDefault:":8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	// DBDriver is one of sqlite, mysql, postgres or memory.
	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBPath   string `env:"DB_PATH" envDefault:"sitecookie.db"`
	DBDSN    string `env:"DB_DSN"`

	// RedisAddr enables the Redis geo cache, pending buffer and settings store.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"sitecookie:"`

	GeoAPIKey      string        `env:"GEO_API_KEY"`
	GeoEndpoint    string        `env:"GEO_ENDPOINT" envDefault:"https://api.ipgeolocation.io/ipgeo"`
	GeoTimeout     time.Duration `env:"GEO_TIMEOUT" envDefault:"5s"`
	GeoIPDatabase  string        `env:"GEOIP_DATABASE"`
	GeoCacheTTL    time.Duration `env:"GEO_CACHE_TTL" envDefault:"1h"`
	GeoKeyMode     string        `env:"GEO_KEY_MODE" envDefault:"per-ip"`
	SkipPrivateIPs bool          `env:"GEO_SKIP_PRIVATE" envDefault:"true"`

	UsageMode         string        `env:"USAGE_MODE" envDefault:"immediate"`
	FlushInterval     time.Duration `env:"FLUSH_INTERVAL" envDefault:"1h"`
	DefaultExpiration time.Duration `env:"DEFAULT_EXPIRATION" envDefault:"24h"`

	// Tenants lists host=id:name entries, e.g. "acme.example=7:Acme Site".
	Tenants []string `env:"TENANTS" envSeparator:","`
	// FallbackTenant, as id:name, serves hosts not listed in Tenants.
	FallbackTenant string `env:"FALLBACK_TENANT"`
}

// Load reads .env (if present) and parses SITECOOKIE_* variables.
func Load() (Config, error) {
	// Ignore errors - the .env file might not exist and that's ok
	_ = godotenv.Load()

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

// HostTenants builds the tenant resolver from Tenants and FallbackTenant.
func (c Config) HostTenants() (sitecookie.HostTenants, error) {
	resolver := sitecookie.HostTenants{Hosts: make(map[string]sitecookie.Tenant, len(c.Tenants))}

	for _, entry := range c.Tenants {
		host, idName, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || host == "" {
			return sitecookie.HostTenants{}, fmt.Errorf("%w: %q", ErrInvalidTenant, entry)
		}
		t, err := parseTenant(idName)
		if err != nil {
			return sitecookie.HostTenants{}, err
		}
		resolver.Hosts[strings.ToLower(host)] = t
	}

	if c.FallbackTenant != "" {
		t, err := parseTenant(c.FallbackTenant)
		if err != nil {
			return sitecookie.HostTenants{}, err
		}
		resolver.Fallback = t
	}
	return resolver, nil
}

func parseTenant(idName string) (sitecookie.Tenant, error) {
	idStr, name, ok := strings.Cut(idName, ":")
	if !ok || name == "" {
		return sitecookie.Tenant{}, fmt.Errorf("%w: %q", ErrInvalidTenant, idName)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return sitecookie.Tenant{}, fmt.Errorf("%w: %q: bad id", ErrInvalidTenant, idName)
	}
	return sitecookie.Tenant{ID: id, Name: name}, nil
}
