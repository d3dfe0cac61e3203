package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aadithya-v/sitecookie"
	"github.com/aadithya-v/sitecookie/internal/config"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "sitecookie.db", cfg.DBPath)
	assert.Equal(t, "immediate", cfg.UsageMode)
	assert.Equal(t, "per-ip", cfg.GeoKeyMode)
	assert.Equal(t, time.Hour, cfg.FlushInterval)
	assert.Equal(t, 24*time.Hour, cfg.DefaultExpiration)
	assert.Equal(t, 5*time.Second, cfg.GeoTimeout)
}

func TestLoad_Success(t *testing.T) {
	t.Setenv("SITECOOKIE_ADDR", ":9090")
	t.Setenv("SITECOOKIE_DB_DRIVER", "postgres")
	t.Setenv("SITECOOKIE_USAGE_MODE", "batch")
	t.Setenv("SITECOOKIE_FLUSH_INTERVAL", "15m")
	t.Setenv("SITECOOKIE_TENANTS", "acme.example=7:Acme Site,blog.example=8:Blog")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "batch", cfg.UsageMode)
	assert.Equal(t, 15*time.Minute, cfg.FlushInterval)
	assert.Equal(t, []string{"acme.example=7:Acme Site", "blog.example=8:Blog"}, cfg.Tenants)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("SITECOOKIE_FLUSH_INTERVAL", "hourly")

	_, err := config.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrParsingConfig))
}

func TestHostTenants(t *testing.T) {
	cfg := config.Config{
		Tenants:        []string{"Acme.Example=7:Acme Site", " blog.example=8:Blog"},
		FallbackTenant: "1:Main",
	}

	resolver, err := cfg.HostTenants()
	require.NoError(t, err)

	assert.Equal(t, sitecookie.Tenant{ID: 7, Name: "Acme Site"}, resolver.Hosts["acme.example"])
	assert.Equal(t, sitecookie.Tenant{ID: 8, Name: "Blog"}, resolver.Hosts["blog.example"])
	assert.Equal(t, sitecookie.Tenant{ID: 1, Name: "Main"}, resolver.Fallback)
}

func TestHostTenants_Invalid(t *testing.T) {
	for _, entry := range []string{"acme.example", "=7:Acme", "acme.example=x:Acme", "acme.example=0:Acme", "acme.example=7:"} {
		cfg := config.Config{Tenants: []string{entry}}
		_, err := cfg.HostTenants()
		assert.ErrorIs(t, err, config.ErrInvalidTenant, entry)
	}
}
