package sitecookie

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aadithya-v/sitecookie/store"
)

// stubProvider returns a fixed result and counts calls.
type stubProvider struct {
	mu    sync.Mutex
	calls []string
	rec   *GeoRecord
	err   error
}

func (p *stubProvider) Lookup(_ context.Context, ip string) (*GeoRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, ip)
	if p.err != nil {
		return nil, p.err
	}
	cp := *p.rec
	cp.IP = ip
	return &cp, nil
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// clockCache is a GeoCache whose expiry follows a settable clock.
type clockCache struct {
	mu      sync.Mutex
	now     time.Time
	entries map[string]clockEntry
}

type clockEntry struct {
	value     []byte
	expiresAt time.Time
}

func newClockCache(now time.Time) *clockCache {
	return &clockCache{now: now, entries: make(map[string]clockEntry)}
}

func (c *clockCache) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *clockCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !c.now.Before(e.expiresAt) {
		return nil, store.ErrCacheMiss
	}
	return e.value, nil
}

func (c *clockCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = clockEntry{value: value, expiresAt: c.now.Add(ttl)}
	return nil
}

func (c *clockCache) Close() error { return nil }

func acmeRecord() *GeoRecord {
	return &GeoRecord{CountryName: "United States", CountryCode: "US", City: "Mountain View"}
}

type testEnv struct {
	m        *Manager
	usage    *store.MemoryUsageStore
	buffer   *store.MemoryBuffer
	settings *store.MemorySettingsStore
	provider *stubProvider
}

func newTestManager(t *testing.T, mode UsageLogMode) *testEnv {
	t.Helper()

	env := &testEnv{
		usage:    store.NewMemoryUsageStore(),
		buffer:   store.NewMemoryBuffer(),
		settings: store.NewMemorySettingsStore(),
		provider: &stubProvider{rec: acmeRecord()},
	}

	m, err := New(Config{
		DefaultExpiration: 24 * time.Hour,
		UsageLogMode:      mode,
		UsageStore:        env.usage,
		SettingsStore:     env.settings,
		PendingBuffer:     env.buffer,
		GeoProvider:       env.provider,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	env.m = m
	return env
}
