package store

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryUsageStore implements UsageLogStore using an in-memory slice.
// This is useful for testing but not recommended for production.
type MemoryUsageStore struct {
	mu     sync.Mutex
	rows   []*UsageEntry
	nextID int64

	// failOn, when set, can veto individual writes.
	failOn func(entry *UsageEntry) error
}

// NewMemoryUsageStore creates a new in-memory usage log store.
func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{nextID: 1}
}

// SetInsertHook installs a function consulted before every write; a non-nil
// return fails that write. Pass nil to remove it.
func (s *MemoryUsageStore) SetInsertHook(fn func(entry *UsageEntry) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn = fn
}

// InsertIfAbsent inserts the entry unless (tenant, cookie name) is already logged.
func (s *MemoryUsageStore) InsertIfAbsent(_ context.Context, entry *UsageEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.rows {
		if row.TenantID == entry.TenantID && row.CookieName == entry.CookieName {
			return false, nil
		}
	}
	if err := s.insertLocked(entry); err != nil {
		return false, err
	}
	return true, nil
}

// Insert appends the entry unconditionally.
func (s *MemoryUsageStore) Insert(_ context.Context, entry *UsageEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(entry)
}

func (s *MemoryUsageStore) insertLocked(entry *UsageEntry) error {
	if s.failOn != nil {
		if err := s.failOn(entry); err != nil {
			return err
		}
	}
	row := *entry
	row.ID = s.nextID
	s.nextID++
	s.rows = append(s.rows, &row)
	return nil
}

// Report groups rows for cookieName and counts distinct tenants.
func (s *MemoryUsageStore) Report(_ context.Context, cookieName string) ([]*ReportRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report *ReportRow
	tenants := make(map[int64]struct{})
	for _, row := range s.rows {
		if row.CookieName != cookieName {
			continue
		}
		if report == nil {
			report = &ReportRow{CookieName: cookieName}
		}
		tenants[row.TenantID] = struct{}{}
		if row.CookieValue > report.CookieValue {
			report.CookieValue = row.CookieValue
		}
		if row.Timestamp.After(report.Timestamp) {
			report.Timestamp = row.Timestamp
		}
	}
	if report == nil {
		return nil, nil
	}
	report.TenantCount = int64(len(tenants))
	return []*ReportRow{report}, nil
}

// Rows returns a copy of every stored row in insertion order.
func (s *MemoryUsageStore) Rows() []*UsageEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*UsageEntry, len(s.rows))
	for i, row := range s.rows {
		cp := *row
		out[i] = &cp
	}
	return out
}

// Purge removes all rows.
func (s *MemoryUsageStore) Purge(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = nil
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryUsageStore) Close() error {
	return nil
}

// MemoryBuffer implements PendingBuffer using a mutex-guarded slice.
type MemoryBuffer struct {
	mu        sync.Mutex
	entries   []*UsageEntry
	expiresAt time.Time
	gen       int64
	now       func() time.Time
}

// NewMemoryBuffer creates a new in-memory pending buffer.
func NewMemoryBuffer() *MemoryBuffer {
	return &MemoryBuffer{now: time.Now}
}

// Append adds an entry. The first entry of an empty buffer starts the TTL.
func (b *MemoryBuffer) Append(_ context.Context, entry *UsageEntry, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.expireLocked()
	if len(b.entries) == 0 {
		b.gen++
		b.expiresAt = b.now().Add(ttl)
	}
	cp := *entry
	b.entries = append(b.entries, &cp)
	return nil
}

// Snapshot returns a copy of the buffered entries and their generation.
func (b *MemoryBuffer) Snapshot(_ context.Context) ([]*UsageEntry, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.expireLocked()
	out := make([]*UsageEntry, len(b.entries))
	for i, e := range b.entries {
		cp := *e
		out[i] = &cp
	}
	return out, b.gen, nil
}

// Drain removes the first n entries of generation gen. It is a no-op once the
// buffer has expired and restarted.
func (b *MemoryBuffer) Drain(_ context.Context, gen int64, n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.expireLocked()
	if gen != b.gen || n <= 0 {
		return nil
	}
	if n >= len(b.entries) {
		b.entries = nil
		return nil
	}
	b.entries = append([]*UsageEntry(nil), b.entries[n:]...)
	return nil
}

// Len returns the number of live buffered entries.
func (b *MemoryBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked()
	return len(b.entries)
}

// Close is a no-op for the memory buffer.
func (b *MemoryBuffer) Close() error {
	return nil
}

func (b *MemoryBuffer) expireLocked() {
	if len(b.entries) > 0 && !b.now().Before(b.expiresAt) {
		b.entries = nil
	}
}

type geoEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryGeoCache implements GeoCache on top of an expiring LRU.
// The LRU's own TTL bounds memory; per-entry deadlines enforce the TTL given to Set.
type MemoryGeoCache struct {
	lru *expirable.LRU[string, geoEntry]
	now func() time.Time
}

// NewMemoryGeoCache creates a cache holding at most size entries, none of
// which outlive maxTTL.
func NewMemoryGeoCache(size int, maxTTL time.Duration) *MemoryGeoCache {
	if size <= 0 {
		size = 1024
	}
	return &MemoryGeoCache{
		lru: expirable.NewLRU[string, geoEntry](size, nil, maxTTL),
		now: time.Now,
	}
}

// Get returns the live value for key or ErrCacheMiss.
func (c *MemoryGeoCache) Get(_ context.Context, key string) ([]byte, error) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if !c.now().Before(entry.expiresAt) {
		c.lru.Remove(key)
		return nil, ErrCacheMiss
	}
	return entry.value, nil
}

// Set stores value under key for ttl.
func (c *MemoryGeoCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.lru.Add(key, geoEntry{value: value, expiresAt: c.now().Add(ttl)})
	return nil
}

// Close purges the cache.
func (c *MemoryGeoCache) Close() error {
	c.lru.Purge()
	return nil
}

// MemorySettingsStore implements SettingsStore using an in-memory map.
type MemorySettingsStore struct {
	mu       sync.RWMutex
	settings map[int64]map[string]int64
}

// NewMemorySettingsStore creates a new in-memory settings store.
func NewMemorySettingsStore() *MemorySettingsStore {
	return &MemorySettingsStore{settings: make(map[int64]map[string]int64)}
}

// GetExpirations returns a copy of the tenant's mapping.
func (s *MemorySettingsStore) GetExpirations(_ context.Context, tenantID int64) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int64, len(s.settings[tenantID]))
	for k, v := range s.settings[tenantID] {
		out[k] = v
	}
	return out, nil
}

// SetExpirations replaces the tenant's mapping.
func (s *MemorySettingsStore) SetExpirations(_ context.Context, tenantID int64, expirations map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make(map[string]int64, len(expirations))
	for k, v := range expirations {
		cp[k] = v
	}
	s.settings[tenantID] = cp
	return nil
}

// Close is a no-op for the memory store.
func (s *MemorySettingsStore) Close() error {
	return nil
}
