package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCacheMiss is returned by GeoCache.Get when no live entry exists for a key.
var ErrCacheMiss = errors.New("store: cache miss")

// UsageEntry is one cookie-usage event for a tenant.
type UsageEntry struct {
	ID          int64     `json:"id,omitempty"`
	TenantID    int64     `json:"tenant_id"`
	CookieName  string    `json:"cookie_name"`
	CookieValue string    `json:"cookie_value"`
	Timestamp   time.Time `json:"time_stamp"`
}

// DedupKey identifies the (tenant, cookie name) pair an immediate-path row claims.
func (e *UsageEntry) DedupKey() string {
	return fmt.Sprintf("%d:%s", e.TenantID, e.CookieName)
}

// ReportRow is one aggregated usage row grouped by cookie name.
type ReportRow struct {
	CookieName  string
	CookieValue string
	TenantCount int64
	Timestamp   time.Time
}

// UsageLogStore is the append-only cookie usage log.
// Implementations must be safe for concurrent use.
type UsageLogStore interface {
	// InsertIfAbsent inserts the entry unless a row for the same
	// (tenant id, cookie name) already exists. It reports whether a row was written.
	// The check and the insert happen atomically.
	InsertIfAbsent(ctx context.Context, entry *UsageEntry) (bool, error)

	// Insert appends the entry without any existence check.
	Insert(ctx context.Context, entry *UsageEntry) error

	// Report groups rows matching cookieName and counts distinct tenants.
	Report(ctx context.Context, cookieName string) ([]*ReportRow, error)

	// Purge removes every usage row.
	Purge(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// PendingBuffer holds usage entries awaiting a batch flush.
// Implementations must tolerate Append running concurrently with Snapshot/Drain.
type PendingBuffer interface {
	// Append adds an entry to the tail. The buffer expires ttl after its first entry.
	Append(ctx context.Context, entry *UsageEntry, ttl time.Duration) error

	// Snapshot returns the buffered entries in insertion order without
	// removing them, along with the buffer generation they belong to. A new
	// generation starts whenever an empty or expired buffer receives an entry.
	Snapshot(ctx context.Context) ([]*UsageEntry, int64, error)

	// Drain removes the first n entries if the buffer is still at generation
	// gen, and does nothing otherwise. Entries appended after the matching
	// Snapshot are kept either way.
	Drain(ctx context.Context, gen int64, n int) error

	// Close releases any resources held by the buffer.
	Close() error
}

// GeoCache stores encoded geolocation records with a per-entry TTL.
type GeoCache interface {
	// Get returns the cached value or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Close releases any resources held by the cache.
	Close() error
}

// SettingsStore is the tenant-scoped cookie expiration settings store.
type SettingsStore interface {
	// GetExpirations returns the role -> seconds mapping for a tenant.
	// A tenant without settings yields an empty map and no error.
	GetExpirations(ctx context.Context, tenantID int64) (map[string]int64, error)

	// SetExpirations replaces the mapping for a tenant.
	SetExpirations(ctx context.Context, tenantID int64, expirations map[string]int64) error

	// Close releases any resources held by the store.
	Close() error
}
