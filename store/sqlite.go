package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteTimeLayout sorts lexicographically, so MAX() over it is chronological.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000"

// SQLiteStore implements UsageLogStore and SettingsStore using SQLite.
// It uses the pure Go modernc.org/sqlite driver.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite store.
// The database file is created if it doesn't exist.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite has a single writer; one connection avoids SQLITE_BUSY between pool members.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func createSchema(db *sql.DB) error {
	// dedup_key is only set by the immediate path; NULLs never collide,
	// so batch-flushed rows are appended without a uniqueness check.
	schema := `
	CREATE TABLE IF NOT EXISTS cookie_usage (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id    INTEGER NOT NULL,
		cookie_name  TEXT NOT NULL,
		cookie_value TEXT NOT NULL,
		time_stamp   TEXT NOT NULL,
		dedup_key    TEXT UNIQUE
	);

	CREATE INDEX IF NOT EXISTS idx_cookie_usage_tenant_cookie
		ON cookie_usage (tenant_id, cookie_name);

	CREATE TABLE IF NOT EXISTS tenant_settings (
		tenant_id   INTEGER PRIMARY KEY,
		expirations TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: failed to create schema: %w", err)
	}
	return nil
}

// InsertIfAbsent inserts the entry unless (tenant, cookie name) is already logged.
func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, entry *UsageEntry) (bool, error) {
	query := `
	INSERT INTO cookie_usage (tenant_id, cookie_name, cookie_value, time_stamp, dedup_key)
	SELECT ?, ?, ?, ?, ?
	WHERE NOT EXISTS (
		SELECT 1 FROM cookie_usage WHERE tenant_id = ? AND cookie_name = ?
	)
	ON CONFLICT DO NOTHING
	`

	res, err := s.db.ExecContext(ctx, query,
		entry.TenantID,
		entry.CookieName,
		entry.CookieValue,
		entry.Timestamp.UTC().Format(sqliteTimeLayout),
		entry.DedupKey(),
		entry.TenantID,
		entry.CookieName,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to insert usage entry: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// Insert appends the entry unconditionally.
func (s *SQLiteStore) Insert(ctx context.Context, entry *UsageEntry) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO cookie_usage (tenant_id, cookie_name, cookie_value, time_stamp) VALUES (?, ?, ?, ?)",
		entry.TenantID,
		entry.CookieName,
		entry.CookieValue,
		entry.Timestamp.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert usage entry: %w", err)
	}
	return nil
}

// Report groups rows for cookieName and counts distinct tenants.
func (s *SQLiteStore) Report(ctx context.Context, cookieName string) ([]*ReportRow, error) {
	query := `
	SELECT cookie_name, MAX(cookie_value), COUNT(DISTINCT tenant_id), MAX(time_stamp)
	FROM cookie_usage
	WHERE cookie_name = ?
	GROUP BY cookie_name
	`

	rows, err := s.db.QueryContext(ctx, query, cookieName)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query report: %w", err)
	}
	defer rows.Close()

	var report []*ReportRow
	for rows.Next() {
		var (
			row ReportRow
			ts  string
		)
		if err := rows.Scan(&row.CookieName, &row.CookieValue, &row.TenantCount, &ts); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan report row: %w", err)
		}
		row.Timestamp, err = time.Parse(sqliteTimeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to parse timestamp %q: %w", ts, err)
		}
		report = append(report, &row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating report: %w", err)
	}
	return report, nil
}

// Count returns the number of rows for (tenantID, cookieName).
func (s *SQLiteStore) Count(ctx context.Context, tenantID int64, cookieName string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM cookie_usage WHERE tenant_id = ? AND cookie_name = ?",
		tenantID, cookieName,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to count usage rows: %w", err)
	}
	return count, nil
}

// Purge removes every usage row.
func (s *SQLiteStore) Purge(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cookie_usage"); err != nil {
		return fmt.Errorf("sqlite: failed to purge usage log: %w", err)
	}
	return nil
}

// GetExpirations returns the tenant's role -> seconds mapping.
func (s *SQLiteStore) GetExpirations(ctx context.Context, tenantID int64) (map[string]int64, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT expirations FROM tenant_settings WHERE tenant_id = ?",
		tenantID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]int64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load settings: %w", err)
	}

	expirations := make(map[string]int64)
	if err := json.Unmarshal([]byte(raw), &expirations); err != nil {
		return nil, fmt.Errorf("sqlite: failed to decode settings: %w", err)
	}
	return expirations, nil
}

// SetExpirations replaces the tenant's mapping.
func (s *SQLiteStore) SetExpirations(ctx context.Context, tenantID int64, expirations map[string]int64) error {
	raw, err := json.Marshal(expirations)
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode settings: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO tenant_settings (tenant_id, expirations, updated_at) VALUES (?, ?, ?)",
		tenantID, string(raw), time.Now().UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to save settings: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
