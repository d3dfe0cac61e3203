package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// MySQLStore implements UsageLogStore using MySQL.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQL creates a new MySQL usage log store on an open handle.
// The handle must have been opened with parseTime=true.
func NewMySQL(db *sql.DB) (*MySQLStore, error) {
	if err := createMySQLSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &MySQLStore{db: db}, nil
}

// NewMySQLFromDSN creates a new MySQL usage log store from a DSN.
// The DSN format is: user:password@tcp(host:port)/database[?params].
// parseTime is always enabled; other parameters are kept.
func NewMySQLFromDSN(dsn string) (*MySQLStore, error) {
	dsn, err := withParseTime(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: failed to connect: %w", err)
	}

	return NewMySQL(db)
}

// withParseTime returns dsn with parseTime=true set.
func withParseTime(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql: invalid DSN: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func createMySQLSchema(db *sql.DB) error {
	// MySQL UNIQUE indexes admit any number of NULLs, which is what lets
	// batch-flushed rows bypass the dedup key.
	schema := `
	CREATE TABLE IF NOT EXISTS cookie_usage (
		id           BIGINT NOT NULL AUTO_INCREMENT,
		tenant_id    BIGINT NOT NULL,
		cookie_name  VARCHAR(255) NOT NULL,
		cookie_value TEXT NOT NULL,
		time_stamp   DATETIME(6) NOT NULL,
		dedup_key    VARCHAR(300) NULL DEFAULT NULL,

		PRIMARY KEY (id),
		UNIQUE KEY uq_cookie_usage_dedup (dedup_key),
		INDEX idx_cookie_usage_tenant_cookie (tenant_id, cookie_name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("mysql: failed to create schema: %w", err)
	}
	return nil
}

// InsertIfAbsent inserts the entry unless (tenant, cookie name) is already logged.
func (s *MySQLStore) InsertIfAbsent(ctx context.Context, entry *UsageEntry) (bool, error) {
	query := `
	INSERT IGNORE INTO cookie_usage (tenant_id, cookie_name, cookie_value, time_stamp, dedup_key)
	SELECT ?, ?, ?, ?, ? FROM DUAL
	WHERE NOT EXISTS (
		SELECT 1 FROM cookie_usage WHERE tenant_id = ? AND cookie_name = ?
	)
	`

	res, err := s.db.ExecContext(ctx, query,
		entry.TenantID,
		entry.CookieName,
		entry.CookieValue,
		entry.Timestamp.UTC(),
		entry.DedupKey(),
		entry.TenantID,
		entry.CookieName,
	)
	if err != nil {
		return false, fmt.Errorf("mysql: failed to insert usage entry: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mysql: failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// Insert appends the entry unconditionally.
func (s *MySQLStore) Insert(ctx context.Context, entry *UsageEntry) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO cookie_usage (tenant_id, cookie_name, cookie_value, time_stamp) VALUES (?, ?, ?, ?)",
		entry.TenantID,
		entry.CookieName,
		entry.CookieValue,
		entry.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("mysql: failed to insert usage entry: %w", err)
	}
	return nil
}

// Report groups rows for cookieName and counts distinct tenants.
func (s *MySQLStore) Report(ctx context.Context, cookieName string) ([]*ReportRow, error) {
	query := `
	SELECT cookie_name, MAX(cookie_value), COUNT(DISTINCT tenant_id), MAX(time_stamp)
	FROM cookie_usage
	WHERE cookie_name = ?
	GROUP BY cookie_name
	`

	rows, err := s.db.QueryContext(ctx, query, cookieName)
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to query report: %w", err)
	}
	defer rows.Close()

	var report []*ReportRow
	for rows.Next() {
		var row ReportRow
		if err := rows.Scan(&row.CookieName, &row.CookieValue, &row.TenantCount, &row.Timestamp); err != nil {
			return nil, fmt.Errorf("mysql: failed to scan report row: %w", err)
		}
		report = append(report, &row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mysql: error iterating report: %w", err)
	}
	return report, nil
}

// Purge removes every usage row.
func (s *MySQLStore) Purge(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cookie_usage"); err != nil {
		return fmt.Errorf("mysql: failed to purge usage log: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
