package sitecookie

import (
	"context"
	"errors"
	"fmt"

	"github.com/aadithya-v/sitecookie/store"
)

// Report placeholders for values that cannot be read from a logged cookie.
const (
	ReportUnknown     = "Unknown"
	ReportDecodeError = "JSON Decoding Error"
)

// RecordIfNew logs a usage entry unless the (tenant, cookie name) pair is
// already present. It reports whether a row was written. Failures are
// returned to the caller and not retried.
func (m *Manager) RecordIfNew(ctx context.Context, entry store.UsageEntry) (bool, error) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = m.now()
	}

	inserted, err := m.usage.InsertIfAbsent(ctx, &entry)
	if err != nil {
		usageRecords.WithLabelValues("error").Inc()
		return false, fmt.Errorf("sitecookie: failed to record usage: %w", err)
	}

	if inserted {
		usageRecords.WithLabelValues("inserted").Inc()
	} else {
		usageRecords.WithLabelValues("duplicate").Inc()
	}
	return inserted, nil
}

// Enqueue appends an entry to the pending buffer for the next FlushBatch.
func (m *Manager) Enqueue(ctx context.Context, entry store.UsageEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = m.now()
	}
	if err := m.pending.Append(ctx, &entry, m.config.PendingTTL); err != nil {
		return fmt.Errorf("sitecookie: failed to enqueue usage entry: %w", err)
	}
	usageRecords.WithLabelValues("enqueued").Inc()
	return nil
}

// FlushResult summarizes one FlushBatch call.
type FlushResult struct {
	Attempted int
	Inserted  int
	Failed    int
}

// FlushBatch inserts every buffered entry without an existence check. The
// buffer is drained only if all inserts succeed; otherwise it is kept whole and
// ErrFlushIncomplete is returned, so the next flush re-inserts entries that
// already made it. Entries appended while a flush runs are never dropped, even
// when the buffer expires and restarts mid-flush.
// An empty buffer is a no-op.
func (m *Manager) FlushBatch(ctx context.Context) (FlushResult, error) {
	var result FlushResult

	entries, gen, err := m.pending.Snapshot(ctx)
	if err != nil {
		flushRuns.WithLabelValues("error").Inc()
		return result, fmt.Errorf("sitecookie: failed to read pending buffer: %w", err)
	}
	if len(entries) == 0 {
		flushRuns.WithLabelValues("empty").Inc()
		return result, nil
	}

	var errs []error
	for _, entry := range entries {
		result.Attempted++
		if err := m.usage.Insert(ctx, entry); err != nil {
			result.Failed++
			errs = append(errs, err)
			m.log.Error().Err(err).
				Int64("tenant_id", entry.TenantID).
				Str("cookie", entry.CookieName).
				Msg("failed to insert cookie usage log entry")
			continue
		}
		result.Inserted++
	}

	if len(errs) > 0 {
		flushRuns.WithLabelValues("partial").Inc()
		return result, fmt.Errorf("%w: %d of %d inserts failed: %w",
			ErrFlushIncomplete, result.Failed, result.Attempted, errors.Join(errs...))
	}

	if err := m.pending.Drain(ctx, gen, len(entries)); err != nil {
		flushRuns.WithLabelValues("error").Inc()
		return result, fmt.Errorf("sitecookie: failed to drain pending buffer: %w", err)
	}

	flushRuns.WithLabelValues("success").Inc()
	m.log.Info().Int("entries", result.Inserted).Msg("flushed cookie usage log entries")
	return result, nil
}

// UsageReport is one report row with the cookie payload decoded.
type UsageReport struct {
	CookieName  string `json:"cookie_name"`
	Country     string `json:"country"`
	SessionID   string `json:"session_id"`
	TenantCount int64  `json:"tenant_count"`
	Timestamp   string `json:"time_stamp"`
}

// Report aggregates the usage log for cookieName with distinct-tenant counts.
func (m *Manager) Report(ctx context.Context, cookieName string) ([]UsageReport, error) {
	rows, err := m.usage.Report(ctx, cookieName)
	if err != nil {
		return nil, fmt.Errorf("sitecookie: failed to build report: %w", err)
	}

	report := make([]UsageReport, 0, len(rows))
	for _, row := range rows {
		r := UsageReport{
			CookieName:  row.CookieName,
			TenantCount: row.TenantCount,
			Timestamp:   row.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			Country:     ReportDecodeError,
			SessionID:   ReportDecodeError,
		}
		if token, err := ParseSessionToken(row.CookieValue); err == nil {
			r.Country, r.SessionID = ReportUnknown, ReportUnknown
			if token.SessionID != "" {
				r.SessionID = token.SessionID
			}
			if token.GeoData.Record != nil && token.GeoData.Record.CountryName != "" {
				r.Country = token.GeoData.Record.CountryName
			}
		}
		report = append(report, r)
	}
	return report, nil
}

// PurgeUsageLog deletes every usage row. It is an administrative operation.
func (m *Manager) PurgeUsageLog(ctx context.Context) error {
	if err := m.usage.Purge(ctx); err != nil {
		return fmt.Errorf("sitecookie: failed to purge usage log: %w", err)
	}
	m.log.Warn().Msg("cookie usage log purged")
	return nil
}
