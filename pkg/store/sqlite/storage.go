package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var ErrNotFound = errors.New("record not found")

// TimeLayout is fixed width, so stored timestamps sort lexically in time order.
const TimeLayout = "2006-01-02 15:04:05.000000000-07:00"

// Time formats t in UTC with TimeLayout for binding as a query argument.
func Time(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// NullTime is Time for nullable columns.
func NullTime(t sql.NullTime) any {
	if !t.Valid {
		return nil
	}
	return Time(t.Time)
}

const CloudAccountsSchema = `
	CREATE TABLE IF NOT EXISTS cloud_accounts (
		id TEXT NOT NULL PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		external_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		credentials TEXT NOT NULL DEFAULT '{}',
		active INTEGER NOT NULL DEFAULT 1,
		criticality REAL NOT NULL DEFAULT 1.0,
		last_scanned_at TIMESTAMP NULL,
		last_error TEXT NULL,
		last_error_at TIMESTAMP NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (tenant_id, provider, external_id)
	);
`

const StorageResourcesSchema = `
	CREATE TABLE IF NOT EXISTS storage_resources (
		id TEXT NOT NULL PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		account_id TEXT NOT NULL REFERENCES cloud_accounts (id),
		provider TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		region TEXT NOT NULL DEFAULT '',
		configuration TEXT NOT NULL DEFAULT '{}',
		discovered_at TIMESTAMP NOT NULL,
		last_modified_at TIMESTAMP NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (tenant_id, provider, resource_id)
	);
`

const FindingsSchema = `
	CREATE TABLE IF NOT EXISTS findings (
		id TEXT NOT NULL PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		control_id TEXT NOT NULL,
		severity TEXT NOT NULL,
		risk_score INTEGER NOT NULL CHECK (risk_score BETWEEN 0 AND 100),
		status TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		evidence TEXT NOT NULL DEFAULT '{}',
		remediation_available INTEGER NOT NULL DEFAULT 0,
		remediation_guidance TEXT NOT NULL DEFAULT '',
		detected_at TIMESTAMP NOT NULL,
		last_seen_at TIMESTAMP NOT NULL,
		resolved_at TIMESTAMP NULL,
		version INTEGER NOT NULL DEFAULT 1,
		UNIQUE (resource_id, control_id)
	);
`

const FindingsStatusIndex = `
	CREATE INDEX IF NOT EXISTS idx_findings_tenant_status ON findings (tenant_id, status);
`

const FindingsRankIndex = `
	CREATE INDEX IF NOT EXISTS idx_findings_rank ON findings (risk_score DESC, last_seen_at DESC);
`

const ScanRunsSchema = `
	CREATE TABLE IF NOT EXISTS scan_runs (
		id TEXT NOT NULL PRIMARY KEY,
		status TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NULL,
		accounts INTEGER NOT NULL DEFAULT 0,
		succeeded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT NULL
	);
`

var bootQueries = []string{
	CloudAccountsSchema,
	StorageResourcesSchema,
	FindingsSchema,
	FindingsStatusIndex,
	FindingsRankIndex,
	ScanRunsSchema,
}

type Settings struct {
	DbPath string
}

func (s Settings) inMemory() bool {
	return s.DbPath == "" || s.DbPath == ":memory:" || strings.Contains(s.DbPath, "mode=memory")
}

func (s Settings) dsn() string {
	path := s.DbPath
	if path == "" {
		path = ":memory:"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
}

func NewDB(settings Settings) (*sql.DB, error) {
	db, err := sql.Open("sqlite", settings.dsn())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// every connection to ":memory:" is a separate database
	if settings.inMemory() {
		db.SetMaxOpenConns(1)
	}

	for _, query := range bootQueries {
		if _, err := db.ExecContext(context.Background(), query); err != nil {
			db.Close()
			return nil, fmt.Errorf("boot schema: %w", err)
		}
	}
	return db, nil
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure.
func IsUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
