package scanruns

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/de-tools/storage-guard/pkg/adapters"
	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/models/store"
	"github.com/de-tools/storage-guard/pkg/store/sqlite"
)

const defaultListLimit = 20

type Store interface {
	Create(ctx context.Context, run domain.ScanRun) error
	// Finish stores the final state of a run created earlier.
	Finish(ctx context.Context, run domain.ScanRun) error
	Get(ctx context.Context, id string) (domain.ScanRun, error)
	// List returns the most recent runs first.
	List(ctx context.Context, limit int) ([]domain.ScanRun, error)
}

type scanRunStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &scanRunStore{db: db}, nil
}

const selectColumns = `
	SELECT id, status, started_at, finished_at, accounts, succeeded, failed, error
	FROM scan_runs`

func scanRun(row interface{ Scan(dest ...any) error }) (domain.ScanRun, error) {
	var r store.ScanRun
	if err := row.Scan(&r.ID, &r.Status, &r.StartedAt, &r.FinishedAt, &r.Accounts, &r.Succeeded, &r.Failed, &r.Error); err != nil {
		return domain.ScanRun{}, err
	}
	return adapters.MapStoreScanRunToDomain(r), nil
}

func (s *scanRunStore) Create(ctx context.Context, run domain.ScanRun) error {
	r := adapters.MapDomainScanRunToStore(run)
	_, err := sqlite.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO scan_runs (id, status, started_at, finished_at, accounts, succeeded, failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Status, sqlite.Time(r.StartedAt), sqlite.NullTime(r.FinishedAt), r.Accounts, r.Succeeded, r.Failed, r.Error,
	)
	if err != nil {
		return fmt.Errorf("create scan run %s: %w", run.ID, err)
	}
	return nil
}

func (s *scanRunStore) Finish(ctx context.Context, run domain.ScanRun) error {
	r := adapters.MapDomainScanRunToStore(run)
	res, err := sqlite.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE scan_runs
		SET status = ?, finished_at = ?, accounts = ?, succeeded = ?, failed = ?, error = ?
		WHERE id = ?`,
		r.Status, sqlite.NullTime(r.FinishedAt), r.Accounts, r.Succeeded, r.Failed, r.Error, r.ID,
	)
	if err != nil {
		return fmt.Errorf("finish scan run %s: %w", run.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish scan run %s: %w", run.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("scan run %s: %w", run.ID, sqlite.ErrNotFound)
	}
	return nil
}

func (s *scanRunStore) Get(ctx context.Context, id string) (domain.ScanRun, error) {
	run, err := scanRun(sqlite.Conn(ctx, s.db).QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ScanRun{}, fmt.Errorf("scan run %s: %w", id, sqlite.ErrNotFound)
	}
	if err != nil {
		return domain.ScanRun{}, fmt.Errorf("get scan run %s: %w", id, err)
	}
	return run, nil
}

func (s *scanRunStore) List(ctx context.Context, limit int) ([]domain.ScanRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := sqlite.Conn(ctx, s.db).QueryContext(ctx, selectColumns+` ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scan runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.ScanRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
