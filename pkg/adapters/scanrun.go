package adapters

import (
	"database/sql"

	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/models/store"
)

func MapStoreScanRunToDomain(r store.ScanRun) domain.ScanRun {
	run := domain.ScanRun{
		ID:        r.ID,
		Status:    domain.ScanRunStatus(r.Status),
		StartedAt: r.StartedAt.UTC(),
		Accounts:  r.Accounts,
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
	}
	if r.FinishedAt.Valid {
		at := r.FinishedAt.Time.UTC()
		run.FinishedAt = &at
	}
	if r.Error.Valid {
		msg := r.Error.String
		run.Error = &msg
	}
	return run
}

func MapDomainScanRunToStore(r domain.ScanRun) store.ScanRun {
	row := store.ScanRun{
		ID:        r.ID,
		Status:    string(r.Status),
		StartedAt: r.StartedAt.UTC(),
		Accounts:  r.Accounts,
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
	}
	if r.FinishedAt != nil {
		row.FinishedAt = sql.NullTime{Time: r.FinishedAt.UTC(), Valid: true}
	}
	if r.Error != nil {
		row.Error = sql.NullString{String: *r.Error, Valid: true}
	}
	return row
}
