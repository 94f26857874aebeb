package findings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/de-tools/storage-guard/pkg/adapters"
	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/models/store"
	"github.com/de-tools/storage-guard/pkg/services/finding"
	"github.com/de-tools/storage-guard/pkg/store/sqlite"
)

type findingStore struct {
	db *sql.DB
}

// NewStore returns a finding.Store backed by the findings table.
func NewStore(db *sql.DB) (finding.Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &findingStore{db: db}, nil
}

const selectColumns = `
	SELECT id, tenant_id, resource_id, control_id, severity, risk_score, status, title, description,
		evidence, remediation_available, remediation_guidance, detected_at, last_seen_at, resolved_at, version
	FROM findings`

func scanFinding(row interface{ Scan(dest ...any) error }) (domain.Finding, error) {
	var f store.Finding
	err := row.Scan(
		&f.ID, &f.TenantID, &f.ResourceID, &f.ControlID, &f.Severity, &f.RiskScore, &f.Status, &f.Title, &f.Description,
		&f.Evidence, &f.RemediationAvailable, &f.RemediationGuidance, &f.DetectedAt, &f.LastSeenAt, &f.ResolvedAt, &f.Version,
	)
	if err != nil {
		return domain.Finding{}, err
	}
	return adapters.MapStoreFindingToDomain(f)
}

func (s *findingStore) FindByKey(ctx context.Context, resourceID, controlID string) (domain.Finding, bool, error) {
	f, err := scanFinding(sqlite.Conn(ctx, s.db).QueryRowContext(ctx,
		selectColumns+` WHERE resource_id = ? AND control_id = ?`, resourceID, controlID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Finding{}, false, nil
	}
	if err != nil {
		return domain.Finding{}, false, fmt.Errorf("find finding %s/%s: %w", resourceID, controlID, err)
	}
	return f, true, nil
}

func (s *findingStore) Get(ctx context.Context, id string) (domain.Finding, error) {
	f, err := scanFinding(sqlite.Conn(ctx, s.db).QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Finding{}, fmt.Errorf("finding %s: %w", id, finding.ErrNotFound)
	}
	if err != nil {
		return domain.Finding{}, fmt.Errorf("get finding %s: %w", id, err)
	}
	return f, nil
}

func (s *findingStore) Create(ctx context.Context, f domain.Finding) error {
	row, err := adapters.MapDomainFindingToStore(f)
	if err != nil {
		return err
	}

	_, err = sqlite.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO findings (
			id, tenant_id, resource_id, control_id, severity, risk_score, status, title, description,
			evidence, remediation_available, remediation_guidance, detected_at, last_seen_at, resolved_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.TenantID, row.ResourceID, row.ControlID, row.Severity, row.RiskScore, row.Status, row.Title,
		row.Description, string(row.Evidence), row.RemediationAvailable, row.RemediationGuidance,
		sqlite.Time(row.DetectedAt), sqlite.Time(row.LastSeenAt), sqlite.NullTime(row.ResolvedAt), row.Version,
	)
	if sqlite.IsUniqueViolation(err) {
		return fmt.Errorf("finding %s/%s: %w", f.ResourceID, f.ControlID, finding.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert finding: %w", err)
	}
	return nil
}

func (s *findingStore) Update(ctx context.Context, f domain.Finding, expectedVersion int64) error {
	row, err := adapters.MapDomainFindingToStore(f)
	if err != nil {
		return err
	}

	conn := sqlite.Conn(ctx, s.db)
	res, err := conn.ExecContext(ctx, `
		UPDATE findings SET
			severity = ?, risk_score = ?, status = ?, title = ?, description = ?, evidence = ?,
			remediation_available = ?, remediation_guidance = ?, last_seen_at = ?, resolved_at = ?, version = ?
		WHERE id = ? AND version = ?`,
		row.Severity, row.RiskScore, row.Status, row.Title, row.Description, string(row.Evidence),
		row.RemediationAvailable, row.RemediationGuidance, sqlite.Time(row.LastSeenAt), sqlite.NullTime(row.ResolvedAt), row.Version,
		row.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update finding %s: %w", f.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update finding %s: %w", f.ID, err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM findings WHERE id = ?`, f.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("update finding %s: %w", f.ID, err)
	}
	if exists == 0 {
		return fmt.Errorf("finding %s: %w", f.ID, finding.ErrNotFound)
	}
	return fmt.Errorf("finding %s at version %d: %w", f.ID, expectedVersion, finding.ErrStale)
}

func whereClause(filter domain.FindingFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.TenantID != "" {
		conds = append(conds, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Severity != "" {
		conds = append(conds, "severity = ?")
		args = append(args, string(filter.Severity))
	}
	if filter.ResourceID != "" {
		conds = append(conds, "resource_id = ?")
		args = append(args, filter.ResourceID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *findingStore) List(ctx context.Context, filter domain.FindingFilter) (domain.FindingPage, error) {
	where, args := whereClause(filter)
	conn := sqlite.Conn(ctx, s.db)

	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM findings`+where, args...).Scan(&total); err != nil {
		return domain.FindingPage{}, fmt.Errorf("count findings: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := conn.QueryContext(ctx,
		selectColumns+where+` ORDER BY risk_score DESC, last_seen_at DESC, id LIMIT ? OFFSET ?`,
		append(args, limit, filter.Offset)...,
	)
	if err != nil {
		return domain.FindingPage{}, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	items := []domain.Finding{}
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return domain.FindingPage{}, fmt.Errorf("scan finding: %w", err)
		}
		items = append(items, f)
	}
	if err := rows.Err(); err != nil {
		return domain.FindingPage{}, fmt.Errorf("list findings: %w", err)
	}

	return domain.FindingPage{Items: items, Total: total}, nil
}

func (s *findingStore) Statistics(ctx context.Context, tenantID string) (domain.FindingStatistics, error) {
	query := `SELECT severity, COUNT(*) FROM findings WHERE status IN (?, ?)`
	args := []any{string(domain.FindingStatusOpen), string(domain.FindingStatusSuppressed)}
	if tenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, tenantID)
	}
	query += ` GROUP BY severity`

	rows, err := sqlite.Conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return domain.FindingStatistics{}, fmt.Errorf("finding statistics: %w", err)
	}
	defer rows.Close()

	stats := domain.FindingStatistics{BySeverity: make(map[domain.Severity]int)}
	for _, sev := range domain.AllSeverities() {
		stats.BySeverity[sev] = 0
	}
	for rows.Next() {
		var c store.SeverityCount
		if err := rows.Scan(&c.Severity, &c.Count); err != nil {
			return domain.FindingStatistics{}, fmt.Errorf("scan statistics: %w", err)
		}
		stats.BySeverity[domain.Severity(c.Severity)] = c.Count
		stats.Total += c.Count
	}
	return stats, rows.Err()
}
