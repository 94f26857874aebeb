package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/de-tools/storage-guard/pkg/adapters"
	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/models/store"
	"github.com/de-tools/storage-guard/pkg/store/sqlite"
	"github.com/google/uuid"
)

type Store interface {
	List(ctx context.Context) ([]domain.CloudAccount, error)
	ListActive(ctx context.Context) ([]domain.CloudAccount, error)
	Get(ctx context.Context, id string) (domain.CloudAccount, error)
	// FindActiveByExternalID resolves the owner of a vendor account id.
	FindActiveByExternalID(ctx context.Context, provider domain.Provider, externalID string) (domain.CloudAccount, bool, error)
	// Upsert inserts or updates an account keyed by (tenant, provider, external id).
	Upsert(ctx context.Context, account domain.CloudAccount) (domain.CloudAccount, error)
	// UpsertAll upserts every account in one transaction: either all are saved or none.
	UpsertAll(ctx context.Context, accounts []domain.CloudAccount) ([]domain.CloudAccount, error)
	MarkScanned(ctx context.Context, id string, at time.Time) error
	// Flag records a scan-blocking error without deactivating the account.
	Flag(ctx context.Context, id, reason string, at time.Time) error
}

type accountStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &accountStore{db: db}, nil
}

const selectColumns = `
	SELECT id, tenant_id, provider, external_id, name, credentials, active, criticality,
		last_scanned_at, last_error, last_error_at, created_at
	FROM cloud_accounts`

func scanAccount(row interface{ Scan(dest ...any) error }) (domain.CloudAccount, error) {
	var a store.CloudAccount
	err := row.Scan(
		&a.ID, &a.TenantID, &a.Provider, &a.ExternalID, &a.Name, &a.Credentials, &a.Active, &a.Criticality,
		&a.LastScannedAt, &a.LastError, &a.LastErrorAt, &a.CreatedAt,
	)
	if err != nil {
		return domain.CloudAccount{}, err
	}
	return adapters.MapStoreAccountToDomain(a)
}

func (s *accountStore) query(ctx context.Context, query string, args ...any) ([]domain.CloudAccount, error) {
	rows, err := sqlite.Conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.CloudAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *accountStore) List(ctx context.Context) ([]domain.CloudAccount, error) {
	return s.query(ctx, selectColumns+` ORDER BY tenant_id, provider, external_id`)
}

func (s *accountStore) ListActive(ctx context.Context) ([]domain.CloudAccount, error) {
	return s.query(ctx, selectColumns+` WHERE active = 1 ORDER BY tenant_id, provider, external_id`)
}

func (s *accountStore) Get(ctx context.Context, id string) (domain.CloudAccount, error) {
	a, err := scanAccount(sqlite.Conn(ctx, s.db).QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CloudAccount{}, fmt.Errorf("account %s: %w", id, sqlite.ErrNotFound)
	}
	if err != nil {
		return domain.CloudAccount{}, fmt.Errorf("get account %s: %w", id, err)
	}
	return a, nil
}

func (s *accountStore) FindActiveByExternalID(
	ctx context.Context,
	provider domain.Provider,
	externalID string,
) (domain.CloudAccount, bool, error) {
	a, err := scanAccount(sqlite.Conn(ctx, s.db).QueryRowContext(ctx,
		selectColumns+` WHERE provider = ? AND external_id = ? AND active = 1 ORDER BY created_at LIMIT 1`,
		string(provider), externalID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CloudAccount{}, false, nil
	}
	if err != nil {
		return domain.CloudAccount{}, false, fmt.Errorf("find account %s/%s: %w", provider, externalID, err)
	}
	return a, true, nil
}

func (s *accountStore) Upsert(ctx context.Context, account domain.CloudAccount) (domain.CloudAccount, error) {
	if account.TenantID == "" || account.Provider == "" || account.ExternalID == "" {
		return domain.CloudAccount{}, fmt.Errorf("tenant, provider and external id are required")
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}

	row, err := adapters.MapDomainAccountToStore(account)
	if err != nil {
		return domain.CloudAccount{}, err
	}

	var id string
	err = sqlite.Conn(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO cloud_accounts (id, tenant_id, provider, external_id, name, credentials, active, criticality, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, provider, external_id) DO UPDATE SET
			name = excluded.name,
			credentials = excluded.credentials,
			active = excluded.active,
			criticality = excluded.criticality
		RETURNING id`,
		row.ID, row.TenantID, row.Provider, row.ExternalID, row.Name, string(row.Credentials), row.Active, row.Criticality,
		sqlite.Time(time.Now()),
	).Scan(&id)
	if err != nil {
		return domain.CloudAccount{}, fmt.Errorf("upsert account: %w", err)
	}

	return s.Get(ctx, id)
}

func (s *accountStore) UpsertAll(ctx context.Context, accounts []domain.CloudAccount) ([]domain.CloudAccount, error) {
	saved := make([]domain.CloudAccount, 0, len(accounts))
	err := sqlite.InTransaction(ctx, s.db, func(ctx context.Context) error {
		for _, account := range accounts {
			a, err := s.Upsert(ctx, account)
			if err != nil {
				return fmt.Errorf("account %s: %w", account.Name, err)
			}
			saved = append(saved, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *accountStore) MarkScanned(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, id, `
		UPDATE cloud_accounts SET last_scanned_at = ?, last_error = NULL, last_error_at = NULL
		WHERE id = ?`, sqlite.Time(at), id)
}

func (s *accountStore) Flag(ctx context.Context, id, reason string, at time.Time) error {
	return s.exec(ctx, id, `
		UPDATE cloud_accounts SET last_error = ?, last_error_at = ?
		WHERE id = ?`, reason, sqlite.Time(at), id)
}

func (s *accountStore) exec(ctx context.Context, id, query string, args ...any) error {
	res, err := sqlite.Conn(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update account %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", id, sqlite.ErrNotFound)
	}
	return nil
}
