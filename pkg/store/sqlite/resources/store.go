package resources

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
	// Upsert stores the latest configuration snapshot keyed by (tenant, provider, name).
	// The id and discovered_at of an existing row are preserved.
	Upsert(ctx context.Context, resource domain.StorageResource) (domain.StorageResource, error)
	Get(ctx context.Context, id string) (domain.StorageResource, error)
	FindByName(ctx context.Context, tenantID string, provider domain.Provider, name string) (domain.StorageResource, bool, error)
	ListByAccount(ctx context.Context, accountID string) ([]domain.StorageResource, error)
}

type resourceStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &resourceStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

const selectColumns = `
	SELECT id, tenant_id, account_id, provider, resource_type, resource_id, region, configuration,
		discovered_at, last_modified_at, updated_at
	FROM storage_resources`

func scanResource(row interface{ Scan(dest ...any) error }) (domain.StorageResource, error) {
	var r store.StorageResource
	err := row.Scan(
		&r.ID, &r.TenantID, &r.AccountID, &r.Provider, &r.ResourceType, &r.ResourceID, &r.Region, &r.Configuration,
		&r.DiscoveredAt, &r.LastModifiedAt, &r.UpdatedAt,
	)
	if err != nil {
		return domain.StorageResource{}, err
	}
	return adapters.MapStoreResourceToDomain(r)
}

func (s *resourceStore) Upsert(ctx context.Context, resource domain.StorageResource) (domain.StorageResource, error) {
	if resource.TenantID == "" || resource.AccountID == "" || resource.Name == "" {
		return domain.StorageResource{}, fmt.Errorf("tenant, account and resource name are required")
	}

	now := s.now()
	if resource.ID == "" {
		resource.ID = uuid.NewString()
	}
	if resource.DiscoveredAt.IsZero() {
		resource.DiscoveredAt = now
	}

	row, err := adapters.MapDomainResourceToStore(resource)
	if err != nil {
		return domain.StorageResource{}, err
	}

	var id string
	err = sqlite.Conn(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO storage_resources (
			id, tenant_id, account_id, provider, resource_type, resource_id, region, configuration,
			discovered_at, last_modified_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, provider, resource_id) DO UPDATE SET
			account_id = excluded.account_id,
			resource_type = excluded.resource_type,
			region = excluded.region,
			configuration = excluded.configuration,
			last_modified_at = COALESCE(excluded.last_modified_at, storage_resources.last_modified_at),
			updated_at = excluded.updated_at
		RETURNING id`,
		row.ID, row.TenantID, row.AccountID, row.Provider, row.ResourceType, row.ResourceID, row.Region,
		string(row.Configuration), sqlite.Time(row.DiscoveredAt), sqlite.NullTime(row.LastModifiedAt), sqlite.Time(now),
	).Scan(&id)
	if err != nil {
		return domain.StorageResource{}, fmt.Errorf("upsert resource %s: %w", resource.Name, err)
	}
	return s.Get(ctx, id)
}

func (s *resourceStore) Get(ctx context.Context, id string) (domain.StorageResource, error) {
	r, err := scanResource(sqlite.Conn(ctx, s.db).QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StorageResource{}, fmt.Errorf("resource %s: %w", id, sqlite.ErrNotFound)
	}
	if err != nil {
		return domain.StorageResource{}, fmt.Errorf("get resource %s: %w", id, err)
	}
	return r, nil
}

func (s *resourceStore) FindByName(
	ctx context.Context,
	tenantID string,
	provider domain.Provider,
	name string,
) (domain.StorageResource, bool, error) {
	r, err := scanResource(sqlite.Conn(ctx, s.db).QueryRowContext(ctx,
		selectColumns+` WHERE tenant_id = ? AND provider = ? AND resource_id = ?`,
		tenantID, string(provider), name,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StorageResource{}, false, nil
	}
	if err != nil {
		return domain.StorageResource{}, false, fmt.Errorf("find resource %s: %w", name, err)
	}
	return r, true, nil
}

func (s *resourceStore) ListByAccount(ctx context.Context, accountID string) ([]domain.StorageResource, error) {
	rows, err := sqlite.Conn(ctx, s.db).QueryContext(ctx, selectColumns+` WHERE account_id = ? ORDER BY resource_id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	var out []domain.StorageResource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
