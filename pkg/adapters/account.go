package adapters

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/models/store"
)

func MapStoreAccountToDomain(a store.CloudAccount) (domain.CloudAccount, error) {
	creds := domain.Credentials{}
	if len(a.Credentials) > 0 {
		if err := json.Unmarshal(a.Credentials, &creds); err != nil {
			return domain.CloudAccount{}, fmt.Errorf("decode credentials of account %s: %w", a.ID, err)
		}
	}

	return domain.CloudAccount{
		ID:            a.ID,
		TenantID:      a.TenantID,
		Provider:      domain.Provider(a.Provider),
		ExternalID:    a.ExternalID,
		Name:          a.Name,
		Credentials:   creds,
		Active:        a.Active,
		Criticality:   a.Criticality,
		LastScannedAt: fromNullTime(a.LastScannedAt),
		LastError:     fromNullString(a.LastError),
		LastErrorAt:   fromNullTime(a.LastErrorAt),
	}, nil
}

func MapDomainAccountToStore(a domain.CloudAccount) (store.CloudAccount, error) {
	creds := a.Credentials
	if creds == nil {
		creds = domain.Credentials{}
	}
	raw, err := json.Marshal(creds)
	if err != nil {
		return store.CloudAccount{}, fmt.Errorf("encode credentials: %w", err)
	}

	criticality := a.Criticality
	if criticality <= 0 {
		criticality = 1.0
	}

	return store.CloudAccount{
		ID:            a.ID,
		TenantID:      a.TenantID,
		Provider:      string(a.Provider),
		ExternalID:    a.ExternalID,
		Name:          a.Name,
		Credentials:   raw,
		Active:        a.Active,
		Criticality:   criticality,
		LastScannedAt: toNullTime(a.LastScannedAt),
		LastError:     toNullString(a.LastError),
		LastErrorAt:   toNullTime(a.LastErrorAt),
	}, nil
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func fromNullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
