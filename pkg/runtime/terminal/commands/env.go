package commands

import (
	"context"
	"fmt"

	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/services/scanner"
	"github.com/de-tools/storage-guard/pkg/store/sqlite/accounts"
)

type Scanner interface {
	ScanAllAccounts(ctx context.Context) (scanner.Summary, error)
	ScanAccount(ctx context.Context, id string) (scanner.AccountResult, error)
}

type FindingReader interface {
	List(ctx context.Context, filter domain.FindingFilter) (domain.FindingPage, error)
	Statistics(ctx context.Context, tenantID string) (domain.FindingStatistics, error)
}

type EventProcessor interface {
	ProcessEvent(ctx context.Context, raw []byte) error
}

type ControlLister interface {
	List() []domain.Control
}

// Env is what the commands operate on. It is resolved lazily so that flags are
// parsed before anything is opened.
type Env struct {
	Scanner  Scanner
	Findings FindingReader
	Events   EventProcessor
	Accounts accounts.Store
	Controls ControlLister
}

type EnvFunc func() (*Env, error)

func resolve(env EnvFunc) (*Env, error) {
	e, err := env()
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("command environment is not initialized")
	}
	return e, nil
}
