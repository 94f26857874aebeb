package finding

import (
	"context"
	"errors"

	"github.com/de-tools/storage-guard/pkg/models/domain"
)

var (
	ErrNotFound          = errors.New("finding not found")
	ErrDuplicate         = errors.New("finding already exists for resource and control")
	ErrStale             = errors.New("finding was modified concurrently")
	ErrInvalidTransition = errors.New("invalid finding status transition")
	ErrInvalidFinding    = errors.New("invalid finding")
	ErrInvalidFilter     = errors.New("invalid finding filter")
)

// Store persists findings. (ResourceID, ControlID) is unique: Create returns ErrDuplicate
// when the pair already exists. Update is a compare-and-swap on Version and returns
// ErrStale when the stored version differs from expectedVersion.
type Store interface {
	FindByKey(ctx context.Context, resourceID, controlID string) (domain.Finding, bool, error)
	Get(ctx context.Context, id string) (domain.Finding, error)
	Create(ctx context.Context, f domain.Finding) error
	Update(ctx context.Context, f domain.Finding, expectedVersion int64) error
	List(ctx context.Context, filter domain.FindingFilter) (domain.FindingPage, error)
	Statistics(ctx context.Context, tenantID string) (domain.FindingStatistics, error)
}

// Controls is the control lookup the manager needs.
type Controls interface {
	Get(id string) (domain.Control, error)
	BaseSeverity(id string) domain.Severity
	IsRemediationAvailable(id string) bool
	RemediationGuidance(id string) string
}
