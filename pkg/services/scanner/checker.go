package scanner

import (
	"context"
	"errors"
	"fmt"

	"github.com/de-tools/storage-guard/pkg/adapters"
	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/services/finding"
	"github.com/de-tools/storage-guard/pkg/services/metrics"
	"github.com/de-tools/storage-guard/pkg/services/provider"
	"github.com/de-tools/storage-guard/pkg/store/sqlite/resources"
)

// FindingApplier is the single entry point for finding mutation.
type FindingApplier interface {
	ApplyCheckOutcome(
		ctx context.Context,
		resource domain.StorageResource,
		controlID string,
		outcome domain.CheckOutcome,
	) (finding.Applied, error)
}

// Check names one reconciliation of a resource snapshot.
type Check struct {
	Account  domain.CloudAccount
	Snapshot domain.ResourceSnapshot
	Controls []string
	Source   domain.TriggerSource
	EventID  string
}

// Checker persists a fresh snapshot and drives the selected controls into the
// lifecycle manager. Both the full scan and the event path end here.
type Checker struct {
	resources resources.Store
	findings  FindingApplier
	metrics   *metrics.Metrics
}

func NewChecker(resourceStore resources.Store, findings FindingApplier, m *metrics.Metrics) *Checker {
	return &Checker{
		resources: resourceStore,
		findings:  findings,
		metrics:   m,
	}
}

// Reconcile returns the joined errors of the controls that could not be applied.
// A failing control does not stop the remaining ones.
func (c *Checker) Reconcile(ctx context.Context, p provider.Provider, check Check) (domain.StorageResource, error) {
	resource, err := c.resources.Upsert(ctx, adapters.MapSnapshotToDomainResource(check.Account, check.Snapshot))
	if err != nil {
		return domain.StorageResource{}, fmt.Errorf("persist snapshot of %s: %w", check.Snapshot.Name, err)
	}

	snapshot := resource.Snapshot()
	var errs []error
	for _, controlID := range check.Controls {
		result, err := provider.RunCheck(p, controlID, snapshot)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		outcome := domain.CheckOutcome{
			CheckResult: result,
			Source:      check.Source,
			EventID:     check.EventID,
			Criticality: check.Account.Criticality,
		}
		if _, err := c.findings.ApplyCheckOutcome(ctx, resource, controlID, outcome); err != nil {
			errs = append(errs, fmt.Errorf("control %s: %w", controlID, err))
		}
	}

	c.metrics.ResourceChecked(string(check.Source))
	return resource, errors.Join(errs...)
}
