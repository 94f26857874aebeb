package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/services/metrics"
	"github.com/de-tools/storage-guard/pkg/services/provider"
	"github.com/de-tools/storage-guard/pkg/services/scanner"
	"github.com/de-tools/storage-guard/pkg/store/sqlite/accounts"
	"github.com/de-tools/storage-guard/pkg/store/sqlite/resources"
	"github.com/rs/zerolog"
)

const (
	OutcomeProcessed = "processed"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "failed"
)

// Reconciler re-checks the single resource a change event touches.
type Reconciler struct {
	accounts  accounts.Store
	resources resources.Store
	providers *provider.Registry
	checker   *scanner.Checker
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewReconciler(
	accountStore accounts.Store,
	resourceStore resources.Store,
	providers *provider.Registry,
	checker *scanner.Checker,
	m *metrics.Metrics,
) *Reconciler {
	return &Reconciler{
		accounts:  accountStore,
		resources: resourceStore,
		providers: providers,
		checker:   checker,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ProcessEvent handles one delivery. Events that cannot be acted on return nil so the
// transport acknowledges them; any other error leaves the message for redelivery.
// Reprocessing the same event yields the same finding state.
func (r *Reconciler) ProcessEvent(ctx context.Context, raw []byte) error {
	err := r.process(ctx, raw)
	switch {
	case errors.Is(err, errIgnored):
		r.metrics.EventProcessed(OutcomeIgnored)
		return nil
	case err != nil:
		r.metrics.EventProcessed(OutcomeFailed)
		zerolog.Ctx(ctx).Error().Err(err).Msg("event processing failed")
		return err
	default:
		r.metrics.EventProcessed(OutcomeProcessed)
		return nil
	}
}

var errIgnored = errors.New("event ignored")

func (r *Reconciler) process(ctx context.Context, raw []byte) error {
	logger := zerolog.Ctx(ctx)

	event, err := Decode(raw)
	if err != nil {
		if IsDataError(err) {
			logger.Debug().Err(err).Str("provider", event.Provider.String()).Msg("ignoring event")
			return errIgnored
		}
		return err
	}

	l := logger.With().
		Str("event_id", event.EventID).
		Str("event_name", event.EventName).
		Str("provider", event.Provider.String()).
		Str("resource", event.ResourceID).
		Logger()
	ctx = l.WithContext(ctx)
	logger = &l

	controls := ControlsForProperties(PropertiesForEvent(event.EventName))
	if len(controls) == 0 {
		logger.Debug().Msg("event does not affect security configuration")
		return errIgnored
	}

	account, found, err := r.accounts.FindActiveByExternalID(ctx, event.Provider, event.AccountID)
	if err != nil {
		return fmt.Errorf("failed to resolve account: %w", err)
	}
	if !found {
		logger.Info().Str("external_id", event.AccountID).Msg("no active account for event")
		return errIgnored
	}

	p, err := r.providers.Get(account.Provider)
	if err != nil {
		logger.Warn().Err(err).Msg("unsupported provider, skipping event")
		return errIgnored
	}

	session, err := p.Connect(ctx, account)
	if err != nil {
		return r.providerFailure(ctx, account, err)
	}

	snapshot, err := r.currentSnapshot(ctx, session, account, event)
	if errors.Is(err, provider.ErrResourceNotFound) {
		logger.Info().Msg("resource not found at provider, ignoring event")
		return errIgnored
	}
	if err != nil {
		return r.providerFailure(ctx, account, err)
	}

	_, err = r.checker.Reconcile(ctx, p, scanner.Check{
		Account:  account,
		Snapshot: snapshot,
		Controls: controls,
		Source:   domain.TriggerEvent,
		EventID:  event.EventID,
	})
	if err != nil {
		return fmt.Errorf("failed to reconcile %s: %w", event.ResourceID, err)
	}

	logger.Info().Strs("controls", controls).Msg("event reconciled")
	return nil
}

// currentSnapshot re-fetches a known resource. A resource never seen before is
// discovered through a listing of the event's region.
func (r *Reconciler) currentSnapshot(
	ctx context.Context,
	session provider.Session,
	account domain.CloudAccount,
	event domain.NormalizedEvent,
) (domain.ResourceSnapshot, error) {
	known, found, err := r.resources.FindByName(ctx, account.TenantID, account.Provider, event.ResourceID)
	if err != nil {
		return domain.ResourceSnapshot{}, fmt.Errorf("failed to resolve resource: %w", err)
	}
	if found {
		return session.FetchResource(ctx, known.Name, known.Region)
	}

	zerolog.Ctx(ctx).Info().Msg("resource not known yet, discovering through listing")
	refs, err := session.ListResources(ctx, event.Region)
	if err != nil {
		return domain.ResourceSnapshot{}, err
	}
	for _, ref := range refs {
		if ref.Name == event.ResourceID {
			return session.FetchResource(ctx, ref.Name, ref.Region)
		}
	}
	return domain.ResourceSnapshot{}, fmt.Errorf("%s: %w", event.ResourceID, provider.ErrResourceNotFound)
}

// providerFailure flags the account on authorization errors. The error still propagates
// so the event is redelivered once credentials are fixed.
func (r *Reconciler) providerFailure(ctx context.Context, account domain.CloudAccount, err error) error {
	if provider.Classify(err) == provider.KindAuthorization {
		if flagErr := r.accounts.Flag(ctx, account.ID, err.Error(), r.now()); flagErr != nil {
			zerolog.Ctx(ctx).Error().Err(flagErr).Msg("failed to flag account")
		}
	}
	return fmt.Errorf("provider call for account %s: %w", account.ID, err)
}
