package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/corbeille/corbeille-backend/internal/subscriptions"
	"github.com/corbeille/corbeille-backend/pkg/db/models"
	"github.com/corbeille/corbeille-backend/pkg/logger"
)

const (
	defaultReconcileBatch      = 200
	defaultReconcileStaleAfter = 24 * time.Hour
)

type subscriptionMirror interface {
	Deactivate(ctx context.Context, tx *gorm.DB, sub *models.Subscription, state subscriptions.ExternalState) error
	Mirror(ctx context.Context, tx *gorm.DB, sub *models.Subscription, state subscriptions.ExternalState) error
}

type SubscriptionReconcileJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Repository    subscriptions.Repository
	Subscriptions subscriptionMirror
	Stripe        subscriptions.StripeSubscriptionClient
	BatchSize     int
	StaleAfter    time.Duration
	Now           func() time.Time
}

// NewSubscriptionReconcileJob re-reads active subscriptions from Stripe to
// repair state a lost webhook left behind.
func NewSubscriptionReconcileJob(params SubscriptionReconcileJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("subscription repository required")
	case params.Subscriptions == nil:
		return nil, errors.New("subscription service required")
	case params.Stripe == nil:
		return nil, errors.New("stripe client required")
	}
	job := &subscriptionReconcileJob{
		logg:       params.Logger,
		db:         params.DB,
		repo:       params.Repository,
		subs:       params.Subscriptions,
		stripe:     params.Stripe,
		batch:      params.BatchSize,
		staleAfter: params.StaleAfter,
		now:        params.Now,
	}
	if job.batch <= 0 {
		job.batch = defaultReconcileBatch
	}
	if job.staleAfter <= 0 {
		job.staleAfter = defaultReconcileStaleAfter
	}
	if job.now == nil {
		job.now = time.Now
	}
	return job, nil
}

type subscriptionReconcileJob struct {
	logg       *logger.Logger
	db         txRunner
	repo       subscriptions.Repository
	subs       subscriptionMirror
	stripe     subscriptions.StripeSubscriptionClient
	batch      int
	staleAfter time.Duration
	now        func() time.Time
}

type reconcileOutcome string

const (
	outcomeUnchanged   reconcileOutcome = "unchanged"
	outcomeMirrored    reconcileOutcome = "mirrored"
	outcomeDeactivated reconcileOutcome = "deactivated"
	outcomeMissing     reconcileOutcome = "missing"
)

func (j *subscriptionReconcileJob) Name() string { return "subscription-reconcile" }

func (j *subscriptionReconcileJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.staleAfter)
	candidates, err := j.repo.ListStaleExternal(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list stale subscriptions: %w", err)
	}

	var errs error
	counts := map[reconcileOutcome]int{}
	for i := range candidates {
		outcome, err := j.reconcile(ctx, &candidates[i])
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("subscription %s: %w", candidates[i].ID, err))
			continue
		}
		counts[outcome]++
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates":  len(candidates),
		"unchanged":   counts[outcomeUnchanged],
		"mirrored":    counts[outcomeMirrored],
		"deactivated": counts[outcomeDeactivated],
		"missing":     counts[outcomeMissing],
		"failed":      len(multierr.Errors(errs)),
	}), "subscription reconcile complete")
	return errs
}

func (j *subscriptionReconcileJob) reconcile(ctx context.Context, candidate *models.Subscription) (reconcileOutcome, error) {
	externalID := *candidate.StripeSubscriptionID
	logCtx := j.logg.WithFields(j.logg.WithSubscriptionID(ctx, candidate.ID.String()), map[string]any{
		"stripe_subscription_id": externalID,
	})

	remote, err := j.stripe.Get(logCtx, externalID)
	if isStripeNotFound(err) || (err == nil && remote == nil) {
		j.logg.Warn(logCtx, "stripe subscription missing; leaving local row untouched")
		return outcomeMissing, nil
	}
	if err != nil {
		return "", fmt.Errorf("fetch stripe subscription: %w", err)
	}
	state := subscriptions.ExternalStateFromStripe(remote)

	outcome := outcomeUnchanged
	err = j.db.WithTx(logCtx, func(tx *gorm.DB) error {
		txRepo := j.repo.WithTx(tx)
		sub, err := txRepo.FindByIDForUpdate(logCtx, candidate.ID)
		if err != nil {
			return err
		}
		if !sub.IsActive {
			return nil
		}
		switch {
		case isTerminalStatus(remote.Status):
			outcome = outcomeDeactivated
			return j.subs.Deactivate(logCtx, tx, sub, state)
		case drifted(sub, state):
			outcome = outcomeMirrored
			return j.subs.Mirror(logCtx, tx, sub, state)
		default:
			// Touch updated_at so the row leaves the stale window.
			return txRepo.Save(logCtx, sub)
		}
	})
	if err != nil {
		return "", err
	}
	if outcome != outcomeUnchanged {
		j.logg.Info(j.logg.WithField(logCtx, "outcome", string(outcome)), "subscription reconciled")
	}
	return outcome, nil
}

func isTerminalStatus(status stripe.SubscriptionStatus) bool {
	return status == stripe.SubscriptionStatusCanceled || status == stripe.SubscriptionStatusIncompleteExpired
}

func isStripeNotFound(err error) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing
}

// drifted reports whether applying state would change any mirrored field.
func drifted(sub *models.Subscription, state subscriptions.ExternalState) bool {
	probe := *sub
	subscriptions.ApplyExternalState(&probe, state)
	return !samePtr(sub.ExternalStatus, probe.ExternalStatus) ||
		!sameTime(sub.CurrentPeriodEnd, probe.CurrentPeriodEnd) ||
		sub.CancelAtPeriodEnd != probe.CancelAtPeriodEnd ||
		!sameTime(sub.CanceledAt, probe.CanceledAt) ||
		!samePtr(sub.StripeCustomerID, probe.StripeCustomerID) ||
		!samePtr(sub.PriceID, probe.PriceID)
}

func samePtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
