package subscriptions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corbeille/corbeille-backend/pkg/calendar"
	"github.com/corbeille/corbeille-backend/pkg/db/models"
	"github.com/corbeille/corbeille-backend/pkg/enums"
	pkgerrors "github.com/corbeille/corbeille-backend/pkg/errors"
	"github.com/corbeille/corbeille-backend/pkg/logger"
	"github.com/corbeille/corbeille-backend/pkg/outbox"
	"github.com/corbeille/corbeille-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notifier interface {
	SubscriptionCancelled(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error
}

// Service is the subscription lifecycle surface used by HTTP handlers and the
// webhook reconciler.
type Service interface {
	Cancel(ctx context.Context, companyID uuid.UUID) (*models.Subscription, error)
	GetActive(ctx context.Context, companyID uuid.UUID) (*models.Subscription, error)
	Activate(ctx context.Context, tx *gorm.DB, input ActivateInput) (*models.Subscription, bool, error)
	Deactivate(ctx context.Context, tx *gorm.DB, sub *models.Subscription, state ExternalState) error
	Mirror(ctx context.Context, tx *gorm.DB, sub *models.Subscription, state ExternalState) error
	Advance(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error
	PublishChanged(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error
}

type ServiceParams struct {
	Repository        Repository
	Stripe            StripeSubscriptionClient
	Notifier          notifier
	Outbox            outbox.Emitter
	TransactionRunner txRunner
	Logger            *logger.Logger
	Clock             func() time.Time
}

// ActivateInput carries a completed subscription checkout.
type ActivateInput struct {
	CompanyID            uuid.UUID
	Frequency            enums.Frequency
	PreferredWeekday     enums.DeliveryWeekday
	FirstDeliveryDate    time.Time
	DeliveryAddress      string
	CustomerEmail        string
	StripeSubscriptionID string
	Items                []models.SubscriptionItem
	External             ExternalState
}

type service struct {
	repo     Repository
	stripe   StripeSubscriptionClient
	notifier notifier
	outbox   outbox.Emitter
	txRunner txRunner
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, errors.New("subscription repository required")
	}
	if params.Notifier == nil {
		return nil, errors.New("notifier required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	if params.TransactionRunner == nil {
		return nil, errors.New("transaction runner required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:     params.Repository,
		stripe:   params.Stripe,
		notifier: params.Notifier,
		outbox:   params.Outbox,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
		now:      clock,
	}, nil
}

func (s *service) GetActive(ctx context.Context, companyID uuid.UUID) (*models.Subscription, error) {
	if companyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company id is required")
	}
	sub, err := s.repo.FindActiveByCompany(ctx, companyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active subscription")
	}
	return sub, nil
}

// Cancel schedules cancellation at period end when the provider bills the
// subscription, and deactivates local-only subscriptions immediately.
func (s *service) Cancel(ctx context.Context, companyID uuid.UUID) (*models.Subscription, error) {
	active, err := s.GetActive(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if active.CancelAtPeriodEnd {
		return active, nil
	}

	var external *ExternalState
	if active.HasExternalReference() {
		if s.stripe == nil {
			return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "billing provider not configured")
		}
		updated, err := s.stripe.ScheduleCancellation(ctx, *active.StripeSubscriptionID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "schedule subscription cancellation")
		}
		state := ExternalStateFromStripe(updated)
		state.CancelAtPeriodEnd = true
		external = &state
	}

	var result *models.Subscription
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		stored, err := txRepo.FindByIDForUpdate(ctx, active.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock subscription")
		}
		if external != nil {
			ApplyExternalState(stored, *external)
		} else {
			now := s.now().UTC()
			stored.IsActive = false
			stored.CanceledAt = &now
		}
		if err := txRepo.Save(ctx, stored); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist cancellation")
		}
		if err := s.notifier.SubscriptionCancelled(ctx, tx, stored); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue cancellation notice")
		}
		if err := s.PublishChanged(ctx, tx, stored); err != nil {
			return err
		}
		result = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithSubscriptionID(ctx, result.ID.String())
		s.logg.Info(s.logg.WithField(logCtx, "cancel_at_period_end", result.CancelAtPeriodEnd), "subscription cancelled")
	}
	return result, nil
}

// Activate records a completed subscription checkout inside tx and switches
// off every other active subscription of the company. The second return is
// false when the provider subscription was already recorded.
func (s *service) Activate(ctx context.Context, tx *gorm.DB, input ActivateInput) (*models.Subscription, bool, error) {
	if tx == nil {
		return nil, false, errors.New("transaction required")
	}
	if err := validateActivation(input); err != nil {
		return nil, false, err
	}
	txRepo := s.repo.WithTx(tx)

	externalID := strings.TrimSpace(input.StripeSubscriptionID)
	if externalID != "" {
		existing, err := txRepo.FindByExternalIDForUpdate(ctx, externalID)
		switch {
		case err == nil:
			return existing, false, nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup subscription")
		}
	}

	first := calendar.AsUTCDate(input.FirstDeliveryDate)
	next, err := NextDeliveryAfter(first, input.Frequency)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "compute next delivery")
	}

	sub := &models.Subscription{
		CompanyID:        input.CompanyID,
		Frequency:        input.Frequency,
		PreferredWeekday: input.PreferredWeekday,
		NextDeliveryDate: next,
		DeliveryAddress:  strings.TrimSpace(input.DeliveryAddress),
		CustomerEmail:    strings.ToLower(strings.TrimSpace(input.CustomerEmail)),
		IsActive:         true,
		Items:            input.Items,
	}
	if externalID != "" {
		sub.StripeSubscriptionID = &externalID
	}
	ApplyExternalState(sub, input.External)

	// Deactivate first so a partial unique index on active rows never sees two.
	if _, err := txRepo.DeactivateOthers(ctx, input.CompanyID, uuid.Nil); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate previous subscriptions")
	}
	if err := txRepo.Create(ctx, sub); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
	}
	if err := s.PublishChanged(ctx, tx, sub); err != nil {
		return nil, false, err
	}
	return sub, true, nil
}

// Deactivate ends a subscription after the provider reports it deleted. A
// cancellation notice is queued unless the customer already received one
// when scheduling the cancellation.
func (s *service) Deactivate(ctx context.Context, tx *gorm.DB, sub *models.Subscription, state ExternalState) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	alreadyNotified := sub.CancelAtPeriodEnd
	wasActive := sub.IsActive

	ApplyExternalState(sub, state)
	sub.IsActive = false
	if sub.CanceledAt == nil {
		now := s.now().UTC()
		sub.CanceledAt = &now
	}
	if err := s.repo.WithTx(tx).Save(ctx, sub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate subscription")
	}
	if wasActive && !alreadyNotified {
		if err := s.notifier.SubscriptionCancelled(ctx, tx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue cancellation notice")
		}
	}
	return s.PublishChanged(ctx, tx, sub)
}

// Mirror copies the provider's view onto the local row. A cancellation
// scheduled outside this service (customer portal) triggers the notice.
func (s *service) Mirror(ctx context.Context, tx *gorm.DB, sub *models.Subscription, state ExternalState) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	newlyScheduled := state.CancelAtPeriodEnd && !sub.CancelAtPeriodEnd

	ApplyExternalState(sub, state)
	if err := s.repo.WithTx(tx).Save(ctx, sub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mirror subscription")
	}
	if newlyScheduled && sub.IsActive {
		if err := s.notifier.SubscriptionCancelled(ctx, tx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue cancellation notice")
		}
	}
	return s.PublishChanged(ctx, tx, sub)
}

// Advance moves NextDeliveryDate one period forward after a paid renewal.
func (s *service) Advance(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	next, err := NextDeliveryAfter(sub.NextDeliveryDate, sub.Frequency)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "compute next delivery")
	}
	sub.NextDeliveryDate = next
	if err := s.repo.WithTx(tx).Save(ctx, sub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance subscription")
	}
	return s.PublishChanged(ctx, tx, sub)
}

// PublishChanged queues a subscription_changed event for downstream consumers.
func (s *service) PublishChanged(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error {
	event := payloads.SubscriptionChangedEvent{
		SubscriptionID:    sub.ID,
		CompanyID:         sub.CompanyID,
		IsActive:          sub.IsActive,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		NextDeliveryDate:  calendar.FormatISODate(sub.NextDeliveryDate),
	}
	if sub.ExternalStatus != nil {
		event.ExternalStatus = string(*sub.ExternalStatus)
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSubscriptionChanged,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   sub.ID,
		Actor:         outbox.ActorSystem,
		Data:          event,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue subscription change")
	}
	return nil
}

func validateActivation(input ActivateInput) error {
	switch {
	case input.CompanyID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "company id is required")
	case !input.Frequency.IsValid():
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid frequency %q", input.Frequency)
	case !input.PreferredWeekday.IsValid():
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid delivery weekday %q", input.PreferredWeekday)
	case input.FirstDeliveryDate.IsZero():
		return pkgerrors.New(pkgerrors.CodeValidation, "first delivery date is required")
	case strings.TrimSpace(input.CustomerEmail) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}
	return nil
}
