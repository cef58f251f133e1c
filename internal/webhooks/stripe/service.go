package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/corbeille/corbeille-backend/internal/companies"
	"github.com/corbeille/corbeille-backend/internal/orders"
	"github.com/corbeille/corbeille-backend/internal/promos"
	"github.com/corbeille/corbeille-backend/internal/subscriptions"
	"github.com/corbeille/corbeille-backend/pkg/calendar"
	"github.com/corbeille/corbeille-backend/pkg/checkout"
	"github.com/corbeille/corbeille-backend/pkg/db/models"
	"github.com/corbeille/corbeille-backend/pkg/enums"
	pkgerrors "github.com/corbeille/corbeille-backend/pkg/errors"
	"github.com/corbeille/corbeille-backend/pkg/logger"
	"github.com/corbeille/corbeille-backend/pkg/redis"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type entityLocker interface {
	Acquire(ctx context.Context, scope, id string) (func(context.Context) error, error)
}

type orderPlacer interface {
	Place(ctx context.Context, tx *gorm.DB, order *models.Order, renewal bool) error
}

type promoRedeemer interface {
	Redeem(ctx context.Context, tx *gorm.DB, input promos.RedeemInput) (promos.RedeemResult, error)
}

type notifier interface {
	OrderConfirmed(ctx context.Context, tx *gorm.DB, order *models.Order) error
	RenewalOrderCreated(ctx context.Context, tx *gorm.DB, order *models.Order, sub *models.Subscription) error
	PaymentFailed(ctx context.Context, tx *gorm.DB, sub *models.Subscription, invoiceID string, amountDueCents int64) error
}

type ServiceParams struct {
	TransactionRunner txRunner
	Processed         ProcessedEvents
	Companies         companies.Repository
	Subscriptions     subscriptions.Service
	SubscriptionRepo  subscriptions.Repository
	Orders            orderPlacer
	OrderRepo         orders.Repository
	Promos            promoRedeemer
	Notifier          notifier
	Plans             subscriptions.PricePlans
	Locker            entityLocker
	Logger            *logger.Logger
}

// Service is the lifecycle reconciler. Every state-changing event runs in one
// transaction that also records the event id, under a per-entity lock.
type Service struct {
	tx            txRunner
	processed     ProcessedEvents
	companies     companies.Repository
	subscriptions subscriptions.Service
	subRepo       subscriptions.Repository
	orders        orderPlacer
	orderRepo     orders.Repository
	promos        promoRedeemer
	notifier      notifier
	plans         subscriptions.PricePlans
	locker        entityLocker
	logg          *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.TransactionRunner == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	case params.Processed == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "processed events store required")
	case params.Companies == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "company repo required")
	case params.Subscriptions == nil || params.SubscriptionRepo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription service required")
	case params.Orders == nil || params.OrderRepo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order service required")
	case params.Promos == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "promo service required")
	case params.Notifier == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		tx:            params.TransactionRunner,
		processed:     params.Processed,
		companies:     params.Companies,
		subscriptions: params.Subscriptions,
		subRepo:       params.SubscriptionRepo,
		orders:        params.Orders,
		orderRepo:     params.OrderRepo,
		promos:        params.Promos,
		notifier:      params.Notifier,
		plans:         params.Plans,
		locker:        params.Locker,
		logg:          params.Logger,
	}, nil
}

type handler func(s *Service, ctx context.Context, event *stripe.Event) (Outcome, error)

// handlers covers every kind except KindUnknown.
var handlers = map[EventKind]handler{
	KindCheckoutCompleted:       (*Service).checkoutCompleted,
	KindInvoicePaymentSucceeded: (*Service).invoicePaymentSucceeded,
	KindInvoicePaymentFailed:    (*Service).invoicePaymentFailed,
	KindSubscriptionUpdated:     (*Service).subscriptionUpdated,
	KindSubscriptionDeleted:     (*Service).subscriptionDeleted,
	KindPaymentIntentSucceeded:  (*Service).logOnly,
	KindPaymentIntentFailed:     (*Service).logOnly,
}

// HandleEvent routes a verified event. Unknown types are acknowledged.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (Outcome, error) {
	if event == nil || event.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "stripe event id required")
	}
	kind := ClassifyEvent(event.Type)
	ctx = s.logg.WithEventID(ctx, event.ID)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_type": string(event.Type),
		"event_kind": kind.String(),
	})

	h, ok := handlers[kind]
	if !ok {
		s.logg.Info(ctx, "stripe.webhook.unhandled_type")
		return OutcomeIgnored, nil
	}
	return h(s, ctx, event)
}

func (s *Service) logOnly(ctx context.Context, event *stripe.Event) (Outcome, error) {
	var objectID string
	if obj, err := decodeObject[struct {
		ID string `json:"id"`
	}](event); err == nil {
		objectID = obj.ID
	}
	s.logg.Info(s.logg.WithField(ctx, "object_id", objectID), "stripe.webhook.log_only")
	return OutcomeIgnored, nil
}

type lockTarget struct {
	scope string
	id    string
}

// apply runs fn under the entity lock and inside a transaction that first
// claims the event id. A claimed id means the event was already applied.
func (s *Service) apply(ctx context.Context, event *stripe.Event, target lockTarget, fn func(tx *gorm.DB) (Outcome, error)) (Outcome, error) {
	if s.locker != nil && target.id != "" {
		release, err := s.locker.Acquire(ctx, target.scope, target.id)
		if err != nil {
			if errors.Is(err, redis.ErrLockHeld) {
				return "", pkgerrors.Newf(pkgerrors.CodeDependency, "%s %s is being updated, retry later", target.scope, target.id)
			}
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire entity lock")
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logg.Error(ctx, "stripe.webhook.lock_release_failed", err)
			}
		}()
	}

	outcome := OutcomeProcessed
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		fresh, err := s.processed.WithTx(tx).MarkProcessed(ctx, event.ID, string(event.Type))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record processed event")
		}
		if !fresh {
			outcome = OutcomeDuplicate
			return nil
		}
		outcome, err = fn(tx)
		return err
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func (s *Service) checkoutCompleted(ctx context.Context, event *stripe.Event) (Outcome, error) {
	session, err := decodeObject[checkoutSession](event)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	ctx = s.logg.WithField(ctx, "checkout_session_id", session.ID)

	meta, err := checkout.DecodeMetadata(session.Metadata)
	if err != nil {
		// Sessions created outside our checkout carry no order metadata.
		s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "stripe.webhook.checkout_without_metadata")
		return OutcomeIgnored, nil
	}
	if meta.CustomerEmail == "" {
		meta.CustomerEmail = session.email()
	}

	if session.Mode == string(stripe.CheckoutSessionModeSubscription) {
		if session.Subscription == "" {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "subscription checkout without subscription id")
		}
		target := lockTarget{scope: "subscription", id: string(session.Subscription)}
		return s.apply(ctx, event, target, func(tx *gorm.DB) (Outcome, error) {
			return s.activateSubscription(ctx, tx, session, meta)
		})
	}

	target := lockTarget{scope: "checkout_session", id: session.ID}
	return s.apply(ctx, event, target, func(tx *gorm.DB) (Outcome, error) {
		return s.createOneTimeOrder(ctx, tx, session, meta)
	})
}

func (s *Service) activateSubscription(ctx context.Context, tx *gorm.DB, session *checkoutSession, meta *checkout.Metadata) (Outcome, error) {
	firstDate, err := calendar.ParseISODate(meta.DeliveryDate)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse first delivery date")
	}
	company, err := s.companies.WithTx(tx).FindOrCreate(ctx, companies.Profile{
		Name:             meta.CompanyName,
		Email:            meta.CustomerEmail,
		Phone:            meta.CustomerPhone,
		Address:          meta.DeliveryAddress,
		StripeCustomerID: string(session.Customer),
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find or create company")
	}

	external := subscriptions.ExternalState{
		Status:     string(enums.SubscriptionStatusActive),
		CustomerID: string(session.Customer),
	}
	if priceID, err := s.plans.PriceIDForFrequency(meta.Frequency); err == nil {
		external.PriceID = priceID
	}

	sub, created, err := s.subscriptions.Activate(ctx, tx, subscriptions.ActivateInput{
		CompanyID:            company.ID,
		Frequency:            meta.Frequency,
		PreferredWeekday:     meta.PreferredWeekday,
		FirstDeliveryDate:    firstDate,
		DeliveryAddress:      meta.DeliveryAddress,
		CustomerEmail:        meta.CustomerEmail,
		StripeSubscriptionID: string(session.Subscription),
		Items:                subscriptionItems(meta.Items),
		External:             external,
	})
	if err != nil {
		return "", err
	}
	ctx = s.logg.WithSubscriptionID(ctx, sub.ID.String())
	if !created {
		s.logg.Info(ctx, "stripe.webhook.subscription_already_active")
		return OutcomeIgnored, nil
	}

	subID := sub.ID
	companyID := company.ID
	order := &models.Order{
		CompanyID:         &companyID,
		SubscriptionID:    &subID,
		Status:            enums.OrderStatusConfirmed,
		DeliveryDate:      firstDate,
		DeliveryAddress:   meta.DeliveryAddress,
		CustomerEmail:     meta.CustomerEmail,
		CustomerPhone:     optional(meta.CustomerPhone),
		ExternalSessionID: &session.ID,
		LineItems:         orderLineItems(meta.Items),
	}
	if err := s.orders.Place(ctx, tx, order, false); err != nil {
		return "", err
	}
	if err := s.notifier.OrderConfirmed(ctx, tx, order); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue order confirmation")
	}
	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "stripe.webhook.subscription_activated")
	return OutcomeProcessed, nil
}

func (s *Service) createOneTimeOrder(ctx context.Context, tx *gorm.DB, session *checkoutSession, meta *checkout.Metadata) (Outcome, error) {
	existing, err := s.orderRepo.WithTx(tx).FindByExternalSession(ctx, session.ID)
	switch {
	case err == nil:
		s.logg.Info(s.logg.WithOrderID(ctx, existing.ID.String()), "stripe.webhook.order_already_recorded")
		return OutcomeIgnored, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order by session")
	}

	deliveryDate, err := calendar.ParseISODate(meta.DeliveryDate)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse delivery date")
	}

	paid := session.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusPaid) ||
		session.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusNoPaymentRequired)
	status := enums.OrderStatusPending
	if paid {
		status = enums.OrderStatusConfirmed
	}
	discount := session.discountCents()
	if discount == 0 {
		discount = meta.DiscountCents
	}
	weekday := meta.PreferredWeekday

	order := &models.Order{
		Status:            status,
		DiscountCents:     discount,
		PreferredWeekday:  &weekday,
		DeliveryDate:      deliveryDate,
		DeliveryAddress:   meta.DeliveryAddress,
		CustomerEmail:     meta.CustomerEmail,
		CustomerPhone:     optional(meta.CustomerPhone),
		ExternalSessionID: &session.ID,
		LineItems:         orderLineItems(meta.Items),
	}
	if meta.PromoCode != "" {
		code := promos.NormalizeCode(meta.PromoCode)
		order.PromoCode = &code
	}
	if meta.CompanyName != "" {
		company, err := s.companies.WithTx(tx).FindOrCreate(ctx, companies.Profile{
			Name:             meta.CompanyName,
			Email:            meta.CustomerEmail,
			Phone:            meta.CustomerPhone,
			Address:          meta.DeliveryAddress,
			StripeCustomerID: string(session.Customer),
		})
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find or create company")
		}
		order.CompanyID = &company.ID
	}

	if err := s.orders.Place(ctx, tx, order, false); err != nil {
		return "", err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	if order.PromoCode != nil {
		result, err := s.promos.Redeem(ctx, tx, promos.RedeemInput{
			Code:           *order.PromoCode,
			CustomerEmail:  order.CustomerEmail,
			OrderID:        order.ID,
			DiscountAmount: decimal.New(order.DiscountCents, -2),
		})
		if err != nil {
			return "", err
		}
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"promo_counted":  result.Counted,
			"promo_recorded": result.Recorded,
		}), "stripe.webhook.promo_redeemed")
	}

	if paid {
		if err := s.notifier.OrderConfirmed(ctx, tx, order); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue order confirmation")
		}
	}
	s.logg.Info(s.logg.WithField(ctx, "status", order.Status), "stripe.webhook.order_created")
	return OutcomeProcessed, nil
}

func (s *Service) invoicePaymentSucceeded(ctx context.Context, event *stripe.Event) (Outcome, error) {
	inv, err := decodeObject[invoice](event)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"invoice_id":     inv.ID,
		"billing_reason": inv.BillingReason,
	})
	if !inv.isRenewal() {
		// The first invoice is covered by checkout completion.
		s.logg.Info(ctx, "stripe.webhook.invoice_acknowledged")
		return OutcomeIgnored, nil
	}
	externalID := inv.subscriptionID()
	if externalID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "renewal invoice without subscription")
	}

	return s.apply(ctx, event, lockTarget{scope: "subscription", id: externalID}, func(tx *gorm.DB) (Outcome, error) {
		sub, err := s.lockSubscription(ctx, tx, externalID)
		if err != nil {
			return "", err
		}
		ctx := s.logg.WithSubscriptionID(ctx, sub.ID.String())

		if existing, err := s.orderRepo.WithTx(tx).FindByExternalInvoice(ctx, inv.ID); err == nil {
			s.logg.Info(s.logg.WithOrderID(ctx, existing.ID.String()), "stripe.webhook.renewal_already_recorded")
			return OutcomeIgnored, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order by invoice")
		}
		if !sub.IsActive {
			s.logg.Warn(ctx, "stripe.webhook.renewal_for_inactive_subscription")
			return OutcomeIgnored, nil
		}

		order := renewalOrder(sub, inv)
		if err := s.orders.Place(ctx, tx, order, true); err != nil {
			return "", err
		}
		if err := s.subscriptions.Advance(ctx, tx, sub); err != nil {
			return "", err
		}
		if err := s.notifier.RenewalOrderCreated(ctx, tx, order, sub); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue renewal notification")
		}
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"order_id":           order.ID.String(),
			"delivery_date":      calendar.FormatISODate(order.DeliveryDate),
			"next_delivery_date": calendar.FormatISODate(sub.NextDeliveryDate),
		}), "stripe.webhook.renewal_order_created")
		return OutcomeProcessed, nil
	})
}

func (s *Service) invoicePaymentFailed(ctx context.Context, event *stripe.Event) (Outcome, error) {
	inv, err := decodeObject[invoice](event)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice")
	}
	ctx = s.logg.WithField(ctx, "invoice_id", inv.ID)
	externalID := inv.subscriptionID()
	if externalID == "" {
		s.logg.Info(ctx, "stripe.webhook.failed_invoice_without_subscription")
		return OutcomeIgnored, nil
	}

	return s.apply(ctx, event, lockTarget{scope: "subscription", id: externalID}, func(tx *gorm.DB) (Outcome, error) {
		sub, err := s.lockSubscription(ctx, tx, externalID)
		if err != nil {
			return "", err
		}
		if err := s.notifier.PaymentFailed(ctx, tx, sub, inv.ID, inv.AmountDue); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue payment failure notice")
		}
		s.logg.Warn(s.logg.WithSubscriptionID(ctx, sub.ID.String()), "stripe.webhook.payment_failed")
		return OutcomeProcessed, nil
	})
}

func (s *Service) subscriptionUpdated(ctx context.Context, event *stripe.Event) (Outcome, error) {
	return s.syncSubscription(ctx, event, func(ctx context.Context, tx *gorm.DB, sub *models.Subscription, state subscriptions.ExternalState) error {
		return s.subscriptions.Mirror(ctx, tx, sub, state)
	})
}

func (s *Service) subscriptionDeleted(ctx context.Context, event *stripe.Event) (Outcome, error) {
	return s.syncSubscription(ctx, event, func(ctx context.Context, tx *gorm.DB, sub *models.Subscription, state subscriptions.ExternalState) error {
		return s.subscriptions.Deactivate(ctx, tx, sub, state)
	})
}

// syncSubscription mirrors a customer.subscription.* event. An unrecorded
// subscription is retryable so the event is applied once its checkout lands.
func (s *Service) syncSubscription(ctx context.Context, event *stripe.Event, fn func(context.Context, *gorm.DB, *models.Subscription, subscriptions.ExternalState) error) (Outcome, error) {
	stripeSub, err := decodeObject[stripe.Subscription](event)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription")
	}
	if stripeSub.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "subscription id missing")
	}
	state := subscriptions.ExternalStateFromStripe(stripeSub)

	return s.apply(ctx, event, lockTarget{scope: "subscription", id: stripeSub.ID}, func(tx *gorm.DB) (Outcome, error) {
		sub, err := s.lockSubscription(ctx, tx, stripeSub.ID)
		if err != nil {
			return "", err
		}
		if err := fn(ctx, tx, sub, state); err != nil {
			return "", err
		}
		logCtx := s.logg.WithSubscriptionID(ctx, sub.ID.String())
		s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
			"is_active":            sub.IsActive,
			"cancel_at_period_end": sub.CancelAtPeriodEnd,
			"external_status":      state.Status,
		}), "stripe.webhook.subscription_synced")
		return OutcomeProcessed, nil
	})
}

// lockSubscription loads the subscription a billing event refers to. A miss
// is retryable: the checkout event that creates it may still be in flight.
func (s *Service) lockSubscription(ctx context.Context, tx *gorm.DB, externalID string) (*models.Subscription, error) {
	sub, err := s.subRepo.WithTx(tx).FindByExternalIDForUpdate(ctx, externalID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Newf(pkgerrors.CodeDependency, "subscription %s not recorded yet", externalID)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock subscription")
	}
	return sub, nil
}

func renewalOrder(sub *models.Subscription, inv *invoice) *models.Order {
	subID := sub.ID
	companyID := sub.CompanyID
	invoiceID := inv.ID
	email := sub.CustomerEmail
	if email == "" {
		email = inv.CustomerEmail
	}
	order := &models.Order{
		CompanyID:         &companyID,
		SubscriptionID:    &subID,
		Status:            enums.OrderStatusConfirmed,
		DeliveryDate:      sub.NextDeliveryDate,
		DeliveryAddress:   sub.DeliveryAddress,
		CustomerEmail:     email,
		ExternalInvoiceID: &invoiceID,
	}
	for _, item := range sub.Items {
		order.LineItems = append(order.LineItems, models.OrderLineItem{
			ProductType:    item.ProductType,
			ProductID:      item.ProductID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	orders.ApplyTotals(order)
	// Align the order with what was actually charged. Zero means a coupon or
	// the credit balance covered the whole invoice.
	paid := max(inv.AmountPaid, 0)
	if paid < order.SubtotalCents {
		order.DiscountCents = order.SubtotalCents - paid
	}
	return order
}

func subscriptionItems(items []checkout.Item) []models.SubscriptionItem {
	out := make([]models.SubscriptionItem, 0, len(items))
	for _, item := range items {
		out = append(out, models.SubscriptionItem{
			ProductType:    item.ProductType,
			ProductID:      item.ProductID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	return out
}

func orderLineItems(items []checkout.Item) []models.OrderLineItem {
	out := make([]models.OrderLineItem, 0, len(items))
	for _, item := range items {
		line := models.OrderLineItem{
			ProductType:    item.ProductType,
			ProductID:      item.ProductID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		}
		if len(item.Composition) > 0 {
			if raw, err := json.Marshal(item.Composition); err == nil {
				line.Composition = raw
			}
		}
		out = append(out, line)
	}
	return out
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
