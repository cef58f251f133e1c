package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/corbeille/corbeille-backend/internal/companies"
	"github.com/corbeille/corbeille-backend/internal/orders"
	"github.com/corbeille/corbeille-backend/internal/promos"
	"github.com/corbeille/corbeille-backend/internal/subscriptions"
	"github.com/corbeille/corbeille-backend/pkg/checkout"
	"github.com/corbeille/corbeille-backend/pkg/db"
	"github.com/corbeille/corbeille-backend/pkg/db/dbtest"
	"github.com/corbeille/corbeille-backend/pkg/db/models"
	"github.com/corbeille/corbeille-backend/pkg/enums"
	pkgerrors "github.com/corbeille/corbeille-backend/pkg/errors"
	"github.com/corbeille/corbeille-backend/pkg/logger"
	"github.com/corbeille/corbeille-backend/pkg/outbox"
	"github.com/corbeille/corbeille-backend/pkg/redis"
)

var testNow = time.Date(2026, time.February, 2, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu        sync.Mutex
	confirmed []uuid.UUID
	renewals  []uuid.UUID
	failed    []string
	cancelled []uuid.UUID
}

func (n *recordingNotifier) OrderConfirmed(_ context.Context, _ *gorm.DB, order *models.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, order.ID)
	return nil
}

func (n *recordingNotifier) RenewalOrderCreated(_ context.Context, _ *gorm.DB, order *models.Order, _ *models.Subscription) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.renewals = append(n.renewals, order.ID)
	return nil
}

func (n *recordingNotifier) PaymentFailed(_ context.Context, _ *gorm.DB, _ *models.Subscription, invoiceID string, _ int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, invoiceID)
	return nil
}

func (n *recordingNotifier) SubscriptionCancelled(_ context.Context, _ *gorm.DB, sub *models.Subscription) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, sub.ID)
	return nil
}

func (n *recordingNotifier) OrderStatusChanged(context.Context, *gorm.DB, *models.Order, enums.OrderStatus) error {
	return nil
}

type heldLocker struct{}

func (heldLocker) Acquire(context.Context, string, string) (func(context.Context) error, error) {
	return nil, redis.ErrLockHeld
}

type harness struct {
	conn      *gorm.DB
	svc       *Service
	notifier  *recordingNotifier
	orderRepo orders.Repository
	subRepo   subscriptions.Repository
	promoRepo promos.Repository
	processed ProcessedEvents
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.Wrap(conn)
	logg := logger.Nop()
	clock := func() time.Time { return testNow }
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)

	h := &harness{
		conn:      conn,
		notifier:  &recordingNotifier{},
		orderRepo: orders.NewRepository(conn),
		subRepo:   subscriptions.NewRepository(conn),
		promoRepo: promos.NewRepository(conn),
		processed: NewProcessedEvents(conn),
	}
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repository:        h.orderRepo,
		TransactionRunner: client,
		Outbox:            emitter,
		Notifier:          h.notifier,
		Logger:            logg,
		Clock:             clock,
	})
	require.NoError(t, err)
	subSvc, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repository:        h.subRepo,
		Notifier:          h.notifier,
		Outbox:            emitter,
		TransactionRunner: client,
		Logger:            logg,
		Clock:             clock,
	})
	require.NoError(t, err)
	promoSvc, err := promos.NewService(promos.ServiceParams{Repository: h.promoRepo, Logger: logg, Clock: clock})
	require.NoError(t, err)

	h.svc, err = NewService(ServiceParams{
		TransactionRunner: client,
		Processed:         h.processed,
		Companies:         companies.NewRepository(conn),
		Subscriptions:     subSvc,
		SubscriptionRepo:  h.subRepo,
		Orders:            orderSvc,
		OrderRepo:         h.orderRepo,
		Promos:            promoSvc,
		Notifier:          h.notifier,
		Plans:             subscriptions.NewPricePlans(map[string]string{"weekly": "price_week"}),
		Logger:            logg,
	})
	require.NoError(t, err)
	return h
}

func event(t *testing.T, id string, eventType stripe.EventType, object any) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	return &stripe.Event{ID: id, Type: eventType, Data: &stripe.EventData{Raw: raw}}
}

func basketItems() []checkout.Item {
	return []checkout.Item{
		{ProductType: enums.ProductBasket, ProductID: "basket-m", Name: "Corbeille M", Quantity: 2, UnitPriceCents: 3990},
	}
}

func subscriptionCheckout(t *testing.T, eventID string) *stripe.Event {
	t.Helper()
	meta, err := checkout.Metadata{
		Mode:             enums.CheckoutModeSubscription,
		CompanyName:      "Atelier Nord",
		CustomerEmail:    "office@atelier.example",
		DeliveryAddress:  "3 rue du Bac, Paris",
		PreferredWeekday: enums.DeliveryMonday,
		DeliveryDate:     "2026-02-09",
		Frequency:        enums.FrequencyWeekly,
		Items:            basketItems(),
	}.Encode()
	require.NoError(t, err)
	return event(t, eventID, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":             "cs_sub_1",
		"mode":           "subscription",
		"payment_status": "paid",
		"customer":       "cus_1",
		"subscription":   "sub_1",
		"metadata":       meta,
	})
}

func renewalInvoice(t *testing.T, eventID, invoiceID string, paid int64) *stripe.Event {
	t.Helper()
	return event(t, eventID, stripe.EventTypeInvoicePaymentSucceeded, map[string]any{
		"id":             invoiceID,
		"billing_reason": "subscription_cycle",
		"amount_paid":    paid,
		"customer":       "cus_1",
		"parent": map[string]any{
			"subscription_details": map[string]any{"subscription": "sub_1"},
		},
	})
}

func (h *harness) activeSubscription(t *testing.T) *models.Subscription {
	t.Helper()
	sub, err := h.subRepo.FindByExternalIDForUpdate(context.Background(), "sub_1")
	require.NoError(t, err)
	return sub
}

func (h *harness) ordersOf(t *testing.T, sub *models.Subscription) []models.Order {
	t.Helper()
	list, err := h.orderRepo.ListBySubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	return list
}

func TestSubscriptionCheckoutActivatesAndPlacesFirstOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	outcome, err := h.svc.HandleEvent(ctx, subscriptionCheckout(t, "evt_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	sub := h.activeSubscription(t)
	assert.True(t, sub.IsActive)
	assert.Equal(t, "2026-02-16", sub.NextDeliveryDate.Format("2006-01-02"))
	require.NotNil(t, sub.PriceID)
	assert.Equal(t, "price_week", *sub.PriceID)
	require.Len(t, sub.Items, 1)

	list := h.ordersOf(t, sub)
	require.Len(t, list, 1)
	assert.Equal(t, enums.OrderStatusConfirmed, list[0].Status)
	assert.Equal(t, int64(7980), list[0].TotalCents)
	assert.Equal(t, "2026-02-09", list[0].DeliveryDate.Format("2006-01-02"))
	assert.Len(t, h.notifier.confirmed, 1)

	outcome, err = h.svc.HandleEvent(ctx, subscriptionCheckout(t, "evt_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	outcome, err = h.svc.HandleEvent(ctx, subscriptionCheckout(t, "evt_1b"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Len(t, h.ordersOf(t, sub), 1)
	assert.Len(t, h.notifier.confirmed, 1)
}

func TestRenewalReplayCreatesOneOrderAndOneAdvance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.HandleEvent(ctx, subscriptionCheckout(t, "evt_1"))
	require.NoError(t, err)

	renewal := renewalInvoice(t, "evt_2", "in_2", 7980)
	outcome, err := h.svc.HandleEvent(ctx, renewal)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	outcome, err = h.svc.HandleEvent(ctx, renewal)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	// Same invoice under a new event id.
	outcome, err = h.svc.HandleEvent(ctx, renewalInvoice(t, "evt_2b", "in_2", 7980))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	sub := h.activeSubscription(t)
	assert.Equal(t, "2026-02-23", sub.NextDeliveryDate.Format("2006-01-02"))
	list := h.ordersOf(t, sub)
	require.Len(t, list, 2)
	assert.Len(t, h.notifier.renewals, 1)

	renewed, err := h.orderRepo.FindByExternalInvoice(ctx, "in_2")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-16", renewed.DeliveryDate.Format("2006-01-02"))
	assert.Equal(t, int64(7980), renewed.TotalCents)
	require.Len(t, renewed.LineItems, 1)
}

func TestRenewalDiscountFollowsAmountPaid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.HandleEvent(ctx, subscriptionCheckout(t, "evt_1"))
	require.NoError(t, err)

	_, err = h.svc.HandleEvent(ctx, renewalInvoice(t, "evt_2", "in_2", 7000))
	require.NoError(t, err)

	renewed, err := h.orderRepo.FindByExternalInvoice(ctx, "in_2")
	require.NoError(t, err)
	assert.Equal(t, int64(980), renewed.DiscountCents)
	assert.Equal(t, int64(7000), renewed.TotalCents)
}

func TestRenewalFullyCoveredByCreditIsFree(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.HandleEvent(ctx, subscriptionCheckout(t, "evt_1"))
	require.NoError(t, err)

	_, err = h.svc.HandleEvent(ctx, renewalInvoice(t, "evt_2", "in_2", 0))
	require.NoError(t, err)

	renewed, err := h.orderRepo.FindByExternalInvoice(ctx, "in_2")
	require.NoError(t, err)
	assert.Equal(t, int64(7980), renewed.SubtotalCents)
	assert.Equal(t, int64(7980), renewed.DiscountCents)
	assert.Zero(t, renewed.TotalCents)
}

func TestConcurrentRenewalDeliveriesCreateOneOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.HandleEvent(ctx, subscriptionCheckout(t, "evt_1"))
	require.NoError(t, err)

	const deliveries = 8
	renewals := make([]*stripe.Event, deliveries)
	for i := range renewals {
		renewals[i] = renewalInvoice(t, fmt.Sprintf("evt_r%d", i%2), "in_2", 7980)
	}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes []Outcome
		errs     []error
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(renewal *stripe.Event) {
			defer wg.Done()
			var (
				outcome Outcome
				err     error
			)
			// Retryable answers are redelivered, as the processor would.
			for attempt := 0; attempt < 20; attempt++ {
				outcome, err = h.svc.HandleEvent(ctx, renewal)
				if err == nil || !pkgerrors.IsRetryable(err) {
					break
				}
				time.Sleep(10 * time.Millisecond)
			}
			mu.Lock()
			defer mu.Unlock()
			outcomes = append(outcomes, outcome)
			errs = append(errs, err)
		}(renewals[i])
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	processed := 0
	for _, outcome := range outcomes {
		if outcome == OutcomeProcessed {
			processed++
			continue
		}
		assert.Contains(t, []Outcome{OutcomeDuplicate, OutcomeIgnored}, outcome)
	}
	assert.Equal(t, 1, processed)

	sub := h.activeSubscription(t)
	assert.Equal(t, "2026-02-23", sub.NextDeliveryDate.Format("2006-01-02"))
	assert.Len(t, h.ordersOf(t, sub), 2)
	assert.Len(t, h.notifier.renewals, 1)
}

func TestRenewalBeforeCheckoutIsRetryable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.HandleEvent(ctx, renewalInvoice(t, "evt_2", "in_2", 7980))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))
	assert.True(t, pkgerrors.IsRetryable(err))

	seen, err := h.processed.Exists(ctx, "evt_2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestFirstInvoiceIsAcknowledged(t *testing.T) {
	h := newHarness(t)
	outcome, err := h.svc.HandleEvent(context.Background(), event(t, "evt_3", stripe.EventTypeInvoicePaymentSucceeded, map[string]any{
		"id":             "in_1",
		"billing_reason": "subscription_create",
		"subscription":   "sub_1",
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
}

func TestInvoicePaymentFailedNotifies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.HandleEvent(ctx, subscriptionCheckout(t, "evt_1"))
	require.NoError(t, err)

	outcome, err := h.svc.HandleEvent(ctx, event(t, "evt_4", stripe.EventTypeInvoicePaymentFailed, map[string]any{
		"id":           "in_9",
		"amount_due":   7980,
		"subscription": "sub_1",
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
	assert.Equal(t, []string{"in_9"}, h.notifier.failed)
	assert.True(t, h.activeSubscription(t).IsActive)
}

func stripeSubscription(status string, cancelAtPeriodEnd bool) map[string]any {
	return map[string]any{
		"id":                   "sub_1",
		"object":               "subscription",
		"status":               status,
		"customer":             "cus_1",
		"cancel_at_period_end": cancelAtPeriodEnd,
		"items": map[string]any{
			"object": "list",
			"data": []map[string]any{{
				"id":                 "si_1",
				"current_period_end": time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC).Unix(),
				"price":              map[string]any{"id": "price_week"},
			}},
		},
	}
}

func TestSubscriptionUpdatedMirrorsPortalCancellation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.HandleEvent(ctx, subscriptionCheckout(t, "evt_1"))
	require.NoError(t, err)

	outcome, err := h.svc.HandleEvent(ctx, event(t, "evt_5", stripe.EventTypeCustomerSubscriptionUpdated, stripeSubscription("active", true)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	sub := h.activeSubscription(t)
	assert.True(t, sub.IsActive)
	assert.True(t, sub.CancelAtPeriodEnd)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Len(t, h.notifier.cancelled, 1)

	outcome, err = h.svc.HandleEvent(ctx, event(t, "evt_6", stripe.EventTypeCustomerSubscriptionDeleted, stripeSubscription("canceled", true)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	sub = h.activeSubscription(t)
	assert.False(t, sub.IsActive)
	require.NotNil(t, sub.CanceledAt)
	assert.Len(t, h.notifier.cancelled, 1)
}

func TestSubscriptionDeletedWithoutPriorNoticeNotifies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.HandleEvent(ctx, subscriptionCheckout(t, "evt_1"))
	require.NoError(t, err)

	_, err = h.svc.HandleEvent(ctx, event(t, "evt_6", stripe.EventTypeCustomerSubscriptionDeleted, stripeSubscription("canceled", false)))
	require.NoError(t, err)
	assert.False(t, h.activeSubscription(t).IsActive)
	assert.Len(t, h.notifier.cancelled, 1)
}

func TestSubscriptionEventBeforeCheckoutIsAppliedOnRedelivery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	deleted := event(t, "evt_7", stripe.EventTypeCustomerSubscriptionDeleted, stripeSubscription("canceled", false))

	_, err := h.svc.HandleEvent(ctx, deleted)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetryable(err))
	seen, err := h.processed.Exists(ctx, "evt_7")
	require.NoError(t, err)
	assert.False(t, seen)

	_, err = h.svc.HandleEvent(ctx, subscriptionCheckout(t, "evt_1"))
	require.NoError(t, err)
	require.True(t, h.activeSubscription(t).IsActive)

	outcome, err := h.svc.HandleEvent(ctx, deleted)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
	assert.False(t, h.activeSubscription(t).IsActive)
	assert.Len(t, h.notifier.cancelled, 1)
}

func TestSubscriptionUpdateBeforeCheckoutIsRetryable(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.HandleEvent(context.Background(), event(t, "evt_8", stripe.EventTypeCustomerSubscriptionUpdated, stripeSubscription("active", true)))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))
}

func paymentCheckout(t *testing.T, eventID, paymentStatus string, promo string) *stripe.Event {
	t.Helper()
	meta, err := checkout.Metadata{
		Mode:             enums.CheckoutModePayment,
		CustomerEmail:    "Jane@Example.com",
		CustomerPhone:    "+33600000000",
		DeliveryAddress:  "8 quai de Jemmapes, Paris",
		PreferredWeekday: enums.DeliveryTuesday,
		DeliveryDate:     "2026-02-10",
		PromoCode:        promo,
		Items:            basketItems(),
	}.Encode()
	require.NoError(t, err)
	object := map[string]any{
		"id":             "cs_pay_1",
		"mode":           "payment",
		"payment_status": paymentStatus,
		"metadata":       meta,
	}
	if promo != "" {
		object["total_details"] = map[string]any{"amount_discount": 798}
	}
	return event(t, eventID, stripe.EventTypeCheckoutSessionCompleted, object)
}

func TestPaymentCheckoutCreatesOrderAndRedeemsPromo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	promo := &models.PromoCode{
		Code:          "BIENVENUE",
		DiscountType:  enums.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(10),
		IsActive:      true,
	}
	require.NoError(t, h.promoRepo.Create(ctx, promo))

	outcome, err := h.svc.HandleEvent(ctx, paymentCheckout(t, "evt_8", "paid", "bienvenue"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	order, err := h.orderRepo.FindByExternalSession(ctx, "cs_pay_1")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, order.Status)
	assert.Equal(t, "jane@example.com", order.CustomerEmail)
	assert.Equal(t, int64(798), order.DiscountCents)
	assert.Equal(t, int64(7182), order.TotalCents)
	require.NotNil(t, order.PromoCode)
	assert.Equal(t, "BIENVENUE", *order.PromoCode)
	assert.Nil(t, order.CompanyID)
	assert.Len(t, h.notifier.confirmed, 1)

	redeemed, err := h.promoRepo.HasRedemption(ctx, promo.ID, "jane@example.com")
	require.NoError(t, err)
	assert.True(t, redeemed)
	stored, err := h.promoRepo.FindByCode(ctx, "BIENVENUE")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentUses)

	outcome, err = h.svc.HandleEvent(ctx, paymentCheckout(t, "evt_8b", "paid", "bienvenue"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	stored, err = h.promoRepo.FindByCode(ctx, "BIENVENUE")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentUses)
}

func TestUnpaidCheckoutStaysPendingWithoutNotice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.HandleEvent(ctx, paymentCheckout(t, "evt_9", "unpaid", ""))
	require.NoError(t, err)

	order, err := h.orderRepo.FindByExternalSession(ctx, "cs_pay_1")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Empty(t, h.notifier.confirmed)
}

func TestCheckoutWithoutMetadataIsIgnored(t *testing.T) {
	h := newHarness(t)
	outcome, err := h.svc.HandleEvent(context.Background(), event(t, "evt_10", stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":   "cs_foreign",
		"mode": "payment",
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
}

func TestUnhandledAndLogOnlyEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	outcome, err := h.svc.HandleEvent(ctx, event(t, "evt_11", stripe.EventType("customer.created"), map[string]any{"id": "cus_1"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	outcome, err = h.svc.HandleEvent(ctx, event(t, "evt_12", stripe.EventTypePaymentIntentSucceeded, map[string]any{"id": "pi_1"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	_, err = h.svc.HandleEvent(ctx, &stripe.Event{})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestHeldLockIsRetryable(t *testing.T) {
	h := newHarness(t)
	h.svc.locker = heldLocker{}

	_, err := h.svc.HandleEvent(context.Background(), subscriptionCheckout(t, "evt_1"))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))

	seen, err := h.processed.Exists(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}
