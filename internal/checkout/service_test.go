package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/corbeille/corbeille-backend/internal/baskets"
	"github.com/corbeille/corbeille-backend/internal/delivery"
	"github.com/corbeille/corbeille-backend/internal/promos"
	"github.com/corbeille/corbeille-backend/internal/subscriptions"
	pkgcheckout "github.com/corbeille/corbeille-backend/pkg/checkout"
	"github.com/corbeille/corbeille-backend/pkg/db/models"
	"github.com/corbeille/corbeille-backend/pkg/enums"
	pkgerrors "github.com/corbeille/corbeille-backend/pkg/errors"
	"github.com/corbeille/corbeille-backend/pkg/logger"
)

type fakeGateway struct {
	sessions []*stripe.CheckoutSessionParams
	coupons  []*stripe.CouponParams
	err      error
}

func (f *fakeGateway) CreateSession(_ context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sessions = append(f.sessions, params)
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

func (f *fakeGateway) CreateCoupon(_ context.Context, params *stripe.CouponParams) (*stripe.Coupon, error) {
	f.coupons = append(f.coupons, params)
	return &stripe.Coupon{ID: "coupon_1"}, nil
}

func (f *fakeGateway) Currency() string { return "eur" }

type fakeQuoter struct {
	quote baskets.Quote
	lines []baskets.Line
}

func (f *fakeQuoter) Quote(_ context.Context, _ uuid.UUID, lines []baskets.Line) (*baskets.Quote, *models.BasketSize, error) {
	f.lines = lines
	q := f.quote
	return &q, &models.BasketSize{}, nil
}

type fakePromos struct {
	decision promos.Decision
	input    promos.ValidateInput
}

func (f *fakePromos) Check(_ context.Context, input promos.ValidateInput) (promos.Decision, error) {
	f.input = input
	return f.decision, nil
}

type fixture struct {
	gateway *fakeGateway
	quoter  *fakeQuoter
	promos  *fakePromos
	svc     Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		gateway: &fakeGateway{},
		quoter:  &fakeQuoter{quote: baskets.Quote{CanAddToCart: true, ComputedPrice: decimal.RequireFromString("31.40")}},
		promos:  &fakePromos{},
	}
	clock := func() time.Time { return time.Date(2026, time.February, 2, 10, 0, 0, 0, time.UTC) }
	svc, err := NewService(ServiceParams{
		Gateway:    f.gateway,
		Scheduler:  delivery.NewScheduler(time.UTC, clock),
		Baskets:    f.quoter,
		Promos:     f.promos,
		Plans:      subscriptions.NewPricePlans(map[string]string{"weekly": "price_week"}),
		SuccessURL: "https://corbeille.test/ok",
		CancelURL:  "https://corbeille.test/panier",
		Logger:     logger.Nop(),
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func oneTimeInput() Input {
	return Input{
		Mode:             enums.CheckoutModePayment,
		CustomerEmail:    " Jane@Example.com ",
		DeliveryAddress:  "8 quai de Jemmapes, Paris",
		PreferredWeekday: enums.DeliveryMonday,
		DeliveryDate:     "2026-02-09",
		Items: []pkgcheckout.Item{
			{ProductType: enums.ProductBasket, ProductID: "basket-m", Name: "Corbeille M", Quantity: 2, UnitPriceCents: 3990},
		},
	}
}

func decodedMetadata(t *testing.T, params *stripe.CheckoutSessionParams) *pkgcheckout.Metadata {
	t.Helper()
	meta, err := pkgcheckout.DecodeMetadata(params.Metadata)
	require.NoError(t, err)
	return meta
}

func TestStartOneTimeCheckout(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Start(context.Background(), oneTimeInput())
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", result.SessionID)
	assert.Equal(t, "https://checkout.stripe.test/cs_test_1", result.URL)

	require.Len(t, f.gateway.sessions, 1)
	params := f.gateway.sessions[0]
	assert.Equal(t, "payment", *params.Mode)
	assert.Equal(t, "jane@example.com", *params.CustomerEmail)
	require.Len(t, params.LineItems, 1)
	assert.Equal(t, int64(3990), *params.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, int64(2), *params.LineItems[0].Quantity)
	assert.Empty(t, f.gateway.coupons)

	meta := decodedMetadata(t, params)
	assert.Equal(t, "2026-02-09", meta.DeliveryDate)
	assert.Equal(t, enums.DeliveryMonday, meta.PreferredWeekday)
	require.Len(t, meta.Items, 1)
}

func TestStartRejectsStaleDeliveryDate(t *testing.T) {
	f := newFixture(t)
	input := oneTimeInput()
	input.DeliveryDate = "2026-02-02"

	_, err := f.svc.Start(context.Background(), input)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	assert.Empty(t, f.gateway.sessions)
}

func TestStartRejectsInvalidCart(t *testing.T) {
	f := newFixture(t)
	input := oneTimeInput()
	input.Items[0].Quantity = 0

	_, err := f.svc.Start(context.Background(), input)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestStartAppliesPromoAsCoupon(t *testing.T) {
	f := newFixture(t)
	f.promos.decision = promos.Decision{Valid: true, Code: "BIENVENUE", DiscountAmount: decimal.RequireFromString("7.98")}
	input := oneTimeInput()
	input.PromoCode = " bienvenue "

	_, err := f.svc.Start(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, "BIENVENUE", f.promos.input.Code)
	assert.Equal(t, "79.8", f.promos.input.OrderTotal.String())
	require.Len(t, f.gateway.coupons, 1)
	assert.Equal(t, int64(798), *f.gateway.coupons[0].AmountOff)

	params := f.gateway.sessions[0]
	require.Len(t, params.Discounts, 1)
	assert.Equal(t, "coupon_1", *params.Discounts[0].Coupon)
	meta := decodedMetadata(t, params)
	assert.Equal(t, "BIENVENUE", meta.PromoCode)
	assert.Equal(t, int64(798), meta.DiscountCents)
}

func TestStartRejectsRefusedPromo(t *testing.T) {
	f := newFixture(t)
	f.promos.decision = promos.Decision{Valid: false, Reason: promos.ReasonExpired}
	input := oneTimeInput()
	input.PromoCode = "OLD"

	_, err := f.svc.Start(context.Background(), input)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	assert.Contains(t, err.Error(), promos.ReasonExpired)
	assert.Empty(t, f.gateway.sessions)
}

func TestStartSubscriptionUsesPlanPrice(t *testing.T) {
	f := newFixture(t)
	input := oneTimeInput()
	input.Mode = enums.CheckoutModeSubscription
	input.Frequency = enums.FrequencyWeekly
	input.CompanyName = "Atelier Nord"
	input.StripeCustomerID = "cus_1"

	_, err := f.svc.Start(context.Background(), input)
	require.NoError(t, err)

	params := f.gateway.sessions[0]
	assert.Equal(t, "subscription", *params.Mode)
	assert.Equal(t, "cus_1", *params.Customer)
	assert.Nil(t, params.CustomerEmail)
	require.Len(t, params.LineItems, 1)
	assert.Equal(t, "price_week", *params.LineItems[0].Price)
	meta := decodedMetadata(t, params)
	assert.Equal(t, enums.FrequencyWeekly, meta.Frequency)
	assert.Equal(t, "Atelier Nord", meta.CompanyName)
}

func TestStartSubscriptionErrors(t *testing.T) {
	f := newFixture(t)
	input := oneTimeInput()
	input.Mode = enums.CheckoutModeSubscription
	input.Frequency = enums.FrequencyMonthly

	_, err := f.svc.Start(context.Background(), input)
	assert.Equal(t, pkgerrors.CodeConfiguration, pkgerrors.CodeOf(err))

	input.Frequency = enums.FrequencyWeekly
	input.PromoCode = "BIENVENUE"
	_, err = f.svc.Start(context.Background(), input)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestStartRepricesCustomBasket(t *testing.T) {
	f := newFixture(t)
	input := oneTimeInput()
	fruitID := uuid.NewString()
	input.Items = []pkgcheckout.Item{{
		ProductType: enums.ProductCustomBasket,
		ProductID:   uuid.NewString(),
		Name:        "Corbeille sur mesure",
		Quantity:    1,
		Composition: []pkgcheckout.CompositionLine{{FruitID: fruitID, QuantityKg: "2.5"}},
	}}

	_, err := f.svc.Start(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, f.quoter.lines, 1)
	assert.Equal(t, "2.5", f.quoter.lines[0].QuantityKg.String())
	assert.Equal(t, int64(3140), *f.gateway.sessions[0].LineItems[0].PriceData.UnitAmount)
}

func TestStartRejectsOverFilledBasket(t *testing.T) {
	f := newFixture(t)
	f.quoter.quote = baskets.Quote{CanAddToCart: false, Verdict: baskets.VerdictOverFilled}
	input := oneTimeInput()
	input.Items = []pkgcheckout.Item{{
		ProductType: enums.ProductCustomBasket,
		ProductID:   uuid.NewString(),
		Name:        "Corbeille sur mesure",
		Quantity:    1,
		Composition: []pkgcheckout.CompositionLine{{FruitID: uuid.NewString(), QuantityKg: "9"}},
	}}

	_, err := f.svc.Start(context.Background(), input)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	assert.Empty(t, f.gateway.sessions)
}

func TestStartWithoutGatewayIsConfigurationError(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Scheduler: delivery.NewScheduler(time.UTC, nil),
		Baskets:   &fakeQuoter{},
		Promos:    &fakePromos{},
		Logger:    logger.Nop(),
	})
	require.NoError(t, err)

	_, err = svc.Start(context.Background(), oneTimeInput())
	assert.Equal(t, pkgerrors.CodeConfiguration, pkgerrors.CodeOf(err))
}

func TestStartGatewayFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.gateway.err = errors.New("stripe unavailable")

	_, err := f.svc.Start(context.Background(), oneTimeInput())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetryable(err))
}
