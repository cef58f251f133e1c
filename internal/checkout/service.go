package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
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

type scheduler interface {
	Resolve(weekday enums.DeliveryWeekday, isoDate string) (delivery.Option, error)
}

type basketQuoter interface {
	Quote(ctx context.Context, basketSizeID uuid.UUID, lines []baskets.Line) (*baskets.Quote, *models.BasketSize, error)
}

type promoChecker interface {
	Check(ctx context.Context, input promos.ValidateInput) (promos.Decision, error)
}

// Service turns a cart into a hosted payment session.
type Service interface {
	Start(ctx context.Context, input Input) (*Result, error)
}

type ServiceParams struct {
	Gateway    Gateway
	Scheduler  scheduler
	Baskets    basketQuoter
	Promos     promoChecker
	Plans      subscriptions.PricePlans
	SuccessURL string
	CancelURL  string
	Logger     *logger.Logger
}

// Input is a checkout request as received from the storefront.
type Input struct {
	Mode             enums.CheckoutMode
	Items            []pkgcheckout.Item
	CompanyName      string
	CustomerEmail    string
	CustomerPhone    string
	DeliveryAddress  string
	PreferredWeekday enums.DeliveryWeekday
	DeliveryDate     string
	Frequency        enums.Frequency
	PromoCode        string
	StripeCustomerID string
}

type Result struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

type service struct {
	gateway    Gateway
	scheduler  scheduler
	baskets    basketQuoter
	promos     promoChecker
	plans      subscriptions.PricePlans
	successURL string
	cancelURL  string
	logg       *logger.Logger
}

// NewService builds the checkout service. A nil gateway yields a service that
// refuses every request with a configuration error.
func NewService(params ServiceParams) (Service, error) {
	if params.Scheduler == nil {
		return nil, errors.New("delivery scheduler required")
	}
	if params.Baskets == nil {
		return nil, errors.New("basket pricing required")
	}
	if params.Promos == nil {
		return nil, errors.New("promo checker required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	return &service{
		gateway:    params.Gateway,
		scheduler:  params.Scheduler,
		baskets:    params.Baskets,
		promos:     params.Promos,
		plans:      params.Plans,
		successURL: params.SuccessURL,
		cancelURL:  params.CancelURL,
		logg:       params.Logger,
	}, nil
}

func (s *service) Start(ctx context.Context, input Input) (*Result, error) {
	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "payments are not configured")
	}
	if !input.Mode.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid checkout mode %q", input.Mode)
	}
	email := strings.ToLower(strings.TrimSpace(input.CustomerEmail))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email required")
	}
	if strings.TrimSpace(input.DeliveryAddress) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery address required")
	}
	if err := pkgcheckout.ValidateItems(input.Items); err != nil {
		return nil, err
	}
	slot, err := s.scheduler.Resolve(input.PreferredWeekday, input.DeliveryDate)
	if err != nil {
		return nil, err
	}

	items, err := s.repriceCustomBaskets(ctx, input.Items)
	if err != nil {
		return nil, err
	}

	meta := pkgcheckout.Metadata{
		Mode:             input.Mode,
		CompanyName:      strings.TrimSpace(input.CompanyName),
		CustomerEmail:    email,
		CustomerPhone:    strings.TrimSpace(input.CustomerPhone),
		DeliveryAddress:  strings.TrimSpace(input.DeliveryAddress),
		PreferredWeekday: slot.Weekday,
		DeliveryDate:     slot.ISODate,
		Items:            items,
	}

	params := &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(s.successURL),
		CancelURL:  stripe.String(s.cancelURL),
	}
	if input.StripeCustomerID != "" {
		params.Customer = stripe.String(input.StripeCustomerID)
	} else {
		params.CustomerEmail = stripe.String(email)
	}

	switch input.Mode {
	case enums.CheckoutModeSubscription:
		if err := s.subscriptionSession(params, &meta, input); err != nil {
			return nil, err
		}
	default:
		if err := s.paymentSession(ctx, params, &meta, input, email); err != nil {
			return nil, err
		}
	}

	encoded, err := meta.Encode()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode checkout metadata")
	}
	for key, value := range encoded {
		params.AddMetadata(key, value)
	}

	sess, err := s.gateway.CreateSession(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"checkout_session_id": sess.ID,
		"mode":                string(input.Mode),
		"delivery_date":       slot.ISODate,
	}), "checkout.session_created")
	return &Result{URL: sess.URL, SessionID: sess.ID}, nil
}

// subscriptionSession bills the configured plan; the basket itself travels
// in metadata and is delivered on every renewal.
func (s *service) subscriptionSession(params *stripe.CheckoutSessionParams, meta *pkgcheckout.Metadata, input Input) error {
	if !input.Frequency.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid frequency %q", input.Frequency)
	}
	if strings.TrimSpace(input.PromoCode) != "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "promo codes apply to one-time orders only")
	}
	priceID, err := s.plans.PriceIDForFrequency(input.Frequency)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "resolve subscription plan")
	}
	meta.Frequency = input.Frequency
	params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
	params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
		Price:    stripe.String(priceID),
		Quantity: stripe.Int64(1),
	}}
	return nil
}

func (s *service) paymentSession(ctx context.Context, params *stripe.CheckoutSessionParams, meta *pkgcheckout.Metadata, input Input, email string) error {
	currency := s.gateway.Currency()
	params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
	var subtotal int64
	for _, item := range meta.Items {
		subtotal += item.UnitPriceCents * int64(item.Quantity)
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(item.UnitPriceCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
			Quantity: stripe.Int64(int64(item.Quantity)),
		})
	}

	code := promos.NormalizeCode(input.PromoCode)
	if code == "" {
		return nil
	}
	total := decimal.New(subtotal, -2)
	decision, err := s.promos.Check(ctx, promos.ValidateInput{
		Code:          code,
		OrderTotal:    &total,
		CustomerEmail: email,
	})
	if err != nil {
		return err
	}
	if !decision.Valid {
		return pkgerrors.New(pkgerrors.CodeValidation, decision.Reason).WithDetails(map[string]any{"code": code})
	}
	discount := baskets.PriceCents(decision.DiscountAmount)
	if discount <= 0 {
		meta.PromoCode = code
		return nil
	}
	if discount > subtotal {
		discount = subtotal
	}

	// One-off coupon so the hosted page shows the same discount.
	c, err := s.gateway.CreateCoupon(ctx, &stripe.CouponParams{
		AmountOff:      stripe.Int64(discount),
		Currency:       stripe.String(currency),
		Duration:       stripe.String(string(stripe.CouponDurationOnce)),
		MaxRedemptions: stripe.Int64(1),
		Name:           stripe.String(code),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create promo coupon")
	}
	params.Discounts = []*stripe.CheckoutSessionDiscountParams{{Coupon: stripe.String(c.ID)}}
	meta.PromoCode = code
	meta.DiscountCents = discount
	return nil
}

// repriceCustomBaskets replaces client prices of custom baskets with the
// server quote and refuses compositions that cannot be sold.
func (s *service) repriceCustomBaskets(ctx context.Context, items []pkgcheckout.Item) ([]pkgcheckout.Item, error) {
	out := make([]pkgcheckout.Item, len(items))
	copy(out, items)
	for i, item := range out {
		if item.ProductType != enums.ProductCustomBasket {
			continue
		}
		sizeID, err := uuid.Parse(item.ProductID)
		if err != nil {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid basket size %q", item.ProductID)
		}
		lines := make([]baskets.Line, 0, len(item.Composition))
		for _, c := range item.Composition {
			kg, err := decimal.NewFromString(c.QuantityKg)
			if err != nil {
				return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid quantity %q for fruit %s", c.QuantityKg, c.FruitID)
			}
			lines = append(lines, baskets.Line{FruitID: c.FruitID, QuantityKg: kg})
		}
		quote, _, err := s.baskets.Quote(ctx, sizeID, lines)
		if err != nil {
			return nil, err
		}
		if !quote.CanAddToCart {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("custom basket %d cannot be ordered", i+1)).WithDetails(map[string]any{
				"verdict":       quote.Verdict,
				"totalWeightKg": quote.TotalWeightKg.String(),
				"budgetKg":      quote.BudgetKg.String(),
			})
		}
		out[i].UnitPriceCents = baskets.PriceCents(quote.ComputedPrice)
	}
	return out, nil
}
