package checkout

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/coupon"

	pkgstripe "github.com/corbeille/corbeille-backend/pkg/stripe"
)

// Gateway is the subset of Stripe calls checkout makes.
type Gateway interface {
	CreateSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	CreateCoupon(ctx context.Context, params *stripe.CouponParams) (*stripe.Coupon, error)
	Currency() string
}

type stripeGateway struct {
	currency string
}

// NewStripeGateway returns nil when Stripe is not configured.
func NewStripeGateway(client *pkgstripe.Client) Gateway {
	if client == nil {
		return nil
	}
	return &stripeGateway{currency: client.Currency()}
}

func (g *stripeGateway) CreateSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	params.Context = ctx
	return session.New(params)
}

func (g *stripeGateway) CreateCoupon(ctx context.Context, params *stripe.CouponParams) (*stripe.Coupon, error) {
	params.Context = ctx
	return coupon.New(params)
}

func (g *stripeGateway) Currency() string {
	return g.currency
}
