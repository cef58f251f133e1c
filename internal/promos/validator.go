// Package promos validates and redeems promotional codes.
package promos

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/corbeille/corbeille-backend/pkg/db/models"
	"github.com/corbeille/corbeille-backend/pkg/enums"
)

// Rejection reasons, checked in this order.
const (
	ReasonInvalidCode     = "invalid code"
	ReasonInactive        = "no longer active"
	ReasonExpired         = "expired"
	ReasonUsageLimit      = "usage limit reached"
	ReasonMinimumNotMet   = "minimum order amount not met"
	ReasonAlreadyRedeemed = "already used by this customer"
)

var hundred = decimal.NewFromInt(100)

// Decision is the outcome of validating a code. Rejections are values, not errors.
type Decision struct {
	Valid          bool
	Reason         string
	Code           string
	DiscountType   enums.DiscountType
	DiscountValue  decimal.Decimal
	DiscountAmount decimal.Decimal
	Description    string
	MinOrderAmount decimal.Decimal
}

// Facts are the per-request inputs the rules need beyond the code itself.
type Facts struct {
	OrderTotal      *decimal.Decimal
	AlreadyRedeemed bool
	Now             time.Time
}

// Evaluate applies the rules in order; the first failure wins. A nil promo is an unknown code.
func Evaluate(promo *models.PromoCode, facts Facts) Decision {
	if promo == nil {
		return Decision{Reason: ReasonInvalidCode}
	}
	base := Decision{
		Code:           promo.Code,
		DiscountType:   promo.DiscountType,
		DiscountValue:  promo.DiscountValue,
		Description:    promo.Description,
		MinOrderAmount: promo.MinOrderAmount,
	}
	reject := func(reason string) Decision {
		base.Reason = reason
		return base
	}

	if !promo.IsActive {
		return reject(ReasonInactive)
	}
	if promo.ExpiresAt != nil && facts.Now.After(*promo.ExpiresAt) {
		return reject(ReasonExpired)
	}
	if promo.MaxUses != nil && promo.CurrentUses >= *promo.MaxUses {
		return reject(ReasonUsageLimit)
	}
	if facts.OrderTotal != nil && promo.MinOrderAmount.IsPositive() && facts.OrderTotal.LessThan(promo.MinOrderAmount) {
		return reject(MinimumNotMetMessage(promo.MinOrderAmount))
	}
	if facts.AlreadyRedeemed {
		return reject(ReasonAlreadyRedeemed)
	}

	base.Valid = true
	base.DiscountAmount = DiscountFor(promo.DiscountType, promo.DiscountValue, facts.OrderTotal)
	return base
}

// MinimumNotMetMessage states the minimum the order must reach.
func MinimumNotMetMessage(minimum decimal.Decimal) string {
	return fmt.Sprintf("%s (minimum %s €)", ReasonMinimumNotMet, minimum.StringFixed(2))
}

// DiscountFor computes the discount rounded to the cent. A percentage code
// yields zero when the order total is unknown.
func DiscountFor(kind enums.DiscountType, value decimal.Decimal, orderTotal *decimal.Decimal) decimal.Decimal {
	switch kind {
	case enums.DiscountPercentage:
		if orderTotal == nil {
			return decimal.Zero
		}
		return orderTotal.Mul(value).Div(hundred).Round(2)
	case enums.DiscountFixed:
		return value.Round(2)
	default:
		return decimal.Zero
	}
}

// NormalizeCode upper-cases and trims a user-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
