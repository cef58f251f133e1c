package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corbeille/corbeille-backend/api/responses"
	"github.com/corbeille/corbeille-backend/api/validators"
	"github.com/corbeille/corbeille-backend/internal/baskets"
	"github.com/corbeille/corbeille-backend/internal/delivery"
	"github.com/corbeille/corbeille-backend/internal/promos"
	"github.com/corbeille/corbeille-backend/pkg/db/models"
	pkgerrors "github.com/corbeille/corbeille-backend/pkg/errors"
	"github.com/corbeille/corbeille-backend/pkg/logger"
)

type promoValidator interface {
	Validate(ctx context.Context, input promos.ValidateInput) (*promos.Decision, error)
}

type promoValidateRequest struct {
	Code          string           `json:"code"`
	OrderTotal    *decimal.Decimal `json:"orderTotal,omitempty"`
	CustomerEmail string           `json:"customerEmail,omitempty" validate:"omitempty,email"`
}

type promoAccepted struct {
	Valid          bool    `json:"valid"`
	Code           string  `json:"code"`
	DiscountType   string  `json:"discountType"`
	DiscountValue  float64 `json:"discountValue"`
	DiscountAmount float64 `json:"discountAmount"`
	Description    string  `json:"description"`
	MinOrderAmount float64 `json:"minOrderAmount"`
}

type promoRejected struct {
	Valid bool   `json:"valid"`
	Error string `json:"error"`
}

// ValidatePromo answers whether a code applies to a prospective order. Only a
// missing or unknown code is an error; other refusals are valid:false.
func ValidatePromo(svc promoValidator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promo service unavailable"))
			return
		}
		var body promoValidateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		decision, err := svc.Validate(r.Context(), promos.ValidateInput{
			Code:          body.Code,
			OrderTotal:    body.OrderTotal,
			CustomerEmail: body.CustomerEmail,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !decision.Valid {
			responses.WriteSuccess(w, promoRejected{Error: decision.Reason})
			return
		}
		responses.WriteSuccess(w, promoAccepted{
			Valid:          true,
			Code:           decision.Code,
			DiscountType:   string(decision.DiscountType),
			DiscountValue:  decision.DiscountValue.InexactFloat64(),
			DiscountAmount: decision.DiscountAmount.InexactFloat64(),
			Description:    decision.Description,
			MinOrderAmount: decision.MinOrderAmount.InexactFloat64(),
		})
	}
}

type deliveryPlanner interface {
	OptionsFrom(from *time.Time) []delivery.Option
}

// DeliveryOptions lists the next delivery slot per weekday, from today or the
// optional ?from= date.
func DeliveryOptions(scheduler deliveryPlanner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, err := validators.ParseQueryDate(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"options": scheduler.OptionsFrom(from)})
	}
}

type basketQuoter interface {
	Quote(ctx context.Context, basketSizeID uuid.UUID, lines []baskets.Line) (*baskets.Quote, *models.BasketSize, error)
}

type basketQuoteRequest struct {
	BasketSizeID string         `json:"basketSizeId" validate:"required,uuid"`
	Lines        []baskets.Line `json:"lines" validate:"required,min=1,dive"`
}

// QuoteBasket prices a custom composition against a basket size.
func QuoteBasket(svc basketQuoter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "basket pricing unavailable"))
			return
		}
		var body basketQuoteRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sizeID, err := validators.ParseUUIDParam(body.BasketSizeID, "basketSizeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quote, size, err := svc.Quote(r.Context(), sizeID, body.Lines)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"basketSize": map[string]any{
				"id":       size.ID,
				"name":     size.Name,
				"weightKg": size.WeightKg,
			},
			"quote": quote,
		})
	}
}
