package controllers

import (
	"context"
	"net/http"

	"github.com/corbeille/corbeille-backend/api/responses"
	"github.com/corbeille/corbeille-backend/api/validators"
	checkoutsvc "github.com/corbeille/corbeille-backend/internal/checkout"
	pkgcheckout "github.com/corbeille/corbeille-backend/pkg/checkout"
	"github.com/corbeille/corbeille-backend/pkg/enums"
	pkgerrors "github.com/corbeille/corbeille-backend/pkg/errors"
	"github.com/corbeille/corbeille-backend/pkg/logger"
)

type checkoutStarter interface {
	Start(ctx context.Context, input checkoutsvc.Input) (*checkoutsvc.Result, error)
}

type checkoutRequest struct {
	Mode             string                `json:"mode" validate:"required,oneof=payment subscription"`
	Items            []checkoutItemRequest `json:"items" validate:"required,min=1,dive"`
	CompanyName      string                `json:"companyName" validate:"max=200"`
	CustomerEmail    string                `json:"customerEmail" validate:"required,email"`
	CustomerPhone    string                `json:"customerPhone" validate:"max=40"`
	DeliveryAddress  string                `json:"deliveryAddress" validate:"required,max=400"`
	PreferredWeekday string                `json:"preferredWeekday" validate:"required,oneof=monday tuesday"`
	DeliveryDate     string                `json:"deliveryDate" validate:"required,isodate"`
	Frequency        string                `json:"frequency" validate:"omitempty,oneof=weekly biweekly monthly"`
	PromoCode        string                `json:"promoCode" validate:"max=64"`
	StripeCustomerID string                `json:"stripeCustomerId" validate:"max=255"`
}

type checkoutItemRequest struct {
	ProductType    string                   `json:"productType" validate:"required"`
	ProductID      string                   `json:"productId" validate:"required"`
	Name           string                   `json:"name" validate:"required,max=120"`
	Quantity       int                      `json:"quantity" validate:"required,min=1"`
	UnitPriceCents int64                    `json:"unitPriceCents" validate:"min=0"`
	Composition    []compositionLineRequest `json:"composition,omitempty" validate:"dive"`
}

type compositionLineRequest struct {
	FruitID    string `json:"fruitId" validate:"required"`
	QuantityKg string `json:"quantityKg" validate:"required"`
}

// Checkout opens a hosted payment session for the storefront cart.
func Checkout(svc checkoutStarter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Start(r.Context(), payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func (p checkoutRequest) toInput() checkoutsvc.Input {
	input := checkoutsvc.Input{
		Mode:             enums.CheckoutMode(p.Mode),
		CompanyName:      validators.SanitizeString(p.CompanyName, 200),
		CustomerEmail:    p.CustomerEmail,
		CustomerPhone:    validators.SanitizeString(p.CustomerPhone, 40),
		DeliveryAddress:  validators.SanitizeString(p.DeliveryAddress, 400),
		PreferredWeekday: enums.DeliveryWeekday(p.PreferredWeekday),
		DeliveryDate:     p.DeliveryDate,
		Frequency:        enums.Frequency(p.Frequency),
		PromoCode:        p.PromoCode,
		StripeCustomerID: validators.SanitizeString(p.StripeCustomerID, 255),
		Items:            make([]pkgcheckout.Item, 0, len(p.Items)),
	}
	for _, item := range p.Items {
		converted := pkgcheckout.Item{
			ProductType:    enums.ProductType(item.ProductType),
			ProductID:      item.ProductID,
			Name:           validators.SanitizeString(item.Name, 120),
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		}
		for _, line := range item.Composition {
			converted.Composition = append(converted.Composition, pkgcheckout.CompositionLine{
				FruitID:    line.FruitID,
				QuantityKg: line.QuantityKg,
			})
		}
		input.Items = append(input.Items, converted)
	}
	return input
}
