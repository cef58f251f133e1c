package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/corbeille/corbeille-backend/api/responses"
	"github.com/corbeille/corbeille-backend/api/validators"
	"github.com/corbeille/corbeille-backend/internal/subscriptions"
	"github.com/corbeille/corbeille-backend/pkg/db/models"
	pkgerrors "github.com/corbeille/corbeille-backend/pkg/errors"
	"github.com/corbeille/corbeille-backend/pkg/logger"
)

type subscriptionReader interface {
	GetActive(ctx context.Context, companyID uuid.UUID) (*models.Subscription, error)
}

type subscriptionCanceller interface {
	Cancel(ctx context.Context, companyID uuid.UUID) (*models.Subscription, error)
}

type cancelSubscriptionRequest struct {
	CompanyID string `json:"companyId" validate:"required,uuid"`
}

// GetSubscription returns the company's active subscription.
func GetSubscription(svc subscriptionReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		companyID, err := validators.ParseUUIDParam(chi.URLParam(r, "companyId"), "companyId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sub, err := svc.GetActive(r.Context(), companyID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, subscriptions.ToView(sub))
	}
}

// CancelSubscription stops the company's active subscription at period end.
func CancelSubscription(svc subscriptionCanceller, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		var body cancelSubscriptionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		companyID, err := validators.ParseUUIDParam(body.CompanyID, "companyId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sub, err := svc.Cancel(r.Context(), companyID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, subscriptions.ToView(sub))
	}
}
