package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/corbeille/corbeille-backend/api/middleware"
	"github.com/corbeille/corbeille-backend/api/responses"
	"github.com/corbeille/corbeille-backend/api/validators"
	internalorders "github.com/corbeille/corbeille-backend/internal/orders"
	"github.com/corbeille/corbeille-backend/pkg/db/models"
	"github.com/corbeille/corbeille-backend/pkg/enums"
	pkgerrors "github.com/corbeille/corbeille-backend/pkg/errors"
	"github.com/corbeille/corbeille-backend/pkg/logger"
	"github.com/corbeille/corbeille-backend/pkg/pagination"
)

type orderOperator interface {
	Transition(ctx context.Context, input internalorders.TransitionInput) (*models.Order, error)
	AssignDriver(ctx context.Context, input internalorders.AssignDriverInput) (*models.Order, error)
	DriverDecision(ctx context.Context, input internalorders.DriverDecisionInput) (*models.Order, error)
}

type orderLister interface {
	List(ctx context.Context, input internalorders.ListInput) (pagination.Page[models.Order], error)
}

type orderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed preparing delivered cancelled"`
}

type assignDriverRequest struct {
	DriverID string `json:"driverId" validate:"required,max=128"`
}

type driverDecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=accepted refused"`
	DriverID string `json:"driverId,omitempty" validate:"max=128"`
}

// AdminOrderStatus moves an order along its lifecycle.
func AdminOrderStatus(svc orderOperator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := adminOrderID(w, r, svc, logg)
		if !ok {
			return
		}
		var body orderStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Transition(r.Context(), internalorders.TransitionInput{
			OrderID:    orderID,
			Target:     enums.OrderStatus(body.Status),
			OperatorID: middleware.OperatorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.ToView(order))
	}
}

// AdminAssignDriver hands an order to a driver.
func AdminAssignDriver(svc orderOperator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := adminOrderID(w, r, svc, logg)
		if !ok {
			return
		}
		var body assignDriverRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.AssignDriver(r.Context(), internalorders.AssignDriverInput{
			OrderID:    orderID,
			DriverID:   body.DriverID,
			OperatorID: middleware.OperatorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.ToView(order))
	}
}

// AdminDriverDecision records a driver's answer. Drivers always answer for
// themselves; admins may answer on behalf of the named driver.
func AdminDriverDecision(svc orderOperator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := adminOrderID(w, r, svc, logg)
		if !ok {
			return
		}
		var body driverDecisionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		operatorID := middleware.OperatorIDFromContext(r.Context())
		driverID := body.DriverID
		if middleware.RoleFromContext(r.Context()) == enums.OperatorRoleDriver {
			driverID = operatorID
		}
		order, err := svc.DriverDecision(r.Context(), internalorders.DriverDecisionInput{
			OrderID:    orderID,
			DriverID:   driverID,
			Decision:   enums.DriverStatus(body.Decision),
			OperatorID: operatorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.ToView(order))
	}
}

// AdminListOrders pages through orders. Drivers only ever see their own.
func AdminListOrders(svc orderLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		q := r.URL.Query()
		input := internalorders.ListInput{
			Status:       q.Get("status"),
			DeliveryDate: q.Get("deliveryDate"),
			DriverID:     q.Get("driverId"),
			Limit:        limit,
			Cursor:       q.Get("cursor"),
		}
		if middleware.RoleFromContext(r.Context()) == enums.OperatorRoleDriver {
			input.DriverID = middleware.OperatorIDFromContext(r.Context())
		}
		page, err := svc.List(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, pagination.Map(page, func(o models.Order) internalorders.OrderView {
			return internalorders.ToView(&o)
		}))
	}
}

func adminOrderID(w http.ResponseWriter, r *http.Request, svc orderOperator, logg *logger.Logger) (uuid.UUID, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
		return uuid.Nil, false
	}
	orderID, err := validators.ParseUUIDParam(chi.URLParam(r, "orderId"), "orderId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, false
	}
	return orderID, true
}
