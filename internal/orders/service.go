package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corbeille/corbeille-backend/pkg/calendar"
	"github.com/corbeille/corbeille-backend/pkg/db/models"
	"github.com/corbeille/corbeille-backend/pkg/enums"
	pkgerrors "github.com/corbeille/corbeille-backend/pkg/errors"
	"github.com/corbeille/corbeille-backend/pkg/logger"
	"github.com/corbeille/corbeille-backend/pkg/outbox"
	"github.com/corbeille/corbeille-backend/pkg/outbox/payloads"
	"github.com/corbeille/corbeille-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notifier interface {
	OrderStatusChanged(ctx context.Context, tx *gorm.DB, order *models.Order, from enums.OrderStatus) error
}

// Service defines order operations beyond repository reads.
type Service interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Place(ctx context.Context, tx *gorm.DB, order *models.Order, renewal bool) error
	Transition(ctx context.Context, input TransitionInput) (*models.Order, error)
	AssignDriver(ctx context.Context, input AssignDriverInput) (*models.Order, error)
	DriverDecision(ctx context.Context, input DriverDecisionInput) (*models.Order, error)
	List(ctx context.Context, input ListInput) (pagination.Page[models.Order], error)
}

// ListInput carries raw back-office listing parameters.
type ListInput struct {
	Status       string
	DeliveryDate string
	DriverID     string
	Limit        int
	Cursor       string
}

// TransitionInput moves an order to a new status on behalf of an operator.
type TransitionInput struct {
	OrderID    uuid.UUID
	Target     enums.OrderStatus
	OperatorID string
}

// AssignDriverInput hands an order to a driver.
type AssignDriverInput struct {
	OrderID    uuid.UUID
	DriverID   string
	OperatorID string
}

// DriverDecisionInput records a driver's answer to an assignment.
type DriverDecisionInput struct {
	OrderID    uuid.UUID
	DriverID   string
	Decision   enums.DriverStatus
	OperatorID string
}

type ServiceParams struct {
	Repository        Repository
	TransactionRunner txRunner
	Outbox            outbox.Emitter
	Notifier          notifier
	Logger            *logger.Logger
	Clock             func() time.Time
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outbox.Emitter
	notifier notifier
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds an order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:     params.Repository,
		tx:       params.TransactionRunner,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		logg:     params.Logger,
		now:      clock,
	}, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapLoadError(err)
	}
	return order, nil
}

// Place inserts a new order inside tx and queues order_created. Line totals
// and the subtotal are derived from the line items; the total never goes
// below zero.
func (s *service) Place(ctx context.Context, tx *gorm.DB, order *models.Order, renewal bool) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if order == nil {
		return errors.New("order required")
	}
	if strings.TrimSpace(order.CustomerEmail) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer email required")
	}
	if order.DeliveryDate.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery date required")
	}
	if order.Status == "" {
		order.Status = enums.OrderStatusPending
	}
	if !order.Status.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid order status %q", order.Status)
	}
	order.CustomerEmail = strings.ToLower(strings.TrimSpace(order.CustomerEmail))
	order.DeliveryDate = calendar.AsUTCDate(order.DeliveryDate)
	ApplyTotals(order)

	if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}

	return s.emit(ctx, tx, enums.EventOrderCreated, outbox.ActorStripe, order.ID, payloads.OrderCreatedEvent{
		OrderID:        order.ID,
		SubscriptionID: order.SubscriptionID,
		Status:         order.Status,
		TotalCents:     order.TotalCents,
		DeliveryDate:   calendar.FormatISODate(order.DeliveryDate),
		Renewal:        renewal,
	})
}

// Transition applies an operator status change. Re-applying the current
// status is a no-op; terminal orders never change.
func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid order status %q", input.Target)
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return mapLoadError(err)
		}
		result = order
		if order.Status == input.Target {
			return nil
		}
		if !order.Status.CanTransitionTo(input.Target) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order cannot move from %s to %s", order.Status, input.Target)
		}

		from := order.Status
		order.Status = input.Target
		if err := repo.Save(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if err := s.emitStatusChanged(ctx, tx, order, from, input.OperatorID); err != nil {
			return err
		}
		if err := s.notifier.OrderStatusChanged(ctx, tx, order, from); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue status notification")
		}

		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
			"from": from,
			"to":   order.Status,
		}), "order status changed")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AssignDriver sets the driver and resets the driver answer to pending.
func (s *service) AssignDriver(ctx context.Context, input AssignDriverInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	driverID := strings.TrimSpace(input.DriverID)
	if driverID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "driver id required")
	}

	return s.mutateDriver(ctx, input.OrderID, input.OperatorID, func(order *models.Order) (bool, error) {
		if order.DriverID != nil && *order.DriverID == driverID && order.DriverStatus != nil && *order.DriverStatus != enums.DriverStatusRefused {
			return false, nil
		}
		pending := enums.DriverStatusPending
		order.DriverID = &driverID
		order.DriverStatus = &pending
		return true, nil
	})
}

// DriverDecision records accepted or refused from the assigned driver.
// A refusal keeps the driver on the order so operators can see who declined.
func (s *service) DriverDecision(ctx context.Context, input DriverDecisionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.Decision != enums.DriverStatusAccepted && input.Decision != enums.DriverStatusRefused {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid driver decision %q", input.Decision)
	}
	driverID := strings.TrimSpace(input.DriverID)

	return s.mutateDriver(ctx, input.OrderID, input.OperatorID, func(order *models.Order) (bool, error) {
		if order.DriverID == nil {
			return false, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no assigned driver")
		}
		if driverID != "" && *order.DriverID != driverID {
			return false, pkgerrors.New(pkgerrors.CodeForbidden, "order is assigned to another driver")
		}
		if order.DriverStatus != nil && *order.DriverStatus == input.Decision {
			return false, nil
		}
		if order.DriverStatus != nil && *order.DriverStatus != enums.DriverStatusPending {
			return false, pkgerrors.Newf(pkgerrors.CodeStateConflict, "driver already answered %s", *order.DriverStatus)
		}
		decision := input.Decision
		order.DriverStatus = &decision
		return true, nil
	})
}

// mutateDriver locks the order, applies fn, and persists plus emits only when
// fn reports a change.
func (s *service) mutateDriver(ctx context.Context, orderID uuid.UUID, operatorID string, fn func(*models.Order) (bool, error)) (*models.Order, error) {
	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return mapLoadError(err)
		}
		result = order
		if order.Status.IsTerminal() {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is %s", order.Status)
		}
		changed, err := fn(order)
		if err != nil || !changed {
			return err
		}
		if err := repo.Save(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update driver")
		}
		return s.emitStatusChanged(ctx, tx, order, order.Status, operatorID)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, order *models.Order, from enums.OrderStatus, operatorID string) error {
	actor := outbox.ActorSystem
	if operatorID != "" {
		actor = outbox.OperatorActor(operatorID)
	}
	return s.emit(ctx, tx, enums.EventOrderStatusChanged, actor, order.ID, payloads.OrderStatusChangedEvent{
		OrderID:    order.ID,
		From:       from,
		To:         order.Status,
		DriverID:   order.DriverID,
		Driver:     order.DriverStatus,
		OccurredAt: s.now().UTC(),
	})
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, actor *outbox.ActorRef, orderID uuid.UUID, data any) error {
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         actor,
		Data:          data,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue order event")
	}
	return nil
}

// ApplyTotals fills line totals, the subtotal, and a non-negative total.
func ApplyTotals(order *models.Order) {
	if len(order.LineItems) > 0 {
		var subtotal int64
		for i := range order.LineItems {
			item := &order.LineItems[i]
			if item.LineTotalCents == 0 {
				item.LineTotalCents = item.UnitPriceCents * int64(item.Quantity)
			}
			subtotal += item.LineTotalCents
		}
		order.SubtotalCents = subtotal
	}
	if order.DiscountCents < 0 {
		order.DiscountCents = 0
	}
	total := order.SubtotalCents + order.DeliveryFeeCents - order.DiscountCents
	if total < 0 {
		total = 0
	}
	order.TotalCents = total
}

// List pages through orders newest first.
func (s *service) List(ctx context.Context, input ListInput) (pagination.Page[models.Order], error) {
	var filter ListFilter
	if raw := strings.TrimSpace(input.Status); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return pagination.Page[models.Order]{}, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", raw)
		}
		filter.Status = &status
	}
	if raw := strings.TrimSpace(input.DeliveryDate); raw != "" {
		date, err := calendar.ParseISODate(raw)
		if err != nil {
			return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery date")
		}
		filter.DeliveryDate = &date
	}
	if driver := strings.TrimSpace(input.DriverID); driver != "" {
		filter.DriverID = &driver
	}
	after, err := pagination.Parse(input.Cursor)
	if err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	filter.After = after

	limit := pagination.NormalizeLimit(input.Limit)
	rows, err := s.repo.List(ctx, filter, limit+1)
	if err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return pagination.Build(rows, limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	}), nil
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}
