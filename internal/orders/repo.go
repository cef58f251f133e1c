package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corbeille/corbeille-backend/internal/repo"
	"github.com/corbeille/corbeille-backend/pkg/db/models"
)

type repository struct {
	repo.Base
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Tx(tx)}
}

// Create inserts the order and its line items.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.DB(ctx).Create(order).Error
}

// Save updates the order row only; line items are immutable after creation.
func (r *repository) Save(ctx context.Context, order *models.Order) error {
	return r.DB(ctx).Omit("LineItems").Save(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.Locked(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByExternalSession(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	if err := r.DB(ctx).Where("external_session_id = ?", sessionID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByExternalInvoice(ctx context.Context, invoiceID string) (*models.Order, error) {
	var order models.Order
	if err := r.DB(ctx).Where("external_invoice_id = ?", invoiceID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := r.DB(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("delivery_date ASC").
		Find(&orders).Error
	return orders, err
}

// List returns orders newest first, continuing after filter.After when set.
func (r *repository) List(ctx context.Context, filter ListFilter, limit int) ([]models.Order, error) {
	q := r.DB(ctx).Model(&models.Order{})
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.DeliveryDate != nil {
		q = q.Where("delivery_date = ?", *filter.DeliveryDate)
	}
	if filter.DriverID != nil {
		q = q.Where("driver_id = ?", *filter.DriverID)
	}
	if filter.After != nil {
		q = q.Where("((created_at < ?) OR (created_at = ? AND id < ?))",
			filter.After.CreatedAt, filter.After.CreatedAt, filter.After.ID)
	}
	var orders []models.Order
	err := q.
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}
