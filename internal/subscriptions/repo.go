package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corbeille/corbeille-backend/internal/repo"
	"github.com/corbeille/corbeille-backend/pkg/db/models"
)

// Repository persists subscriptions and their basket items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sub *models.Subscription) error
	Save(ctx context.Context, sub *models.Subscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindByExternalIDForUpdate(ctx context.Context, externalID string) (*models.Subscription, error)
	FindActiveByCompany(ctx context.Context, companyID uuid.UUID) (*models.Subscription, error)
	DeactivateOthers(ctx context.Context, companyID, keepID uuid.UUID) (int64, error)
	ListStaleExternal(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Subscription, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Tx(tx)}
}

// Create inserts the subscription together with its items.
func (r *repository) Create(ctx context.Context, sub *models.Subscription) error {
	return r.DB(ctx).Create(sub).Error
}

// Save updates the subscription row only; items are immutable once created.
func (r *repository) Save(ctx context.Context, sub *models.Subscription) error {
	return r.DB(ctx).Omit("Items").Save(sub).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.DB(ctx).Preload("Items").Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.Locked(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, err
	}
	return r.withItems(ctx, &sub)
}

// FindByExternalIDForUpdate locks the subscription mirrored from the billing provider.
func (r *repository) FindByExternalIDForUpdate(ctx context.Context, externalID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.Locked(ctx).Where("stripe_subscription_id = ?", externalID).First(&sub).Error; err != nil {
		return nil, err
	}
	return r.withItems(ctx, &sub)
}

// FindActiveByCompany returns nil without error when the company has no active subscription.
func (r *repository) FindActiveByCompany(ctx context.Context, companyID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.DB(ctx).
		Preload("Items").
		Where("company_id = ? AND is_active = ?", companyID, true).
		Order("created_at DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// DeactivateOthers switches off every active subscription of the company except keepID.
func (r *repository) DeactivateOthers(ctx context.Context, companyID, keepID uuid.UUID) (int64, error) {
	res := r.DB(ctx).
		Model(&models.Subscription{}).
		Where("company_id = ? AND is_active = ? AND id <> ?", companyID, true, keepID).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

// ListStaleExternal returns active provider-backed subscriptions not touched
// since updatedBefore, least recently updated first.
func (r *repository) ListStaleExternal(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.DB(ctx).
		Where("is_active = ? AND stripe_subscription_id IS NOT NULL AND stripe_subscription_id <> ''", true).
		Where("updated_at < ?", updatedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

func (r *repository) withItems(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	if err := r.DB(ctx).Where("subscription_id = ?", sub.ID).Order("created_at ASC").Find(&sub.Items).Error; err != nil {
		return nil, err
	}
	return sub, nil
}
