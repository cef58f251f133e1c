package promos

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/corbeille/corbeille-backend/internal/repo"
	"github.com/corbeille/corbeille-backend/pkg/db/models"
)

// Repository persists promo codes and their redemptions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, promo *models.PromoCode) error
	FindByCode(ctx context.Context, code string) (*models.PromoCode, error)
	HasRedemption(ctx context.Context, promoID uuid.UUID, email string) (bool, error)
	IncrementUsage(ctx context.Context, promoID uuid.UUID) (bool, error)
	RecordRedemption(ctx context.Context, redemption *models.PromoRedemption) (bool, error)
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

func (r *repository) Create(ctx context.Context, promo *models.PromoCode) error {
	promo.Code = NormalizeCode(promo.Code)
	return r.DB(ctx).Create(promo).Error
}

// FindByCode returns nil without error for unknown codes.
func (r *repository) FindByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	err := r.DB(ctx).Where("code = ?", NormalizeCode(code)).First(&promo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

func (r *repository) HasRedemption(ctx context.Context, promoID uuid.UUID, email string) (bool, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.PromoRedemption{}).
		Where("promo_code_id = ? AND customer_email = ?", promoID, normalizeEmail(email)).
		Count(&count).Error
	return count > 0, err
}

// IncrementUsage bumps current_uses only while under the cap. It reports
// false when the cap was already reached.
func (r *repository) IncrementUsage(ctx context.Context, promoID uuid.UUID) (bool, error) {
	res := r.DB(ctx).
		Model(&models.PromoCode{}).
		Where("id = ? AND (max_uses IS NULL OR current_uses < max_uses)", promoID).
		Update("current_uses", gorm.Expr("current_uses + 1"))
	return res.RowsAffected == 1, res.Error
}

// RecordRedemption appends the redemption, reporting false when the customer
// already had one for this code.
func (r *repository) RecordRedemption(ctx context.Context, redemption *models.PromoRedemption) (bool, error) {
	redemption.CustomerEmail = normalizeEmail(redemption.CustomerEmail)
	redemption.DiscountAmount = redemption.DiscountAmount.Round(2)
	if redemption.DiscountAmount.IsNegative() {
		redemption.DiscountAmount = decimal.Zero
	}
	res := r.DB(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(redemption)
	return res.RowsAffected == 1, res.Error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
