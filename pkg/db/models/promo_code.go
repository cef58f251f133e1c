package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/corbeille/corbeille-backend/pkg/enums"
)

// PromoCode is an operator-managed discount. Codes are stored upper-cased.
type PromoCode struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Code           string             `gorm:"column:code;not null;uniqueIndex:ux_promo_codes_code"`
	DiscountType   enums.DiscountType `gorm:"column:discount_type;not null"`
	DiscountValue  decimal.Decimal    `gorm:"column:discount_value;type:numeric(10,2);not null"`
	Description    string             `gorm:"column:description"`
	MaxUses        *int               `gorm:"column:max_uses"`
	CurrentUses    int                `gorm:"column:current_uses;not null"`
	MinOrderAmount decimal.Decimal    `gorm:"column:min_order_amount;type:numeric(10,2);not null"`
	ExpiresAt      *time.Time         `gorm:"column:expires_at"`
	IsActive       bool               `gorm:"column:is_active;not null"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *PromoCode) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// PromoRedemption is the append-only record of a customer using a code.
type PromoRedemption struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	PromoCodeID    uuid.UUID       `gorm:"column:promo_code_id;type:uuid;not null;uniqueIndex:ux_promo_redemptions_code_email"`
	CustomerEmail  string          `gorm:"column:customer_email;not null;uniqueIndex:ux_promo_redemptions_code_email"`
	OrderID        uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	DiscountAmount decimal.Decimal `gorm:"column:discount_amount;type:numeric(10,2);not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (r *PromoRedemption) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
