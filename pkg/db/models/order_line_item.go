package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corbeille/corbeille-backend/pkg/enums"
)

// OrderLineItem is a priced line on an order. Composition is set for custom baskets.
type OrderLineItem struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	ProductType    enums.ProductType `gorm:"column:product_type;not null"`
	ProductID      string            `gorm:"column:product_id;not null"`
	Name           string            `gorm:"column:name;not null"`
	Quantity       int               `gorm:"column:quantity;not null"`
	UnitPriceCents int64             `gorm:"column:unit_price_cents;not null"`
	LineTotalCents int64             `gorm:"column:line_total_cents;not null"`
	Composition    json.RawMessage   `gorm:"column:composition;type:jsonb"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (l *OrderLineItem) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
