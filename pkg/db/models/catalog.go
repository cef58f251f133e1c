package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Fruit is a composable ingredient sold by the kilogram.
type Fruit struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name        string          `gorm:"column:name;not null"`
	PricePerKg  decimal.Decimal `gorm:"column:price_per_kg;type:numeric(10,2);not null"`
	IsAvailable bool            `gorm:"column:is_available;not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (f *Fruit) BeforeCreate(*gorm.DB) error {
	ensureID(&f.ID)
	return nil
}

// BasketSize is a catalog basket format: its weight budget and the price of
// the equivalent pre-composed basket.
type BasketSize struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name         string          `gorm:"column:name;not null"`
	WeightKg     decimal.Decimal `gorm:"column:weight_kg;type:numeric(6,2);not null"`
	CatalogPrice decimal.Decimal `gorm:"column:catalog_price;type:numeric(10,2);not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (b *BasketSize) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	return nil
}
