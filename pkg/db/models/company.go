package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Company is the business customer that owns subscriptions and orders.
type Company struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name             string    `gorm:"column:name;not null"`
	Email            string    `gorm:"column:email;not null;uniqueIndex:ux_companies_email"`
	Phone            *string   `gorm:"column:phone"`
	Address          string    `gorm:"column:address;not null"`
	StripeCustomerID *string   `gorm:"column:stripe_customer_id;uniqueIndex:ux_companies_stripe_customer"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Company) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
