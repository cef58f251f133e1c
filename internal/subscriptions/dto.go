package subscriptions

import (
	"time"

	"github.com/google/uuid"

	"github.com/corbeille/corbeille-backend/pkg/calendar"
	"github.com/corbeille/corbeille-backend/pkg/db/models"
	"github.com/corbeille/corbeille-backend/pkg/enums"
)

// ItemView is one recurring basket line.
type ItemView struct {
	ProductType    enums.ProductType `json:"product_type"`
	ProductID      string            `json:"product_id"`
	Name           string            `json:"name"`
	Quantity       int               `json:"quantity"`
	UnitPriceCents int64             `json:"unit_price_cents"`
}

// View is the company-facing shape of a subscription.
type View struct {
	ID                uuid.UUID                 `json:"id"`
	CompanyID         uuid.UUID                 `json:"company_id"`
	Frequency         enums.Frequency           `json:"frequency"`
	PreferredWeekday  enums.DeliveryWeekday     `json:"preferred_weekday"`
	NextDeliveryDate  string                    `json:"next_delivery_date"`
	DeliveryAddress   string                    `json:"delivery_address"`
	IsActive          bool                      `json:"is_active"`
	Status            *enums.SubscriptionStatus `json:"status,omitempty"`
	CancelAtPeriodEnd bool                      `json:"cancel_at_period_end"`
	CurrentPeriodEnd  *time.Time                `json:"current_period_end,omitempty"`
	CanceledAt        *time.Time                `json:"canceled_at,omitempty"`
	Items             []ItemView                `json:"items"`
}

func ToView(sub *models.Subscription) View {
	view := View{
		ID:                sub.ID,
		CompanyID:         sub.CompanyID,
		Frequency:         sub.Frequency,
		PreferredWeekday:  sub.PreferredWeekday,
		NextDeliveryDate:  calendar.FormatISODate(sub.NextDeliveryDate),
		DeliveryAddress:   sub.DeliveryAddress,
		IsActive:          sub.IsActive,
		Status:            sub.ExternalStatus,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
		CanceledAt:        sub.CanceledAt,
		Items:             make([]ItemView, 0, len(sub.Items)),
	}
	for _, item := range sub.Items {
		view.Items = append(view.Items, ItemView{
			ProductType:    item.ProductType,
			ProductID:      item.ProductID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	return view
}
