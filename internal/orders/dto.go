package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/corbeille/corbeille-backend/pkg/calendar"
	"github.com/corbeille/corbeille-backend/pkg/db/models"
	"github.com/corbeille/corbeille-backend/pkg/enums"
)

// LineItemView is the JSON shape of an order line.
type LineItemView struct {
	ProductType    enums.ProductType `json:"product_type"`
	ProductID      string            `json:"product_id"`
	Name           string            `json:"name"`
	Quantity       int               `json:"quantity"`
	UnitPriceCents int64             `json:"unit_price_cents"`
	LineTotalCents int64             `json:"line_total_cents"`
}

// OrderView is what the back-office receives after an order operation.
type OrderView struct {
	ID               uuid.UUID              `json:"id"`
	SubscriptionID   *uuid.UUID             `json:"subscription_id,omitempty"`
	Status           enums.OrderStatus      `json:"status"`
	SubtotalCents    int64                  `json:"subtotal_cents"`
	DeliveryFeeCents int64                  `json:"delivery_fee_cents"`
	DiscountCents    int64                  `json:"discount_cents"`
	TotalCents       int64                  `json:"total_cents"`
	PromoCode        *string                `json:"promo_code,omitempty"`
	PreferredWeekday *enums.DeliveryWeekday `json:"preferred_weekday,omitempty"`
	DeliveryDate     string                 `json:"delivery_date"`
	DeliveryAddress  string                 `json:"delivery_address"`
	CustomerEmail    string                 `json:"customer_email"`
	DriverID         *string                `json:"driver_id,omitempty"`
	DriverStatus     *enums.DriverStatus    `json:"driver_status,omitempty"`
	LineItems        []LineItemView         `json:"line_items"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// ToView flattens an order for responses.
func ToView(order *models.Order) OrderView {
	view := OrderView{
		ID:               order.ID,
		SubscriptionID:   order.SubscriptionID,
		Status:           order.Status,
		SubtotalCents:    order.SubtotalCents,
		DeliveryFeeCents: order.DeliveryFeeCents,
		DiscountCents:    order.DiscountCents,
		TotalCents:       order.TotalCents,
		PromoCode:        order.PromoCode,
		PreferredWeekday: order.PreferredWeekday,
		DeliveryDate:     calendar.FormatISODate(order.DeliveryDate),
		DeliveryAddress:  order.DeliveryAddress,
		CustomerEmail:    order.CustomerEmail,
		DriverID:         order.DriverID,
		DriverStatus:     order.DriverStatus,
		LineItems:        make([]LineItemView, 0, len(order.LineItems)),
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
	for _, item := range order.LineItems {
		view.LineItems = append(view.LineItems, LineItemView{
			ProductType:    item.ProductType,
			ProductID:      item.ProductID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.LineTotalCents,
		})
	}
	return view
}
