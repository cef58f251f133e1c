package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corbeille/corbeille-backend/pkg/db/models"
	"github.com/corbeille/corbeille-backend/pkg/enums"
	"github.com/corbeille/corbeille-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their line items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	Save(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByExternalSession(ctx context.Context, sessionID string) (*models.Order, error)
	FindByExternalInvoice(ctx context.Context, invoiceID string) (*models.Order, error)
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.Order, error)
	List(ctx context.Context, filter ListFilter, limit int) ([]models.Order, error)
}

// ListFilter narrows the back-office order listing. Nil fields do not filter.
type ListFilter struct {
	Status       *enums.OrderStatus
	DeliveryDate *time.Time
	DriverID     *string
	After        *pagination.Cursor
}
