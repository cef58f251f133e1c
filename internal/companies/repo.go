package companies

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corbeille/corbeille-backend/internal/repo"
	"github.com/corbeille/corbeille-backend/pkg/db/models"
)

// Repository persists companies, the owners of subscriptions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Company, error)
	FindByEmail(ctx context.Context, email string) (*models.Company, error)
	FindOrCreate(ctx context.Context, input Profile) (*models.Company, error)
}

// Profile is the company data collected at checkout.
type Profile struct {
	Name             string
	Email            string
	Phone            string
	Address          string
	StripeCustomerID string
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

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	var company models.Company
	if err := r.DB(ctx).Where("id = ?", id).First(&company).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*models.Company, error) {
	var company models.Company
	if err := r.DB(ctx).Where("email = ?", NormalizeEmail(email)).First(&company).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

// FindOrCreate returns the company registered under the profile email,
// creating it when absent and filling in a missing billing customer id.
func (r *repository) FindOrCreate(ctx context.Context, input Profile) (*models.Company, error) {
	email := NormalizeEmail(input.Email)
	if email == "" {
		return nil, errors.New("company email is required")
	}
	existing, err := r.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.StripeCustomerID == nil && strings.TrimSpace(input.StripeCustomerID) != "" {
			customerID := strings.TrimSpace(input.StripeCustomerID)
			if err := r.DB(ctx).Model(existing).Update("stripe_customer_id", customerID).Error; err != nil {
				return nil, err
			}
			existing.StripeCustomerID = &customerID
		}
		return existing, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = email
	}
	company := &models.Company{
		Name:             name,
		Email:            email,
		Phone:            optional(input.Phone),
		Address:          strings.TrimSpace(input.Address),
		StripeCustomerID: optional(input.StripeCustomerID),
	}
	if err := r.DB(ctx).Create(company).Error; err != nil {
		return nil, err
	}
	return company, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func optional(value string) *string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return &trimmed
	}
	return nil
}
