package baskets

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corbeille/corbeille-backend/internal/repo"
	"github.com/corbeille/corbeille-backend/pkg/db/models"
	pkgerrors "github.com/corbeille/corbeille-backend/pkg/errors"
)

// CatalogRepository loads the data custom baskets are priced from.
type CatalogRepository interface {
	FindBasketSize(ctx context.Context, id uuid.UUID) (*models.BasketSize, error)
	FindAvailableFruits(ctx context.Context, ids []uuid.UUID) ([]models.Fruit, error)
}

type catalogRepository struct {
	repo.Base
}

func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{Base: repo.NewBase(db)}
}

func (r *catalogRepository) FindBasketSize(ctx context.Context, id uuid.UUID) (*models.BasketSize, error) {
	var size models.BasketSize
	if err := r.DB(ctx).Where("id = ?", id).First(&size).Error; err != nil {
		return nil, err
	}
	return &size, nil
}

func (r *catalogRepository) FindAvailableFruits(ctx context.Context, ids []uuid.UUID) ([]models.Fruit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var fruits []models.Fruit
	err := r.DB(ctx).Where("id IN ? AND is_available = ?", ids, true).Find(&fruits).Error
	return fruits, err
}

// Service prices compositions against the stored catalog.
type Service struct {
	catalog CatalogRepository
}

func NewService(catalog CatalogRepository) (*Service, error) {
	if catalog == nil {
		return nil, errors.New("catalog repository required")
	}
	return &Service{catalog: catalog}, nil
}

// Quote prices a composition for the given basket size.
func (s *Service) Quote(ctx context.Context, basketSizeID uuid.UUID, lines []Line) (*Quote, *models.BasketSize, error) {
	size, err := s.catalog.FindBasketSize(ctx, basketSizeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "basket size not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load basket size")
	}

	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		id, err := uuid.Parse(line.FruitID)
		if err != nil {
			return nil, nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid fruit id %q", line.FruitID)
		}
		ids = append(ids, id)
	}
	rows, err := s.catalog.FindAvailableFruits(ctx, ids)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load fruits")
	}
	fruits := make(map[string]Fruit, len(rows))
	for _, row := range rows {
		fruits[row.ID.String()] = Fruit{Name: row.Name, PricePerKg: row.PricePerKg}
	}

	quote, err := Price(Size{WeightKg: size.WeightKg, CatalogPrice: size.CatalogPrice}, normalizeIDs(lines), fruits)
	if err != nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	return &quote, size, nil
}

func normalizeIDs(lines []Line) []Line {
	out := make([]Line, len(lines))
	for i, line := range lines {
		out[i] = line
		if id, err := uuid.Parse(line.FruitID); err == nil {
			out[i].FruitID = id.String()
		}
	}
	return out
}
