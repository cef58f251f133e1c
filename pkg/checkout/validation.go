package checkout

import (
	"fmt"
	"strings"

	pkgerrors "github.com/corbeille/corbeille-backend/pkg/errors"
	"github.com/corbeille/corbeille-backend/pkg/enums"
)

// MaxQuantity bounds a single cart line.
const MaxQuantity = 50

// ItemViolation explains why one cart line was refused.
type ItemViolation struct {
	Index     int    `json:"index"`
	ProductID string `json:"product_id,omitempty"`
	Reason    string `json:"reason"`
}

// ValidateItems checks the shape of every cart line before any pricing happens.
func ValidateItems(items []Item) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	var violations []ItemViolation
	for i, item := range items {
		if reason := itemProblem(item); reason != "" {
			violations = append(violations, ItemViolation{
				Index:     i,
				ProductID: item.ProductID,
				Reason:    reason,
			})
		}
	}
	if len(violations) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid cart line(s): %d", len(violations))).WithDetails(map[string]any{
		"violations": violations,
	})
}

func itemProblem(item Item) string {
	switch {
	case !item.ProductType.IsValid():
		return fmt.Sprintf("unknown product type %q", item.ProductType)
	case strings.TrimSpace(item.ProductID) == "":
		return "product id required"
	case strings.TrimSpace(item.Name) == "":
		return "name required"
	case item.Quantity < 1 || item.Quantity > MaxQuantity:
		return fmt.Sprintf("quantity must be between 1 and %d", MaxQuantity)
	case item.UnitPriceCents <= 0 && item.ProductType != enums.ProductCustomBasket:
		return "unit price must be positive"
	case item.ProductType == enums.ProductCustomBasket && len(item.Composition) == 0:
		return "custom basket without composition"
	}
	return ""
}
