// Package baskets prices custom fruit baskets against a basket size's weight budget.
package baskets

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Verdict classifies a composition's weight against its budget.
type Verdict string

const (
	VerdictUnderFilled Verdict = "under_filled"
	VerdictComplete    Verdict = "complete"
	VerdictOverFilled  Verdict = "over_filled"
)

// Tolerance is the half kilogram allowed either side of the declared weight.
var Tolerance = decimal.RequireFromString("0.5")

// Size is the pricing view of a basket size.
type Size struct {
	WeightKg     decimal.Decimal
	CatalogPrice decimal.Decimal
}

// Line is one fruit in a composition.
type Line struct {
	FruitID    string          `json:"fruitId"`
	QuantityKg decimal.Decimal `json:"quantityKg"`
}

// PricedLine is a Line with the price applied.
type PricedLine struct {
	FruitID    string          `json:"fruitId"`
	Name       string          `json:"name"`
	QuantityKg decimal.Decimal `json:"quantityKg"`
	PricePerKg decimal.Decimal `json:"pricePerKg"`
	LineTotal  decimal.Decimal `json:"lineTotal"`
}

// Fruit is the catalog data the engine needs per fruit.
type Fruit struct {
	Name       string
	PricePerKg decimal.Decimal
}

// Quote is the engine's result.
type Quote struct {
	TotalWeightKg decimal.Decimal `json:"totalWeightKg"`
	BudgetKg      decimal.Decimal `json:"budgetKg"`
	RemainingKg   decimal.Decimal `json:"remainingKg"`
	ComputedPrice decimal.Decimal `json:"computedPrice"`
	CatalogPrice  decimal.Decimal `json:"catalogPrice"`
	Savings       decimal.Decimal `json:"savings"`
	Verdict       Verdict         `json:"verdict"`
	CanAddToCart  bool            `json:"canAddToCart"`
	Lines         []PricedLine    `json:"lines"`
}

// Classify applies the tolerance band to a total weight.
func Classify(totalKg, budgetKg decimal.Decimal) Verdict {
	switch {
	case totalKg.LessThan(budgetKg.Sub(Tolerance)):
		return VerdictUnderFilled
	case totalKg.GreaterThan(budgetKg.Add(Tolerance)):
		return VerdictOverFilled
	default:
		return VerdictComplete
	}
}

// Price computes a quote. Unknown fruits and non-positive quantities are errors;
// an over-filled basket is a valid quote that cannot be added to the cart.
func Price(size Size, lines []Line, fruits map[string]Fruit) (Quote, error) {
	total := decimal.Zero
	computed := decimal.Zero
	priced := make([]PricedLine, 0, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.FruitID)
		fruit, ok := fruits[id]
		if !ok {
			return Quote{}, fmt.Errorf("unknown fruit %q", line.FruitID)
		}
		if !line.QuantityKg.IsPositive() {
			return Quote{}, fmt.Errorf("quantity for %q must be positive", line.FruitID)
		}
		lineTotal := fruit.PricePerKg.Mul(line.QuantityKg).Round(2)
		total = total.Add(line.QuantityKg)
		computed = computed.Add(lineTotal)
		priced = append(priced, PricedLine{
			FruitID:    id,
			Name:       fruit.Name,
			QuantityKg: line.QuantityKg,
			PricePerKg: fruit.PricePerKg,
			LineTotal:  lineTotal,
		})
	}

	verdict := Classify(total, size.WeightKg)
	savings := size.CatalogPrice.Sub(computed)
	if savings.IsNegative() {
		savings = decimal.Zero
	}
	remaining := size.WeightKg.Sub(total)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return Quote{
		TotalWeightKg: total,
		BudgetKg:      size.WeightKg,
		RemainingKg:   remaining,
		ComputedPrice: computed,
		CatalogPrice:  size.CatalogPrice,
		Savings:       savings,
		Verdict:       verdict,
		CanAddToCart:  verdict != VerdictOverFilled && len(priced) > 0,
		Lines:         priced,
	}, nil
}

// PriceCents converts a euro amount to integer cents.
func PriceCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
