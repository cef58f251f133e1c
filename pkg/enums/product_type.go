package enums

import "fmt"

// ProductType tags what an order line refers to.
type ProductType string

const (
	ProductBasket       ProductType = "basket"
	ProductCustomBasket ProductType = "custom_basket"
	ProductFruit        ProductType = "fruit"
)

var validProductTypes = []ProductType{
	ProductBasket,
	ProductCustomBasket,
	ProductFruit,
}

func (p ProductType) IsValid() bool {
	for _, candidate := range validProductTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

func ParseProductType(value string) (ProductType, error) {
	for _, candidate := range validProductTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product type %q", value)
}
