package enums

import "fmt"

// CheckoutMode distinguishes one-time baskets from subscriptions.
type CheckoutMode string

const (
	CheckoutModePayment      CheckoutMode = "payment"
	CheckoutModeSubscription CheckoutMode = "subscription"
)

func (m CheckoutMode) IsValid() bool {
	return m == CheckoutModePayment || m == CheckoutModeSubscription
}

func ParseCheckoutMode(value string) (CheckoutMode, error) {
	m := CheckoutMode(value)
	if !m.IsValid() {
		return "", fmt.Errorf("invalid checkout mode %q", value)
	}
	return m, nil
}
