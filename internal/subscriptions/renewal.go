package subscriptions

import (
	"fmt"
	"strings"
	"time"

	"github.com/corbeille/corbeille-backend/pkg/calendar"
	"github.com/corbeille/corbeille-backend/pkg/enums"
	pkgerrors "github.com/corbeille/corbeille-backend/pkg/errors"
)

// NextDeliveryAfter advances a delivery date by one billing cycle.
// Monthly keeps the day-of-month and lets short months roll over, so
// Jan 31 becomes early March.
func NextDeliveryAfter(current time.Time, frequency enums.Frequency) (time.Time, error) {
	switch frequency {
	case enums.FrequencyWeekly:
		return calendar.AddDays(current, 7), nil
	case enums.FrequencyBiweekly:
		return calendar.AddDays(current, 14), nil
	case enums.FrequencyMonthly:
		return calendar.AddMonths(current, 1), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported frequency %q", frequency)
	}
}

// NextDeliveryFromCurrent is NextDeliveryAfter over YYYY-MM-DD strings.
func NextDeliveryFromCurrent(currentISODate string, frequency enums.Frequency) (string, error) {
	current, err := calendar.ParseISODate(currentISODate)
	if err != nil {
		return "", err
	}
	next, err := NextDeliveryAfter(current, frequency)
	if err != nil {
		return "", err
	}
	return calendar.FormatISODate(next), nil
}

// PricePlans maps each frequency to the billing provider's recurring price.
type PricePlans map[enums.Frequency]string

// NewPricePlans reads the configured plan references keyed by frequency name.
func NewPricePlans(raw map[string]string) PricePlans {
	plans := PricePlans{}
	for key, priceID := range raw {
		freq, err := enums.ParseFrequency(key)
		if err != nil || strings.TrimSpace(priceID) == "" {
			continue
		}
		plans[freq] = strings.TrimSpace(priceID)
	}
	return plans
}

// PriceIDForFrequency never falls back to another plan: a missing reference
// is a configuration error for this request.
func (p PricePlans) PriceIDForFrequency(frequency enums.Frequency) (string, error) {
	if !frequency.IsValid() {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "unknown frequency %q", frequency)
	}
	priceID, ok := p[frequency]
	if !ok || priceID == "" {
		return "", pkgerrors.Newf(pkgerrors.CodeConfiguration, "no billing plan configured for %s subscriptions", frequency)
	}
	return priceID, nil
}

// FrequencyForPrice is the reverse lookup used when the provider reports a price.
func (p PricePlans) FrequencyForPrice(priceID string) (enums.Frequency, bool) {
	for freq, candidate := range p {
		if candidate == priceID {
			return freq, true
		}
	}
	return "", false
}
