package subscriptions

import (
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/corbeille/corbeille-backend/pkg/db/models"
	"github.com/corbeille/corbeille-backend/pkg/enums"
)

// ExternalState is the billing provider's view of a subscription.
type ExternalState struct {
	Status            string
	CurrentPeriodEnd  int64
	CancelAtPeriodEnd bool
	CanceledAt        int64
	CustomerID        string
	PriceID           string
}

// ExternalStateFromStripe flattens a Stripe subscription. Billing periods
// live on the first item.
func ExternalStateFromStripe(sub *stripe.Subscription) ExternalState {
	if sub == nil {
		return ExternalState{}
	}
	state := ExternalState{
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CanceledAt:        sub.CanceledAt,
	}
	if sub.Customer != nil {
		state.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0] != nil {
		item := sub.Items.Data[0]
		state.CurrentPeriodEnd = item.CurrentPeriodEnd
		if item.Price != nil {
			state.PriceID = item.Price.ID
		}
	}
	return state
}

// ApplyExternalState mirrors provider fields onto the local record. It never
// touches IsActive: only an explicit end event or local cancel does.
func ApplyExternalState(target *models.Subscription, state ExternalState) {
	if target == nil {
		return
	}
	if status, ok := mapExternalStatus(state.Status); ok {
		target.ExternalStatus = &status
	}
	target.CurrentPeriodEnd = unixPtr(state.CurrentPeriodEnd)
	target.CancelAtPeriodEnd = state.CancelAtPeriodEnd
	target.CanceledAt = unixPtr(state.CanceledAt)
	if id := strings.TrimSpace(state.CustomerID); id != "" {
		target.StripeCustomerID = &id
	}
	if id := strings.TrimSpace(state.PriceID); id != "" {
		target.PriceID = &id
	}
}

func mapExternalStatus(raw string) (enums.SubscriptionStatus, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return "", false
	}
	status, err := enums.ParseSubscriptionStatus(normalized)
	if err != nil {
		return "", false
	}
	return status, true
}

func unixPtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
