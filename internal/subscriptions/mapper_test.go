package subscriptions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/corbeille/corbeille-backend/pkg/db/models"
	"github.com/corbeille/corbeille-backend/pkg/enums"
)

func TestExternalStateFromStripe(t *testing.T) {
	periodEnd := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	state := ExternalStateFromStripe(&stripe.Subscription{
		Status:            stripe.SubscriptionStatusPastDue,
		CancelAtPeriodEnd: true,
		Customer:          &stripe.Customer{ID: "cus_9"},
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{
			CurrentPeriodEnd: periodEnd.Unix(),
			Price:            &stripe.Price{ID: "price_month"},
		}}},
	})
	assert.Equal(t, "past_due", state.Status)
	assert.Equal(t, "cus_9", state.CustomerID)
	assert.Equal(t, "price_month", state.PriceID)
	assert.Equal(t, periodEnd.Unix(), state.CurrentPeriodEnd)
	assert.Equal(t, ExternalState{}, ExternalStateFromStripe(nil))
}

func TestApplyExternalStateMirrorsWithoutDeactivating(t *testing.T) {
	sub := &models.Subscription{IsActive: true}
	ApplyExternalState(sub, ExternalState{
		Status:            "canceled",
		CancelAtPeriodEnd: true,
		CurrentPeriodEnd:  time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC).Unix(),
	})
	assert.True(t, sub.IsActive)
	assert.True(t, sub.CancelAtPeriodEnd)
	require.NotNil(t, sub.ExternalStatus)
	assert.Equal(t, enums.SubscriptionStatusCanceled, *sub.ExternalStatus)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, time.May, sub.CurrentPeriodEnd.Month())
	assert.Nil(t, sub.CanceledAt)
}

func TestApplyExternalStateIgnoresUnknownStatus(t *testing.T) {
	active := enums.SubscriptionStatusActive
	sub := &models.Subscription{ExternalStatus: &active}
	ApplyExternalState(sub, ExternalState{Status: "mystery"})
	assert.Equal(t, enums.SubscriptionStatusActive, *sub.ExternalStatus)
}
