package stripewebhook

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v84"
)

// expandableID accepts either a bare id or an expanded object carrying one.
type expandableID string

func (e *expandableID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*e = expandableID(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = expandableID(obj.ID)
	return nil
}

type customerDetails struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type totalDetails struct {
	AmountDiscount int64 `json:"amount_discount"`
}

// checkoutSession is the subset of checkout.session the reconciler reads.
type checkoutSession struct {
	ID              string            `json:"id"`
	Mode            string            `json:"mode"`
	PaymentStatus   string            `json:"payment_status"`
	Customer        expandableID      `json:"customer"`
	Subscription    expandableID      `json:"subscription"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerDetails *customerDetails  `json:"customer_details"`
	AmountSubtotal  int64             `json:"amount_subtotal"`
	AmountTotal     int64             `json:"amount_total"`
	TotalDetails    *totalDetails     `json:"total_details"`
	Metadata        map[string]string `json:"metadata"`
}

func (c checkoutSession) email() string {
	if c.CustomerDetails != nil && c.CustomerDetails.Email != "" {
		return c.CustomerDetails.Email
	}
	return c.CustomerEmail
}

func (c checkoutSession) discountCents() int64 {
	if c.TotalDetails == nil {
		return 0
	}
	return c.TotalDetails.AmountDiscount
}

type invoiceParent struct {
	SubscriptionDetails *struct {
		Subscription expandableID `json:"subscription"`
	} `json:"subscription_details"`
}

// invoice is the subset of an invoice the reconciler reads. The subscription
// moved under parent.subscription_details in recent API versions; the
// top-level field is still honoured for older payloads.
type invoice struct {
	ID            string         `json:"id"`
	BillingReason string         `json:"billing_reason"`
	AmountDue     int64          `json:"amount_due"`
	AmountPaid    int64          `json:"amount_paid"`
	CustomerEmail string         `json:"customer_email"`
	Customer      expandableID   `json:"customer"`
	Subscription  expandableID   `json:"subscription"`
	Parent        *invoiceParent `json:"parent"`
}

func (i invoice) subscriptionID() string {
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil && i.Parent.SubscriptionDetails.Subscription != "" {
		return string(i.Parent.SubscriptionDetails.Subscription)
	}
	return string(i.Subscription)
}

func (i invoice) isRenewal() bool {
	return i.BillingReason == string(stripe.InvoiceBillingReasonSubscriptionCycle)
}

func decodeObject[T any](event *stripe.Event) (*T, error) {
	if event == nil || event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("event data missing")
	}
	var out T
	if err := json.Unmarshal(event.Data.Raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", event.Type, err)
	}
	return &out, nil
}
