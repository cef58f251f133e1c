// Package stripewebhook applies Stripe payment-lifecycle events to local
// orders and subscriptions.
package stripewebhook

import (
	"github.com/stripe/stripe-go/v84"

	"github.com/corbeille/corbeille-backend/pkg/metrics"
)

// EventKind is the closed set of Stripe events the reconciler understands.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindCheckoutCompleted
	KindInvoicePaymentSucceeded
	KindInvoicePaymentFailed
	KindSubscriptionUpdated
	KindSubscriptionDeleted
	KindPaymentIntentSucceeded
	KindPaymentIntentFailed
)

var kindNames = map[EventKind]string{
	KindUnknown:                 "unknown",
	KindCheckoutCompleted:       "checkout_completed",
	KindInvoicePaymentSucceeded: "invoice_payment_succeeded",
	KindInvoicePaymentFailed:    "invoice_payment_failed",
	KindSubscriptionUpdated:     "subscription_updated",
	KindSubscriptionDeleted:     "subscription_deleted",
	KindPaymentIntentSucceeded:  "payment_intent_succeeded",
	KindPaymentIntentFailed:     "payment_intent_failed",
}

func (k EventKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ClassifyEvent maps a Stripe event type onto an EventKind.
func ClassifyEvent(eventType stripe.EventType) EventKind {
	switch eventType {
	case stripe.EventTypeCheckoutSessionCompleted:
		return KindCheckoutCompleted
	case stripe.EventTypeInvoicePaymentSucceeded:
		return KindInvoicePaymentSucceeded
	case stripe.EventTypeInvoicePaymentFailed:
		return KindInvoicePaymentFailed
	case stripe.EventTypeCustomerSubscriptionUpdated:
		return KindSubscriptionUpdated
	case stripe.EventTypeCustomerSubscriptionDeleted:
		return KindSubscriptionDeleted
	case stripe.EventTypePaymentIntentSucceeded:
		return KindPaymentIntentSucceeded
	case stripe.EventTypePaymentIntentPaymentFailed:
		return KindPaymentIntentFailed
	default:
		return KindUnknown
	}
}

// Outcome is how a delivery ended; values double as metric labels.
type Outcome string

const (
	OutcomeProcessed Outcome = metrics.OutcomeProcessed
	OutcomeDuplicate Outcome = metrics.OutcomeDuplicate
	OutcomeIgnored   Outcome = metrics.OutcomeIgnored
)
