package webhooks

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/corbeille/corbeille-backend/api/responses"
	stripewebhook "github.com/corbeille/corbeille-backend/internal/webhooks/stripe"
	pkgerrors "github.com/corbeille/corbeille-backend/pkg/errors"
	"github.com/corbeille/corbeille-backend/pkg/logger"
	"github.com/corbeille/corbeille-backend/pkg/metrics"
)

// Event payloads are a few KiB; 1MiB leaves room for large invoices.
const maxWebhookBody = 1 << 20

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (stripewebhook.Outcome, error)
}

// StripeWebhookGuard is the fast-path replay filter in front of the reconciler.
type StripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type stripeClient interface {
	SigningSecret() string
}

type webhookRecorder interface {
	Observe(eventType, outcome string, elapsed time.Duration)
}

type stripeAck struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

// StripeWebhook verifies and applies Stripe payment lifecycle events. The
// guard is optional; the reconciler dedupes durably on its own.
func StripeWebhook(svc StripeWebhookService, client stripeClient, guard StripeWebhookGuard, recorder webhookRecorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := time.Now()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConfiguration, "webhook service unavailable"))
			return
		}
		if client == nil || client.SigningSecret() == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConfiguration, "stripe signing secret unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			observe(recorder, "", metrics.OutcomeRejected, start)
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignature, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEventWithOptions(payload, sigHeader, client.SigningSecret(), webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			observe(recorder, "", metrics.OutcomeRejected, start)
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeSignature, err, "invalid stripe signature"))
			return
		}
		eventType := string(event.Type)

		if guard != nil {
			seen, err := guard.CheckAndMark(ctx, event.ID)
			if err != nil {
				// Redis is an optimisation; fall through to the durable check.
				if logg != nil {
					logg.Warn(logg.WithField(logg.WithEventID(ctx, event.ID), "reason", err.Error()), "stripe.webhook.guard_unavailable")
				}
			} else if seen {
				observe(recorder, eventType, metrics.OutcomeDuplicate, start)
				responses.WriteSuccess(w, stripeAck{Received: true, Outcome: metrics.OutcomeDuplicate})
				return
			}
		}

		outcome, err := svc.HandleEvent(ctx, &event)
		if err != nil {
			if guard != nil {
				_ = guard.Delete(context.WithoutCancel(ctx), event.ID)
			}
			observe(recorder, eventType, metrics.OutcomeFailed, start)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		observe(recorder, eventType, string(outcome), start)
		responses.WriteSuccess(w, stripeAck{Received: true, Outcome: string(outcome)})
	}
}

func observe(recorder webhookRecorder, eventType, outcome string, start time.Time) {
	if recorder == nil {
		return
	}
	recorder.Observe(eventType, outcome, time.Since(start))
}
