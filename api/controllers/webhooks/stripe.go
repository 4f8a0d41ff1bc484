package webhooks

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/rmedina-dev/hauldash-backend/api/responses"
	"github.com/rmedina-dev/hauldash-backend/pkg/enums"
	pkgerrors "github.com/rmedina-dev/hauldash-backend/pkg/errors"
	"github.com/rmedina-dev/hauldash-backend/pkg/logger"
)

type StripeWebhookService interface {
	Ingest(ctx context.Context, event *stripe.Event) (enums.IngestOutcome, error)
}

type stripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type stripeClient interface {
	SigningSecret() string
}

// StripeWebhook verifies and ingests gateway payment events. Event types
// outside the reconciler's set are acknowledged and dropped here so the
// gateway stops redelivering them.
func StripeWebhook(svc StripeWebhookService, client stripeClient, guard stripeWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignatureInvalid, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEvent(payload, sigHeader, client.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeSignatureInvalid, err, "verify signature"))
			return
		}

		if _, handled := enums.ParseStripeEventType(string(event.Type)); !handled {
			if logg != nil {
				logg.Info(ctx, fmt.Sprintf("stripe event %s ignored: unhandled type %s", event.ID, event.Type))
			}
			responses.WriteSuccess(w, nil)
			return
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, map[string]string{"outcome": enums.IngestDuplicateIgnored.String()})
			return
		}

		outcome, err := svc.Ingest(ctx, &event)
		if err != nil || !outcome.Acknowledged() {
			// Release the guard key so the gateway's redelivery is not
			// swallowed by the fast path.
			_ = guard.Delete(ctx, event.ID)
			if err == nil {
				err = pkgerrors.New(pkgerrors.CodeDependency, "webhook ingestion incomplete")
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("stripe event %s ingested: %s", event.ID, outcome))
		}
		responses.WriteSuccess(w, map[string]string{"outcome": outcome.String()})
	}
}
