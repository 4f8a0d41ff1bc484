package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/refund"

	"github.com/rmedina-dev/hauldash-backend/pkg/config"
	pkgerrors "github.com/rmedina-dev/hauldash-backend/pkg/errors"
	"github.com/rmedina-dev/hauldash-backend/pkg/logger"
	"github.com/rmedina-dev/hauldash-backend/pkg/metrics"
)

const (
	// MetadataCorrelationID is stamped onto every hold so webhook events
	// can be traced back to the originating payment record.
	MetadataCorrelationID = "correlation_id"
	// MetadataBookingID carries the booking the funds are held against.
	MetadataBookingID = "booking_id"

	defaultCurrency = "usd"
)

type paymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

type refundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type liveIntents struct{}

func (liveIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return paymentintent.New(params)
}

func (liveIntents) Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error) {
	return paymentintent.Capture(id, params)
}

func (liveIntents) Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	return paymentintent.Cancel(id, params)
}

type liveRefunds struct{}

func (liveRefunds) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	return refund.New(params)
}

// HoldRequest describes the authorization to place against a booking.
type HoldRequest struct {
	BookingID     string
	CorrelationID string
	AmountCents   int64
	Currency      string
	PaymentMethod string
}

// HoldResult reports the gateway reference of a placed hold.
type HoldResult struct {
	GatewayRef string
	Status     string
}

// Gateway performs the escrow operations against Stripe. Calls are bounded by
// the configured timeout and transient failures are retried with exponential
// backoff; declines surface immediately.
type Gateway struct {
	client  *Client
	cfg     config.GatewayConfig
	logg    *logger.Logger
	metrics *metrics.GatewayMetrics
	intents paymentIntentAPI
	refunds refundAPI
}

// NewGateway wires the gateway against the live Stripe bindings. A nil metrics
// receiver is allowed and turns recording into a no-op.
func NewGateway(client *Client, cfg config.GatewayConfig, logg *logger.Logger, m *metrics.GatewayMetrics) (*Gateway, error) {
	if client == nil {
		return nil, errors.New("stripe client is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Gateway{
		client:  client,
		cfg:     cfg,
		logg:    logg,
		metrics: m,
		intents: liveIntents{},
		refunds: liveRefunds{},
	}, nil
}

// CreateHold places a manual-capture authorization for the full booking
// amount. The correlation id doubles as the Stripe idempotency key, so a
// retried call returns the original intent instead of double-authorizing.
func (g *Gateway) CreateHold(ctx context.Context, req HoldRequest) (*HoldResult, error) {
	if req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hold amount must be positive")
	}
	if strings.TrimSpace(req.CorrelationID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "correlation id is required")
	}

	currency := req.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	var intent *stripe.PaymentIntent
	err := g.withRetry(ctx, "create hold", func(callCtx context.Context) error {
		params := &stripe.PaymentIntentParams{
			Params:        stripe.Params{Context: callCtx},
			Amount:        stripe.Int64(req.AmountCents),
			Currency:      stripe.String(currency),
			CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		}
		if req.PaymentMethod != "" {
			params.PaymentMethod = stripe.String(req.PaymentMethod)
			params.Confirm = stripe.Bool(true)
		}
		params.AddMetadata(MetadataCorrelationID, req.CorrelationID)
		params.AddMetadata(MetadataBookingID, req.BookingID)
		params.SetIdempotencyKey(req.CorrelationID)

		created, err := g.intents.New(params)
		if err != nil {
			return err
		}
		intent = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &HoldResult{GatewayRef: intent.ID, Status: string(intent.Status)}, nil
}

// CaptureHold captures up to amountCents from a previously placed hold. An
// intent is only ever captured once, so the idempotency key derives from the
// intent itself and a replayed call returns the original capture.
func (g *Gateway) CaptureHold(ctx context.Context, gatewayRef string, amountCents int64) error {
	if strings.TrimSpace(gatewayRef) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway ref is required")
	}
	return g.withRetry(ctx, "capture hold", func(callCtx context.Context) error {
		params := &stripe.PaymentIntentCaptureParams{
			Params: stripe.Params{Context: callCtx},
		}
		if amountCents > 0 {
			params.AmountToCapture = stripe.Int64(amountCents)
		}
		params.SetIdempotencyKey("capture-" + gatewayRef)
		_, err := g.intents.Capture(gatewayRef, params)
		return err
	})
}

// CancelHold voids an uncaptured authorization. Keyed like CaptureHold: one
// cancellation per intent.
func (g *Gateway) CancelHold(ctx context.Context, gatewayRef string) error {
	if strings.TrimSpace(gatewayRef) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway ref is required")
	}
	return g.withRetry(ctx, "cancel hold", func(callCtx context.Context) error {
		params := &stripe.PaymentIntentCancelParams{
			Params: stripe.Params{Context: callCtx},
		}
		params.SetIdempotencyKey("cancel-" + gatewayRef)
		_, err := g.intents.Cancel(gatewayRef, params)
		return err
	})
}

// RefundCapture refunds amountCents of captured funds back to the consumer.
func (g *Gateway) RefundCapture(ctx context.Context, gatewayRef string, amountCents int64, correlationID string) error {
	if strings.TrimSpace(gatewayRef) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway ref is required")
	}
	if amountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	return g.withRetry(ctx, "refund capture", func(callCtx context.Context) error {
		params := &stripe.RefundParams{
			Params:        stripe.Params{Context: callCtx},
			PaymentIntent: stripe.String(gatewayRef),
			Amount:        stripe.Int64(amountCents),
		}
		if correlationID != "" {
			params.AddMetadata(MetadataCorrelationID, correlationID)
			params.SetIdempotencyKey(correlationID)
		}
		_, err := g.refunds.New(params)
		return err
	})
}

// withRetry runs fn under the call timeout, retrying transient failures only.
func (g *Gateway) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	err := g.retryLoop(ctx, op, fn)
	g.metrics.ObserveDuration(op, time.Since(start))
	if err != nil {
		g.metrics.IncFailure(op)
	} else {
		g.metrics.IncSuccess(op)
	}
	return err
}

func (g *Gateway) retryLoop(ctx context.Context, op string, fn func(context.Context) error) error {
	backoff := g.cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		callCtx := ctx
		var cancel context.CancelFunc
		if g.cfg.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, g.cfg.CallTimeout)
		}
		err := fn(callCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}

		if !isTransient(err) {
			return classify(op, err)
		}
		lastErr = err

		if g.logg != nil {
			g.logg.Warn(ctx, fmt.Sprintf("stripe %s attempt %d/%d failed: %v", op, attempt, g.cfg.MaxAttempts, err))
		}
		if attempt == g.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return pkgerrors.Wrap(pkgerrors.CodePaymentUnavailable, ctx.Err(), op)
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return pkgerrors.Wrap(pkgerrors.CodePaymentUnavailable, lastErr, op)
}

// isTransient reports whether the failure is worth retrying. Card declines and
// other 4xx business rejections never are.
func isTransient(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == 429 {
			return true
		}
		return stripeErr.HTTPStatusCode >= 500
	}
	// Non-API errors are transport failures (timeouts, connection resets).
	return true
}

func classify(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Type == stripe.ErrorTypeCard {
			return pkgerrors.Wrap(pkgerrors.CodeGatewayRejected, err, op)
		}
		if stripeErr.HTTPStatusCode == 402 {
			return pkgerrors.Wrap(pkgerrors.CodeGatewayRejected, err, op)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
	}
	return pkgerrors.Wrap(pkgerrors.CodePaymentUnavailable, err, op)
}
