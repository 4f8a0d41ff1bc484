package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/rmedina-dev/hauldash-backend/internal/bookings"
	"github.com/rmedina-dev/hauldash-backend/internal/escrow"
	"github.com/rmedina-dev/hauldash-backend/pkg/db/models"
	"github.com/rmedina-dev/hauldash-backend/pkg/enums"
	pkgerrors "github.com/rmedina-dev/hauldash-backend/pkg/errors"
	"github.com/rmedina-dev/hauldash-backend/pkg/logger"
	"github.com/rmedina-dev/hauldash-backend/pkg/metrics"
	"github.com/rmedina-dev/hauldash-backend/pkg/outbox"
	"github.com/rmedina-dev/hauldash-backend/pkg/outbox/payloads"
	pkgstripe "github.com/rmedina-dev/hauldash-backend/pkg/stripe"
)

const providerStripe = "stripe"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service reconciles asynchronous gateway notifications into payment records
// and their booking mirrors. Signature verification and the redis guard run
// upstream in the controller; everything here happens inside one database
// transaction so the ledger entry and the state change land together or not
// at all.
type Service struct {
	bookings bookings.Repository
	payments escrow.Repository
	ledger   LedgerRepository
	tx       txRunner
	outbox   outboxPublisher
	metrics  *metrics.WebhookMetrics
	logg     *logger.Logger
	now      func() time.Time
}

type ServiceParams struct {
	BookingRepo       bookings.Repository
	PaymentRepo       escrow.Repository
	LedgerRepo        LedgerRepository
	TransactionRunner txRunner
	Outbox            outboxPublisher
	Metrics           *metrics.WebhookMetrics
	Logger            *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.BookingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "booking repo required")
	}
	if params.PaymentRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment repo required")
	}
	if params.LedgerRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	return &Service{
		bookings: params.BookingRepo,
		payments: params.PaymentRepo,
		ledger:   params.LedgerRepo,
		tx:       params.TransactionRunner,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

// paymentIntentPayload is the slice of a Stripe payment intent the reconciler
// reads.
type paymentIntentPayload struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// chargePayload is the slice of a Stripe charge the reconciler reads.
// AmountRefunded is the gateway's cumulative total, not a delta.
type chargePayload struct {
	ID             string            `json:"id"`
	PaymentIntent  string            `json:"payment_intent"`
	AmountRefunded int64             `json:"amount_refunded"`
	Metadata       map[string]string `json:"metadata"`
}

// Ingest applies one verified gateway event. The returned outcome decides the
// HTTP status upstream: only a transient failure may prompt redelivery.
func (s *Service) Ingest(ctx context.Context, event *stripe.Event) (enums.IngestOutcome, error) {
	if event == nil || event.Data == nil {
		return enums.IngestTransientFailure, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	kind, ok := enums.ParseStripeEventType(string(event.Type))
	if !ok {
		return enums.IngestTransientFailure, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("unhandled stripe event type %s", event.Type))
	}

	start := s.now()
	outcome, err := s.ingest(ctx, event, kind)
	if s.metrics != nil {
		s.metrics.IncIngested(kind.String(), outcome.String())
		s.metrics.ObserveIngest(kind.String(), s.now().Sub(start))
	}
	return outcome, err
}

func (s *Service) ingest(ctx context.Context, event *stripe.Event, kind enums.GatewayEventKind) (enums.IngestOutcome, error) {
	var outcome enums.IngestOutcome

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ledger := s.ledger.WithTx(tx)

		if _, err := ledger.FindByGatewayEventID(ctx, providerStripe, event.ID); err == nil {
			outcome = enums.IngestDuplicateIgnored
			return nil
		} else if err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook ledger")
		}

		entry := &models.WebhookLedgerEntry{
			Provider:       providerStripe,
			GatewayEventID: event.ID,
			EventKind:      kind,
			Sequence:       event.Created,
			Payload:        json.RawMessage(event.Data.Raw),
			ReceivedAt:     s.now().UTC(),
		}

		record, err := s.resolveRecord(ctx, tx, kind, event)
		if err != nil {
			return err
		}
		if record == nil {
			// No booking resolves. Record the event and acknowledge; failing
			// the call would only make the gateway redeliver it forever.
			outcome = enums.IngestOrphanEvent
			entry.Outcome = outcome
			return ledger.Append(ctx, entry)
		}
		entry.BookingID = &record.BookingID

		booking, err := s.bookings.WithTx(tx).FindBooking(ctx, record.BookingID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking for webhook")
		}

		switch kind {
		case enums.GatewayEventPaymentSucceeded:
			outcome, err = s.applySucceeded(ctx, tx, booking, record, event)
		case enums.GatewayEventPaymentFailed:
			outcome, err = s.applyFailed(ctx, tx, booking, record, event)
		case enums.GatewayEventChargeRefunded:
			outcome, err = s.applyRefunded(ctx, tx, booking, record, event)
		}
		if err != nil {
			return err
		}

		entry.Outcome = outcome
		return ledger.Append(ctx, entry)
	})
	if err != nil {
		return enums.IngestTransientFailure, err
	}
	return outcome, nil
}

// resolveRecord finds the payment record the event targets. The correlation
// id stamped into the hold metadata is the primary lookup; the stored gateway
// reference is the fallback for events that dropped the metadata.
func (s *Service) resolveRecord(ctx context.Context, tx *gorm.DB, kind enums.GatewayEventKind, event *stripe.Event) (*models.PaymentRecord, error) {
	correlation, gatewayRef, err := extractRefs(kind, event)
	if err != nil {
		return nil, err
	}
	payments := s.payments.WithTx(tx)

	if correlation != "" {
		if correlationID, parseErr := uuid.Parse(correlation); parseErr == nil {
			record, findErr := payments.FindByCorrelationID(ctx, correlationID)
			if findErr == nil {
				return record, nil
			}
			if findErr != gorm.ErrRecordNotFound {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "lookup by correlation id")
			}
		}
	}
	if gatewayRef != "" {
		record, findErr := payments.FindByGatewayRef(ctx, gatewayRef)
		if findErr == nil {
			return record, nil
		}
		if findErr != gorm.ErrRecordNotFound {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "lookup by gateway reference")
		}
	}
	return nil, nil
}

func extractRefs(kind enums.GatewayEventKind, event *stripe.Event) (correlation, gatewayRef string, err error) {
	if kind == enums.GatewayEventChargeRefunded {
		var payload chargePayload
		if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
			return "", "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge payload")
		}
		return payload.Metadata[pkgstripe.MetadataCorrelationID], payload.PaymentIntent, nil
	}
	var payload paymentIntentPayload
	if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent payload")
	}
	return payload.Metadata[pkgstripe.MetadataCorrelationID], payload.ID, nil
}

func (s *Service) applySucceeded(ctx context.Context, tx *gorm.DB, booking *models.Booking, record *models.PaymentRecord, event *stripe.Event) (enums.IngestOutcome, error) {
	if event.Created <= record.LastEventSequence {
		return enums.IngestStaleIgnored, nil
	}
	// A record that already advanced past authorization never moves back.
	if record.Status.Rank() > enums.PaymentStatusAuthorized.Rank() {
		return enums.IngestStaleIgnored, nil
	}

	var payload paymentIntentPayload
	if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent payload")
	}

	updates := map[string]any{
		"status":              enums.PaymentStatusAuthorized,
		"failure_reason":      nil,
		"last_event_sequence": event.Created,
	}
	if payload.Amount > 0 {
		updates["authorized_cents"] = payload.Amount
		record.AuthorizedCents = payload.Amount
	}
	if record.GatewayRef == nil && payload.ID != "" {
		updates["gateway_ref"] = payload.ID
		record.GatewayRef = &payload.ID
	}
	if err := s.payments.WithTx(tx).UpdatePaymentRecord(ctx, record.ID, updates); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save authorized payment")
	}
	record.Status = enums.PaymentStatusAuthorized
	record.FailureReason = nil
	record.LastEventSequence = event.Created

	if booking.PaymentStatus != enums.PaymentStatusAuthorized {
		booking.PaymentStatus = enums.PaymentStatusAuthorized
		if err := s.saveBookingMirror(ctx, tx, booking); err != nil {
			return "", err
		}
	}

	// The synchronous authorize path usually emitted this already under the
	// same correlation key; the conditional emit keeps the webhook from
	// duplicating it.
	err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentAuthorized,
		AggregateType: enums.AggregatePaymentRecord,
		AggregateID:   record.ID,
		DedupeKey:     record.CorrelationID.String(),
		Version:       1,
		Data: payloads.PaymentAuthorizedEvent{
			BookingID:       booking.ID,
			PaymentRecordID: record.ID,
			GatewayRef:      derefString(record.GatewayRef),
			AmountCents:     record.AuthorizedCents,
		},
	})
	if err != nil {
		return "", err
	}
	return enums.IngestApplied, nil
}

func (s *Service) applyFailed(ctx context.Context, tx *gorm.DB, booking *models.Booking, record *models.PaymentRecord, event *stripe.Event) (enums.IngestOutcome, error) {
	if event.Created <= record.LastEventSequence {
		return enums.IngestStaleIgnored, nil
	}
	// Once funds moved, a late failure notification is meaningless.
	if record.Status.Rank() >= enums.PaymentStatusCaptured.Rank() {
		return enums.IngestStaleIgnored, nil
	}

	var payload paymentIntentPayload
	if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent payload")
	}
	reason := "payment failed"
	if payload.LastPaymentError != nil && payload.LastPaymentError.Message != "" {
		reason = payload.LastPaymentError.Message
	}

	updates := map[string]any{
		"status":              enums.PaymentStatusFailed,
		"failure_reason":      reason,
		"last_event_sequence": event.Created,
	}
	if err := s.payments.WithTx(tx).UpdatePaymentRecord(ctx, record.ID, updates); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save failed payment")
	}
	record.Status = enums.PaymentStatusFailed
	record.FailureReason = &reason
	record.LastEventSequence = event.Created

	booking.PaymentStatus = enums.PaymentStatusFailed

	// A pending booking whose hold collapsed cannot be accepted anymore, so
	// it is parked in the cancelled terminal state right here.
	if booking.Status == enums.BookingStatusPending {
		now := s.now().UTC()
		cancelReason := enums.CancellationPaymentFailed
		fee := int64(0)
		booking.Status = enums.BookingStatusCancelled
		booking.CancellationReason = &cancelReason
		booking.CancellationFeeCents = &fee
		booking.CancelledAt = &now

		err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingCancelled,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Version:       1,
			Data: payloads.BookingCancelledEvent{
				BookingID:   booking.ID,
				ConsumerID:  booking.ConsumerID,
				ProviderID:  booking.ProviderID,
				Reason:      cancelReason,
				CancelledAt: now,
			},
		})
		if err != nil {
			return "", err
		}
	}

	if err := s.saveBookingMirror(ctx, tx, booking); err != nil {
		return "", err
	}

	err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregatePaymentRecord,
		AggregateID:   record.ID,
		DedupeKey:     record.CorrelationID.String(),
		Version:       1,
		Data: payloads.PaymentFailedEvent{
			BookingID:       booking.ID,
			PaymentRecordID: record.ID,
			Reason:          reason,
		},
	})
	if err != nil {
		return "", err
	}
	return enums.IngestApplied, nil
}

// applyRefunded merges the gateway's cumulative refund total. Refund events
// are additive and exempt from the sequence guard: a refund is never
// superseded by a later status notification.
func (s *Service) applyRefunded(ctx context.Context, tx *gorm.DB, booking *models.Booking, record *models.PaymentRecord, event *stripe.Event) (enums.IngestOutcome, error) {
	var payload chargePayload
	if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge payload")
	}

	base := record.CapturedCents
	if base == 0 {
		base = record.AuthorizedCents
	}
	totalRefunded := payload.AmountRefunded
	if totalRefunded > base {
		if s.logg != nil {
			s.logg.Warn(ctx, fmt.Sprintf("gateway refund total %d exceeds held %d for record %s", totalRefunded, base, record.ID))
		}
		totalRefunded = base
	}
	if totalRefunded <= record.RefundedCents {
		return enums.IngestDuplicateIgnored, nil
	}

	refundDelta := totalRefunded - record.RefundedCents
	status := enums.PaymentStatusPartiallyRefunded
	if totalRefunded == base {
		status = enums.PaymentStatusRefunded
	}

	updates := map[string]any{
		"status":         status,
		"refunded_cents": totalRefunded,
	}
	if err := s.payments.WithTx(tx).UpdatePaymentRecord(ctx, record.ID, updates); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save refund")
	}
	record.Status = status
	record.RefundedCents = totalRefunded

	if booking.PaymentStatus != status {
		booking.PaymentStatus = status
		if err := s.saveBookingMirror(ctx, tx, booking); err != nil {
			return "", err
		}
	}

	// Keyed on the cumulative total so the event dedupes against the
	// synchronous refund that triggered this notification.
	err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentRefunded,
		AggregateType: enums.AggregatePaymentRecord,
		AggregateID:   record.ID,
		DedupeKey:     fmt.Sprintf("refund-%d", totalRefunded),
		Version:       1,
		Data: payloads.PaymentRefundedEvent{
			BookingID:          booking.ID,
			PaymentRecordID:    record.ID,
			RefundCents:        refundDelta,
			TotalRefundedCents: totalRefunded,
			Status:             status,
		},
	})
	if err != nil {
		return "", err
	}
	return enums.IngestApplied, nil
}

// saveBookingMirror bumps the booking version under the optimistic guard. A
// conflict means a caller transition is racing this event; the resulting
// transient failure makes the gateway redeliver after the race settles.
func (s *Service) saveBookingMirror(ctx context.Context, tx *gorm.DB, booking *models.Booking) error {
	expected := booking.Version
	booking.Version = expected + 1
	return s.bookings.WithTx(tx).SaveTransition(ctx, booking, expected)
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
