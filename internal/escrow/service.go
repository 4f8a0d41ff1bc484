package escrow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rmedina-dev/hauldash-backend/pkg/db/models"
	"github.com/rmedina-dev/hauldash-backend/pkg/enums"
	pkgerrors "github.com/rmedina-dev/hauldash-backend/pkg/errors"
	"github.com/rmedina-dev/hauldash-backend/pkg/outbox"
	"github.com/rmedina-dev/hauldash-backend/pkg/outbox/payloads"
	"github.com/rmedina-dev/hauldash-backend/pkg/stripe"
)

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// paymentGateway is the slice of the Stripe gateway the coordinator drives.
type paymentGateway interface {
	CreateHold(ctx context.Context, req stripe.HoldRequest) (*stripe.HoldResult, error)
	CaptureHold(ctx context.Context, gatewayRef string, amountCents int64) error
	CancelHold(ctx context.Context, gatewayRef string) error
	RefundCapture(ctx context.Context, gatewayRef string, amountCents int64, correlationID string) error
}

// Service coordinates gateway holds with payment records. Every method runs
// inside the caller's transaction, mutates booking.PaymentStatus in memory,
// and leaves the booking row itself to the booking service. Repeated calls
// for a target status that was already reached return the current record
// without touching the gateway.
type Service interface {
	Authorize(ctx context.Context, tx *gorm.DB, booking *models.Booking, paymentMethod string) (*models.PaymentRecord, error)
	Capture(ctx context.Context, tx *gorm.DB, booking *models.Booking) (*models.PaymentRecord, error)
	Refund(ctx context.Context, tx *gorm.DB, booking *models.Booking, amountCents int64) (*models.PaymentRecord, error)
}

type service struct {
	repo    Repository
	gateway paymentGateway
	outbox  outboxPublisher
}

// NewService builds the escrow coordinator with its required dependencies.
func NewService(repo Repository, gateway paymentGateway, ob outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("escrow repository required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, gateway: gateway, outbox: ob}, nil
}

func (s *service) Authorize(ctx context.Context, tx *gorm.DB, booking *models.Booking, paymentMethod string) (*models.PaymentRecord, error) {
	if booking == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking required")
	}
	repo := s.repo.WithTx(tx)

	record, err := repo.FindByBookingID(ctx, booking.ID)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment record")
	}

	if record != nil {
		switch record.Status {
		case enums.PaymentStatusAuthorized:
			booking.PaymentStatus = enums.PaymentStatusAuthorized
			return record, nil
		case enums.PaymentStatusUninitiated, enums.PaymentStatusFailed:
			// Retry after a decline gets a fresh correlation id so the
			// gateway does not replay the failed attempt.
			record.CorrelationID = uuid.New()
		default:
			return nil, pkgerrors.New(pkgerrors.CodeConflict,
				fmt.Sprintf("cannot authorize a %s payment", record.Status))
		}
	} else {
		record, err = repo.CreatePaymentRecord(ctx, &models.PaymentRecord{
			ID:            uuid.New(),
			BookingID:     booking.ID,
			CorrelationID: uuid.New(),
			Status:        enums.PaymentStatusUninitiated,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment record")
		}
	}

	hold, err := s.gateway.CreateHold(ctx, stripe.HoldRequest{
		BookingID:     booking.ID.String(),
		CorrelationID: record.CorrelationID.String(),
		AmountCents:   booking.TotalAmountCents,
		PaymentMethod: paymentMethod,
	})
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeGatewayRejected) {
			if markErr := s.markFailed(ctx, tx, repo, booking, record, err.Error()); markErr != nil {
				return nil, markErr
			}
		}
		return nil, err
	}

	updates := map[string]any{
		"correlation_id":   record.CorrelationID,
		"status":           enums.PaymentStatusAuthorized,
		"gateway_ref":      hold.GatewayRef,
		"authorized_cents": booking.TotalAmountCents,
		"failure_reason":   nil,
	}
	if err := repo.UpdatePaymentRecord(ctx, record.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save authorized hold")
	}
	record.Status = enums.PaymentStatusAuthorized
	record.GatewayRef = &hold.GatewayRef
	record.AuthorizedCents = booking.TotalAmountCents
	record.FailureReason = nil
	booking.PaymentStatus = enums.PaymentStatusAuthorized

	// Keyed on the correlation id so a retried authorization queues its own
	// event while the webhook mirror of the same attempt stays deduplicated.
	event := outbox.DomainEvent{
		EventType:     enums.EventPaymentAuthorized,
		AggregateType: enums.AggregatePaymentRecord,
		AggregateID:   record.ID,
		DedupeKey:     record.CorrelationID.String(),
		Version:       1,
		Data: payloads.PaymentAuthorizedEvent{
			BookingID:       booking.ID,
			PaymentRecordID: record.ID,
			GatewayRef:      hold.GatewayRef,
			AmountCents:     booking.TotalAmountCents,
		},
	}
	if err := s.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *service) markFailed(ctx context.Context, tx *gorm.DB, repo Repository, booking *models.Booking, record *models.PaymentRecord, reason string) error {
	updates := map[string]any{
		"correlation_id": record.CorrelationID,
		"status":         enums.PaymentStatusFailed,
		"failure_reason": reason,
	}
	if err := repo.UpdatePaymentRecord(ctx, record.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save failed hold")
	}
	record.Status = enums.PaymentStatusFailed
	record.FailureReason = &reason
	booking.PaymentStatus = enums.PaymentStatusFailed

	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
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
}

func (s *service) Capture(ctx context.Context, tx *gorm.DB, booking *models.Booking) (*models.PaymentRecord, error) {
	if booking == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking required")
	}
	repo := s.repo.WithTx(tx)

	record, err := repo.FindByBookingID(ctx, booking.ID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "no payment record for booking")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment record")
	}

	if record.Status == enums.PaymentStatusCaptured {
		booking.PaymentStatus = enums.PaymentStatusCaptured
		return record, nil
	}
	if record.Status != enums.PaymentStatusAuthorized {
		return nil, pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("capture requires an authorized hold, payment is %s", record.Status))
	}
	if record.GatewayRef == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "authorized hold has no gateway reference")
	}

	if err := s.gateway.CaptureHold(ctx, *record.GatewayRef, record.AuthorizedCents); err != nil {
		return nil, err
	}

	updates := map[string]any{
		"status":         enums.PaymentStatusCaptured,
		"captured_cents": record.AuthorizedCents,
	}
	if err := repo.UpdatePaymentRecord(ctx, record.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save captured hold")
	}
	record.Status = enums.PaymentStatusCaptured
	record.CapturedCents = record.AuthorizedCents
	booking.PaymentStatus = enums.PaymentStatusCaptured
	return record, nil
}

func (s *service) Refund(ctx context.Context, tx *gorm.DB, booking *models.Booking, amountCents int64) (*models.PaymentRecord, error) {
	if booking == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking required")
	}
	if amountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must not be negative")
	}
	repo := s.repo.WithTx(tx)

	record, err := repo.FindByBookingID(ctx, booking.ID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "no payment record for booking")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment record")
	}

	if record.Status == enums.PaymentStatusRefunded {
		booking.PaymentStatus = enums.PaymentStatusRefunded
		return record, nil
	}

	switch record.Status {
	case enums.PaymentStatusAuthorized:
		return s.refundHold(ctx, tx, repo, booking, record, amountCents)
	case enums.PaymentStatusCaptured, enums.PaymentStatusPartiallyRefunded:
		return s.refundCapture(ctx, tx, repo, booking, record, amountCents)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("no funds held for a %s payment", record.Status))
	}
}

// refundHold settles a hold that was never captured. A full refund voids the
// hold outright; a partial refund captures only the retained fee, which
// releases the remainder of the hold on the gateway side.
func (s *service) refundHold(ctx context.Context, tx *gorm.DB, repo Repository, booking *models.Booking, record *models.PaymentRecord, amountCents int64) (*models.PaymentRecord, error) {
	if amountCents > record.AuthorizedCents {
		return nil, pkgerrors.New(pkgerrors.CodeRefundExceedsCaptured,
			fmt.Sprintf("refund %d exceeds authorized %d", amountCents, record.AuthorizedCents))
	}
	if record.GatewayRef == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "authorized hold has no gateway reference")
	}

	feeCents := record.AuthorizedCents - amountCents
	updates := map[string]any{}

	if feeCents == 0 {
		if err := s.gateway.CancelHold(ctx, *record.GatewayRef); err != nil {
			return nil, err
		}
		record.Status = enums.PaymentStatusRefunded
		record.RefundedCents = record.AuthorizedCents
		updates["status"] = record.Status
		updates["refunded_cents"] = record.RefundedCents
	} else {
		if err := s.gateway.CaptureHold(ctx, *record.GatewayRef, feeCents); err != nil {
			return nil, err
		}
		record.CapturedCents = feeCents
		record.RefundedCents = amountCents
		if amountCents == 0 {
			record.Status = enums.PaymentStatusCaptured
		} else {
			record.Status = enums.PaymentStatusPartiallyRefunded
		}
		updates["status"] = record.Status
		updates["captured_cents"] = record.CapturedCents
		updates["refunded_cents"] = record.RefundedCents
	}

	if err := repo.UpdatePaymentRecord(ctx, record.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save refunded hold")
	}
	booking.PaymentStatus = record.Status

	if amountCents > 0 {
		if err := s.emitRefund(ctx, tx, booking, record, amountCents); err != nil {
			return nil, err
		}
	}
	return record, nil
}

func (s *service) refundCapture(ctx context.Context, tx *gorm.DB, repo Repository, booking *models.Booking, record *models.PaymentRecord, amountCents int64) (*models.PaymentRecord, error) {
	remaining := record.CapturedCents - record.RefundedCents
	if amountCents > remaining {
		return nil, pkgerrors.New(pkgerrors.CodeRefundExceedsCaptured,
			fmt.Sprintf("refund %d exceeds remaining captured %d", amountCents, remaining))
	}
	if amountCents == 0 {
		booking.PaymentStatus = record.Status
		return record, nil
	}
	if record.GatewayRef == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "captured payment has no gateway reference")
	}

	// Each refund step needs its own gateway idempotency key; keying on the
	// cumulative total means a retry of this step replays, while the next
	// partial refund issues a fresh gateway call.
	refundKey := fmt.Sprintf("%s-refund-%d", record.CorrelationID, record.RefundedCents+amountCents)
	if err := s.gateway.RefundCapture(ctx, *record.GatewayRef, amountCents, refundKey); err != nil {
		return nil, err
	}

	record.RefundedCents += amountCents
	if record.RefundedCents == record.CapturedCents {
		record.Status = enums.PaymentStatusRefunded
	} else {
		record.Status = enums.PaymentStatusPartiallyRefunded
	}
	updates := map[string]any{
		"status":         record.Status,
		"refunded_cents": record.RefundedCents,
	}
	if err := repo.UpdatePaymentRecord(ctx, record.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save refund")
	}
	booking.PaymentStatus = record.Status

	if err := s.emitRefund(ctx, tx, booking, record, amountCents); err != nil {
		return nil, err
	}
	return record, nil
}

// emitRefund queues a payment_refunded event keyed on the cumulative refunded
// total, so successive partial refunds each get an event while the webhook
// echo of the same refund is absorbed.
func (s *service) emitRefund(ctx context.Context, tx *gorm.DB, booking *models.Booking, record *models.PaymentRecord, amountCents int64) error {
	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentRefunded,
		AggregateType: enums.AggregatePaymentRecord,
		AggregateID:   record.ID,
		DedupeKey:     fmt.Sprintf("refund-%d", record.RefundedCents),
		Version:       1,
		Data: payloads.PaymentRefundedEvent{
			BookingID:          booking.ID,
			PaymentRecordID:    record.ID,
			RefundCents:        amountCents,
			TotalRefundedCents: record.RefundedCents,
			Status:             record.Status,
		},
	})
}
