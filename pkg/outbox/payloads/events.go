package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/rmedina-dev/hauldash-backend/pkg/enums"
)

// BookingCreatedEvent signals a new booking entered the pending state.
type BookingCreatedEvent struct {
	BookingID        uuid.UUID             `json:"booking_id"`
	ConsumerID       uuid.UUID             `json:"consumer_id"`
	ProviderID       uuid.UUID             `json:"provider_id"`
	Category         enums.ServiceCategory `json:"category"`
	ScheduledAt      time.Time             `json:"scheduled_at"`
	TotalAmountCents int64                 `json:"total_amount_cents"`
}

// BookingTransitionEvent is emitted for accept/start/complete transitions.
type BookingTransitionEvent struct {
	BookingID     uuid.UUID           `json:"booking_id"`
	ConsumerID    uuid.UUID           `json:"consumer_id"`
	ProviderID    uuid.UUID           `json:"provider_id"`
	FromStatus    enums.BookingStatus `json:"from_status"`
	ToStatus      enums.BookingStatus `json:"to_status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
}

// BookingCancelledEvent carries the cancellation outcome including the fee.
type BookingCancelledEvent struct {
	BookingID            uuid.UUID                `json:"booking_id"`
	ConsumerID           uuid.UUID                `json:"consumer_id"`
	ProviderID           uuid.UUID                `json:"provider_id"`
	Reason               enums.CancellationReason `json:"reason"`
	CancelledBy          enums.ActorRole          `json:"cancelled_by"`
	CancellationFeeCents int64                    `json:"cancellation_fee_cents"`
	RefundCents          int64                    `json:"refund_cents"`
	CancelledAt          time.Time                `json:"cancelled_at"`
}

// PaymentAuthorizedEvent reports a hold placed against a booking.
type PaymentAuthorizedEvent struct {
	BookingID       uuid.UUID `json:"booking_id"`
	PaymentRecordID uuid.UUID `json:"payment_record_id"`
	GatewayRef      string    `json:"gateway_ref"`
	AmountCents     int64     `json:"amount_cents"`
}

// PaymentFailedEvent reports an authorization or capture failure.
type PaymentFailedEvent struct {
	BookingID       uuid.UUID `json:"booking_id"`
	PaymentRecordID uuid.UUID `json:"payment_record_id"`
	Reason          string    `json:"reason,omitempty"`
}

// PaymentRefundedEvent reports funds returned to the consumer.
type PaymentRefundedEvent struct {
	BookingID          uuid.UUID           `json:"booking_id"`
	PaymentRecordID    uuid.UUID           `json:"payment_record_id"`
	RefundCents        int64               `json:"refund_cents"`
	TotalRefundedCents int64               `json:"total_refunded_cents"`
	Status             enums.PaymentStatus `json:"status"`
}
