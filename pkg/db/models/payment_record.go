package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rmedina-dev/hauldash-backend/pkg/enums"
)

// PaymentRecord tracks the escrow hold for a booking. CorrelationID is stamped
// onto the gateway hold so webhook events can be resolved back to the booking;
// GatewayRef is the fallback lookup when the correlation metadata is missing.
type PaymentRecord struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID         uuid.UUID           `gorm:"column:booking_id;type:uuid;not null;unique"`
	CorrelationID     uuid.UUID           `gorm:"column:correlation_id;type:uuid;not null;unique"`
	Status            enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'uninitiated'"`
	GatewayRef        *string             `gorm:"column:gateway_ref;unique"`
	AuthorizedCents   int64               `gorm:"column:authorized_cents;not null;default:0"`
	CapturedCents     int64               `gorm:"column:captured_cents;not null;default:0"`
	RefundedCents     int64               `gorm:"column:refunded_cents;not null;default:0"`
	LastEventSequence int64               `gorm:"column:last_event_sequence;not null;default:0"`
	FailureReason     *string             `gorm:"column:failure_reason"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
