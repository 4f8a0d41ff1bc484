package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rmedina-dev/hauldash-backend/pkg/enums"
)

// Booking is the canonical booking record. Status transitions are guarded by
// the booking service and every save bumps Version for optimistic locking.
type Booking struct {
	ID                   uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ConsumerID           uuid.UUID                 `gorm:"column:consumer_id;type:uuid;not null;index"`
	ProviderID           uuid.UUID                 `gorm:"column:provider_id;type:uuid;not null;index"`
	ListingID            uuid.UUID                 `gorm:"column:listing_id;type:uuid;not null"`
	Category             enums.ServiceCategory     `gorm:"column:category;type:service_category;not null"`
	Status               enums.BookingStatus       `gorm:"column:status;type:booking_status;not null;default:'pending'"`
	PaymentStatus        enums.PaymentStatus       `gorm:"column:payment_status;type:payment_status;not null;default:'uninitiated'"`
	ScheduledAt          time.Time                 `gorm:"column:scheduled_at;not null"`
	EstimatedMinutes     int                       `gorm:"column:estimated_minutes;not null;default:0"`
	PickupLat            float64                   `gorm:"column:pickup_lat;type:numeric(9,6);not null"`
	PickupLng            float64                   `gorm:"column:pickup_lng;type:numeric(9,6);not null"`
	DropoffLat           float64                   `gorm:"column:dropoff_lat;type:numeric(9,6);not null"`
	DropoffLng           float64                   `gorm:"column:dropoff_lng;type:numeric(9,6);not null"`
	DistanceMiles        float64                   `gorm:"column:distance_miles;type:numeric(8,2);not null"`
	Instructions         *string                   `gorm:"column:instructions"`
	BaseAmountCents      int64                     `gorm:"column:base_amount_cents;not null"`
	DistanceFeeCents     int64                     `gorm:"column:distance_fee_cents;not null"`
	CategoryFeeCents     int64                     `gorm:"column:category_fee_cents;not null"`
	SurchargeCents       int64                     `gorm:"column:surcharge_cents;not null;default:0"`
	TotalAmountCents     int64                     `gorm:"column:total_amount_cents;not null"`
	CancellationReason   *enums.CancellationReason `gorm:"column:cancellation_reason;type:cancellation_reason"`
	CancelledBy          *enums.ActorRole          `gorm:"column:cancelled_by;type:actor_role"`
	CancellationFeeCents *int64                    `gorm:"column:cancellation_fee_cents"`
	Version              int64                     `gorm:"column:version;not null;default:1"`
	AcceptedAt           *time.Time                `gorm:"column:accepted_at"`
	StartedAt            *time.Time                `gorm:"column:started_at"`
	CompletedAt          *time.Time                `gorm:"column:completed_at"`
	CancelledAt          *time.Time                `gorm:"column:cancelled_at"`
	CreatedAt            time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
