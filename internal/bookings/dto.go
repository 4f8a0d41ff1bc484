package bookings

import (
	"time"

	"github.com/google/uuid"

	"github.com/rmedina-dev/hauldash-backend/pkg/db/models"
	"github.com/rmedina-dev/hauldash-backend/pkg/enums"
	"github.com/rmedina-dev/hauldash-backend/pkg/types"
)

// CreateBookingInput carries everything a consumer submits to open a booking.
type CreateBookingInput struct {
	ConsumerID       uuid.UUID
	ListingID        uuid.UUID
	ScheduledAt      time.Time
	Pickup           types.LatLng
	Dropoff          types.LatLng
	Instructions     *string
	EstimatedMinutes int
	CargoWeightLbs   float64
	// PaymentMethod is the gateway payment method token to confirm the hold
	// with. Empty leaves the hold awaiting client-side confirmation.
	PaymentMethod string
}

// TransitionInput identifies the requested lifecycle change and who asked.
type TransitionInput struct {
	BookingID uuid.UUID
	Target    enums.BookingStatus
	ActorID   uuid.UUID
	Role      enums.ActorRole
	Reason    *enums.CancellationReason
}

// BookingFilters narrow the booking list query.
type BookingFilters struct {
	ConsumerID *uuid.UUID
	ProviderID *uuid.UUID
	Status     *enums.BookingStatus
	Category   *enums.ServiceCategory
	DateFrom   *time.Time
	DateTo     *time.Time
}

// BookingList is one page of bookings plus the cursor for the next page.
type BookingList struct {
	Bookings   []models.Booking `json:"bookings"`
	NextCursor string           `json:"next_cursor,omitempty"`
}
