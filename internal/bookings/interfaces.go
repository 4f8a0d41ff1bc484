package bookings

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rmedina-dev/hauldash-backend/pkg/db/models"
	"github.com/rmedina-dev/hauldash-backend/pkg/pagination"
)

// Repository defines persistence operations for bookings and listings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateBooking(ctx context.Context, booking *models.Booking) (*models.Booking, error)
	FindBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
	FindListing(ctx context.Context, listingID uuid.UUID) (*models.Listing, error)
	SaveTransition(ctx context.Context, booking *models.Booking, expectedVersion int64) error
	ListBookings(ctx context.Context, filters BookingFilters, params pagination.Params) (*BookingList, error)
}
