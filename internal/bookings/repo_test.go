package bookings

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rmedina-dev/hauldash-backend/pkg/db/models"
	"github.com/rmedina-dev/hauldash-backend/pkg/enums"
	pkgerrors "github.com/rmedina-dev/hauldash-backend/pkg/errors"
	"github.com/rmedina-dev/hauldash-backend/pkg/pagination"
)

func setupBookingsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	listings := `
CREATE TABLE IF NOT EXISTS listings (
  id TEXT PRIMARY KEY,
  provider_id TEXT NOT NULL,
  category TEXT NOT NULL,
  title TEXT NOT NULL,
  base_rate_cents INTEGER NOT NULL,
  per_mile_rate_cents INTEGER NOT NULL,
  per_min_rate_cents INTEGER NOT NULL DEFAULT 0,
  max_distance_miles REAL NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	bookings := `
CREATE TABLE IF NOT EXISTS bookings (
  id TEXT PRIMARY KEY,
  consumer_id TEXT NOT NULL,
  provider_id TEXT NOT NULL,
  listing_id TEXT NOT NULL,
  category TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  payment_status TEXT NOT NULL DEFAULT 'uninitiated',
  scheduled_at DATETIME NOT NULL,
  estimated_minutes INTEGER NOT NULL DEFAULT 0,
  pickup_lat REAL NOT NULL,
  pickup_lng REAL NOT NULL,
  dropoff_lat REAL NOT NULL,
  dropoff_lng REAL NOT NULL,
  distance_miles REAL NOT NULL,
  instructions TEXT,
  base_amount_cents INTEGER NOT NULL,
  distance_fee_cents INTEGER NOT NULL,
  category_fee_cents INTEGER NOT NULL,
  surcharge_cents INTEGER NOT NULL DEFAULT 0,
  total_amount_cents INTEGER NOT NULL,
  cancellation_reason TEXT,
  cancelled_by TEXT,
  cancellation_fee_cents INTEGER,
  version INTEGER NOT NULL DEFAULT 1,
  accepted_at DATETIME,
  started_at DATETIME,
  completed_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`

	require.NoError(t, db.Exec(`DROP TABLE IF EXISTS bookings`).Error)
	require.NoError(t, db.Exec(`DROP TABLE IF EXISTS listings`).Error)
	require.NoError(t, db.Exec(listings).Error)
	require.NoError(t, db.Exec(bookings).Error)
	return db
}

func seedBooking(t *testing.T, db *gorm.DB, consumerID uuid.UUID, status enums.BookingStatus, createdAt time.Time) *models.Booking {
	t.Helper()
	booking := &models.Booking{
		ID:               uuid.New(),
		ConsumerID:       consumerID,
		ProviderID:       uuid.New(),
		ListingID:        uuid.New(),
		Category:         enums.CategoryPackageCourier,
		Status:           status,
		PaymentStatus:    enums.PaymentStatusAuthorized,
		ScheduledAt:      createdAt.Add(24 * time.Hour),
		PickupLat:        30.26,
		PickupLng:        -97.74,
		DropoffLat:       30.30,
		DropoffLng:       -97.75,
		DistanceMiles:    2.5,
		BaseAmountCents:  500,
		DistanceFeeCents: 375,
		CategoryFeeCents: 131,
		TotalAmountCents: 1006,
		Version:          1,
		CreatedAt:        createdAt,
	}
	require.NoError(t, db.Create(booking).Error)
	return booking
}

func TestRepositoryFindListing(t *testing.T) {
	db := setupBookingsTestDB(t)
	repo := NewRepository(db)

	listing := &models.Listing{
		ID:               uuid.New(),
		ProviderID:       uuid.New(),
		Category:         enums.CategoryFurnitureMoving,
		Title:            "Two movers and a truck",
		BaseRateCents:    8000,
		PerMileRateCents: 300,
		PerMinRateCents:  100,
		MaxDistanceMiles: 50,
		IsActive:         true,
	}
	require.NoError(t, db.Create(listing).Error)

	found, err := repo.FindListing(context.Background(), listing.ID)
	require.NoError(t, err)
	assert.Equal(t, listing.ProviderID, found.ProviderID)
	assert.Equal(t, enums.CategoryFurnitureMoving, found.Category)

	_, err = repo.FindListing(context.Background(), uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositorySaveTransitionVersionGuard(t *testing.T) {
	db := setupBookingsTestDB(t)
	repo := NewRepository(db)
	booking := seedBooking(t, db, uuid.New(), enums.BookingStatusPending, time.Now().UTC())

	booking.Status = enums.BookingStatusAccepted
	booking.Version = 2
	require.NoError(t, repo.SaveTransition(context.Background(), booking, 1))

	reloaded, err := repo.FindBooking(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStatusAccepted, reloaded.Status)
	assert.Equal(t, int64(2), reloaded.Version)

	// A stale writer presenting the old version must not win.
	booking.Status = enums.BookingStatusCancelled
	booking.Version = 2
	err = repo.SaveTransition(context.Background(), booking, 1)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeVersionConflict, pkgerrors.As(err).Code())

	reloaded, err = repo.FindBooking(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStatusAccepted, reloaded.Status)
}

func TestRepositoryListBookingsPagination(t *testing.T) {
	db := setupBookingsTestDB(t)
	repo := NewRepository(db)
	consumerID := uuid.New()

	base := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	first := seedBooking(t, db, consumerID, enums.BookingStatusPending, base)
	second := seedBooking(t, db, consumerID, enums.BookingStatusPending, base.Add(time.Minute))
	third := seedBooking(t, db, consumerID, enums.BookingStatusPending, base.Add(2*time.Minute))

	filters := BookingFilters{ConsumerID: &consumerID}
	page, err := repo.ListBookings(context.Background(), filters, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Bookings, 2)
	assert.Equal(t, third.ID, page.Bookings[0].ID)
	assert.Equal(t, second.ID, page.Bookings[1].ID)
	require.NotEmpty(t, page.NextCursor)

	rest, err := repo.ListBookings(context.Background(), filters, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Bookings, 1)
	assert.Equal(t, first.ID, rest.Bookings[0].ID)
	assert.Empty(t, rest.NextCursor)
}

func TestRepositoryListBookingsFilters(t *testing.T) {
	db := setupBookingsTestDB(t)
	repo := NewRepository(db)
	consumerID := uuid.New()

	base := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	seedBooking(t, db, consumerID, enums.BookingStatusPending, base)
	cancelled := seedBooking(t, db, consumerID, enums.BookingStatusCancelled, base.Add(time.Minute))
	seedBooking(t, db, uuid.New(), enums.BookingStatusPending, base.Add(2*time.Minute))

	status := enums.BookingStatusCancelled
	page, err := repo.ListBookings(context.Background(), BookingFilters{
		ConsumerID: &consumerID,
		Status:     &status,
	}, pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Bookings, 1)
	assert.Equal(t, cancelled.ID, page.Bookings[0].ID)
}
