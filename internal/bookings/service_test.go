package bookings

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rmedina-dev/hauldash-backend/internal/eligibility"
	"github.com/rmedina-dev/hauldash-backend/internal/pricing"
	"github.com/rmedina-dev/hauldash-backend/pkg/db/models"
	"github.com/rmedina-dev/hauldash-backend/pkg/enums"
	pkgerrors "github.com/rmedina-dev/hauldash-backend/pkg/errors"
	"github.com/rmedina-dev/hauldash-backend/pkg/geo"
	"github.com/rmedina-dev/hauldash-backend/pkg/outbox"
	"github.com/rmedina-dev/hauldash-backend/pkg/pagination"
	"github.com/rmedina-dev/hauldash-backend/pkg/types"
)

var (
	testClock     = time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	testSchedule  = time.Date(2026, time.March, 11, 10, 0, 0, 0, time.UTC)
	austinPickup  = types.LatLng{Lat: 30.2672, Lng: -97.7431}
	austinDropoff = types.LatLng{Lat: 30.3005, Lng: -97.7522}
	serviceArea   = geo.Circle{Center: austinPickup, RadiusMiles: 25}
	dallasDropoff = types.LatLng{Lat: 32.7767, Lng: -96.7970}
)

type stubBookingsRepo struct {
	listing   *models.Listing
	booking   *models.Booking
	created   *models.Booking
	lastSaved models.Booking
	saveCalls int
	saveErrs  []error
}

func (s *stubBookingsRepo) WithTx(tx *gorm.DB) Repository {
	return s
}

func (s *stubBookingsRepo) CreateBooking(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = testClock
	}
	s.created = booking
	return booking, nil
}

func (s *stubBookingsRepo) FindBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	if s.booking == nil || s.booking.ID != bookingID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s.booking
	return &copied, nil
}

func (s *stubBookingsRepo) FindListing(ctx context.Context, listingID uuid.UUID) (*models.Listing, error) {
	if s.listing == nil || s.listing.ID != listingID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.listing, nil
}

func (s *stubBookingsRepo) SaveTransition(ctx context.Context, booking *models.Booking, expectedVersion int64) error {
	s.saveCalls++
	if len(s.saveErrs) > 0 {
		err := s.saveErrs[0]
		s.saveErrs = s.saveErrs[1:]
		if err != nil {
			return err
		}
	}
	s.lastSaved = *booking
	if s.booking != nil && s.booking.ID == booking.ID {
		*s.booking = *booking
	}
	return nil
}

func (s *stubBookingsRepo) ListBookings(ctx context.Context, filters BookingFilters, params pagination.Params) (*BookingList, error) {
	list := &BookingList{}
	if s.booking == nil {
		return list, nil
	}
	if filters.ConsumerID != nil && *filters.ConsumerID != s.booking.ConsumerID {
		return list, nil
	}
	if filters.ProviderID != nil && *filters.ProviderID != s.booking.ProviderID {
		return list, nil
	}
	list.Bookings = []models.Booking{*s.booking}
	return list, nil
}

type stubOutboxPublisher struct {
	events []outbox.DomainEvent
	err    error
}

func (s *stubOutboxPublisher) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *stubOutboxPublisher) lastEvent(t *testing.T) outbox.DomainEvent {
	t.Helper()
	if len(s.events) == 0 {
		t.Fatal("expected at least one outbox event")
	}
	return s.events[len(s.events)-1]
}

type stubEscrow struct {
	authorizeErr   error
	captureErr     error
	refundErr      error
	authorizeCalls int
	captureCalls   int
	refundAmounts  []int64
	paymentMethods []string
}

func (s *stubEscrow) Authorize(ctx context.Context, tx *gorm.DB, booking *models.Booking, paymentMethod string) (*models.PaymentRecord, error) {
	s.authorizeCalls++
	s.paymentMethods = append(s.paymentMethods, paymentMethod)
	if s.authorizeErr != nil {
		booking.PaymentStatus = enums.PaymentStatusFailed
		return nil, s.authorizeErr
	}
	booking.PaymentStatus = enums.PaymentStatusAuthorized
	return &models.PaymentRecord{
		ID:              uuid.New(),
		BookingID:       booking.ID,
		Status:          enums.PaymentStatusAuthorized,
		AuthorizedCents: booking.TotalAmountCents,
	}, nil
}

func (s *stubEscrow) Capture(ctx context.Context, tx *gorm.DB, booking *models.Booking) (*models.PaymentRecord, error) {
	s.captureCalls++
	if s.captureErr != nil {
		return nil, s.captureErr
	}
	booking.PaymentStatus = enums.PaymentStatusCaptured
	return &models.PaymentRecord{
		BookingID:     booking.ID,
		Status:        enums.PaymentStatusCaptured,
		CapturedCents: booking.TotalAmountCents,
	}, nil
}

func (s *stubEscrow) Refund(ctx context.Context, tx *gorm.DB, booking *models.Booking, amountCents int64) (*models.PaymentRecord, error) {
	s.refundAmounts = append(s.refundAmounts, amountCents)
	if s.refundErr != nil {
		return nil, s.refundErr
	}
	if amountCents >= booking.TotalAmountCents {
		booking.PaymentStatus = enums.PaymentStatusRefunded
	} else {
		booking.PaymentStatus = enums.PaymentStatusPartiallyRefunded
	}
	return &models.PaymentRecord{
		BookingID:     booking.ID,
		Status:        booking.PaymentStatus,
		RefundedCents: amountCents,
	}, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newTestService(t *testing.T, repo Repository, ob *stubOutboxPublisher, escrow *stubEscrow) *service {
	t.Helper()

	validator, err := eligibility.NewValidator(eligibility.Params{
		Area:        serviceArea,
		MinLeadTime: time.Hour,
		Now:         func() time.Time { return testClock },
	})
	if err != nil {
		t.Fatalf("validator constructor failed: %v", err)
	}
	engine, err := pricing.NewEngine(pricing.DefaultConfig())
	if err != nil {
		t.Fatalf("pricing constructor failed: %v", err)
	}

	svc, err := NewService(repo, stubTxRunner{}, ob, escrow, validator, engine, testBookingConfig())
	if err != nil {
		t.Fatalf("service constructor failed: %v", err)
	}
	impl := svc.(*service)
	impl.now = func() time.Time { return testClock }
	return impl
}

func activeListing(providerID uuid.UUID) *models.Listing {
	return &models.Listing{
		ID:               uuid.New(),
		ProviderID:       providerID,
		Category:         enums.CategoryPackageCourier,
		Title:            "Same-day courier",
		BaseRateCents:    500,
		PerMileRateCents: 150,
		PerMinRateCents:  0,
		MaxDistanceMiles: 40,
		IsActive:         true,
	}
}

func TestCreateBooking(t *testing.T) {
	providerID := uuid.New()
	consumerID := uuid.New()
	repo := &stubBookingsRepo{listing: activeListing(providerID)}
	ob := &stubOutboxPublisher{}
	escrow := &stubEscrow{}
	svc := newTestService(t, repo, ob, escrow)

	booking, err := svc.CreateBooking(context.Background(), CreateBookingInput{
		ConsumerID:    consumerID,
		ListingID:     repo.listing.ID,
		ScheduledAt:   testSchedule,
		Pickup:        austinPickup,
		Dropoff:       austinDropoff,
		PaymentMethod: "pm_card_visa",
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if booking.Status != enums.BookingStatusPending {
		t.Fatalf("expected pending got %s", booking.Status)
	}
	if booking.PaymentStatus != enums.PaymentStatusAuthorized {
		t.Fatalf("expected authorized got %s", booking.PaymentStatus)
	}
	if booking.ProviderID != providerID {
		t.Fatalf("provider not copied from listing")
	}
	if booking.DistanceMiles <= 0 {
		t.Fatalf("expected computed distance got %f", booking.DistanceMiles)
	}
	sum := booking.BaseAmountCents + booking.DistanceFeeCents + booking.SurchargeCents + booking.CategoryFeeCents
	if booking.TotalAmountCents != sum {
		t.Fatalf("total %d does not equal component sum %d", booking.TotalAmountCents, sum)
	}
	if booking.Version != 2 {
		t.Fatalf("expected version 2 after authorization got %d", booking.Version)
	}
	if escrow.authorizeCalls != 1 {
		t.Fatalf("expected one authorize call got %d", escrow.authorizeCalls)
	}
	if escrow.paymentMethods[0] != "pm_card_visa" {
		t.Fatalf("payment method not forwarded: %q", escrow.paymentMethods[0])
	}
	if len(ob.events) != 1 || ob.events[0].EventType != enums.EventBookingCreated {
		t.Fatalf("expected a single booking_created event got %+v", ob.events)
	}
}

func TestCreateBookingDeclineCancelsBooking(t *testing.T) {
	providerID := uuid.New()
	repo := &stubBookingsRepo{listing: activeListing(providerID)}
	ob := &stubOutboxPublisher{}
	escrow := &stubEscrow{
		authorizeErr: pkgerrors.New(pkgerrors.CodeGatewayRejected, "card declined"),
	}
	svc := newTestService(t, repo, ob, escrow)

	_, err := svc.CreateBooking(context.Background(), CreateBookingInput{
		ConsumerID:  uuid.New(),
		ListingID:   repo.listing.ID,
		ScheduledAt: testSchedule,
		Pickup:      austinPickup,
		Dropoff:     austinDropoff,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeGatewayRejected) {
		t.Fatalf("expected gateway rejection got %v", err)
	}
	if repo.lastSaved.Status != enums.BookingStatusCancelled {
		t.Fatalf("expected booking cancelled got %s", repo.lastSaved.Status)
	}
	if repo.lastSaved.CancellationReason == nil || *repo.lastSaved.CancellationReason != enums.CancellationPaymentFailed {
		t.Fatalf("expected payment_failed reason got %v", repo.lastSaved.CancellationReason)
	}
	last := ob.lastEvent(t)
	if last.EventType != enums.EventBookingCancelled {
		t.Fatalf("expected booking_cancelled event got %s", last.EventType)
	}
}

func TestCreateBookingRejectsIneligibleRoute(t *testing.T) {
	repo := &stubBookingsRepo{listing: activeListing(uuid.New())}
	ob := &stubOutboxPublisher{}
	svc := newTestService(t, repo, ob, &stubEscrow{})

	_, err := svc.CreateBooking(context.Background(), CreateBookingInput{
		ConsumerID:  uuid.New(),
		ListingID:   repo.listing.ID,
		ScheduledAt: testSchedule,
		Pickup:      austinPickup,
		Dropoff:     dallasDropoff,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeEligibility) {
		t.Fatalf("expected eligibility rejection got %v", err)
	}
	if repo.created != nil {
		t.Fatal("booking must not be persisted when ineligible")
	}
	if len(ob.events) != 0 {
		t.Fatal("no events expected for a rejected request")
	}
}

func TestCreateBookingInactiveListing(t *testing.T) {
	listing := activeListing(uuid.New())
	listing.IsActive = false
	repo := &stubBookingsRepo{listing: listing}
	svc := newTestService(t, repo, &stubOutboxPublisher{}, &stubEscrow{})

	_, err := svc.CreateBooking(context.Background(), CreateBookingInput{
		ConsumerID:  uuid.New(),
		ListingID:   listing.ID,
		ScheduledAt: testSchedule,
		Pickup:      austinPickup,
		Dropoff:     austinDropoff,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error got %v", err)
	}
}

func pendingBooking(consumerID, providerID uuid.UUID, payment enums.PaymentStatus) *models.Booking {
	return &models.Booking{
		ID:               uuid.New(),
		ConsumerID:       consumerID,
		ProviderID:       providerID,
		ListingID:        uuid.New(),
		Category:         enums.CategoryPackageCourier,
		Status:           enums.BookingStatusPending,
		PaymentStatus:    payment,
		ScheduledAt:      testSchedule,
		TotalAmountCents: 10000,
		Version:          2,
		CreatedAt:        testClock.Add(-3 * time.Hour),
	}
}

func TestRequestTransitionAccept(t *testing.T) {
	providerID := uuid.New()
	repo := &stubBookingsRepo{booking: pendingBooking(uuid.New(), providerID, enums.PaymentStatusAuthorized)}
	ob := &stubOutboxPublisher{}
	svc := newTestService(t, repo, ob, &stubEscrow{})

	booking, err := svc.RequestTransition(context.Background(), TransitionInput{
		BookingID: repo.booking.ID,
		Target:    enums.BookingStatusAccepted,
		ActorID:   providerID,
		Role:      enums.RoleProvider,
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if booking.Status != enums.BookingStatusAccepted {
		t.Fatalf("expected accepted got %s", booking.Status)
	}
	if booking.AcceptedAt == nil {
		t.Fatal("expected accepted_at to be set")
	}
	if booking.Version != 3 {
		t.Fatalf("expected version bump to 3 got %d", booking.Version)
	}
	last := ob.lastEvent(t)
	if last.EventType != enums.EventBookingAccepted {
		t.Fatalf("expected booking_accepted event got %s", last.EventType)
	}
}

func TestRequestTransitionAcceptRequiresAuthorizedPayment(t *testing.T) {
	providerID := uuid.New()
	repo := &stubBookingsRepo{booking: pendingBooking(uuid.New(), providerID, enums.PaymentStatusUninitiated)}
	svc := newTestService(t, repo, &stubOutboxPublisher{}, &stubEscrow{})

	_, err := svc.RequestTransition(context.Background(), TransitionInput{
		BookingID: repo.booking.ID,
		Target:    enums.BookingStatusAccepted,
		ActorID:   providerID,
		Role:      enums.RoleProvider,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("expected invalid transition got %v", err)
	}
}

func TestRequestTransitionRejectsUnknownEdge(t *testing.T) {
	providerID := uuid.New()
	booking := pendingBooking(uuid.New(), providerID, enums.PaymentStatusAuthorized)
	booking.Status = enums.BookingStatusCompleted
	repo := &stubBookingsRepo{booking: booking}
	svc := newTestService(t, repo, &stubOutboxPublisher{}, &stubEscrow{})

	_, err := svc.RequestTransition(context.Background(), TransitionInput{
		BookingID: booking.ID,
		Target:    enums.BookingStatusCancelled,
		ActorID:   providerID,
		Role:      enums.RoleProvider,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInvalidTransition {
		t.Fatalf("expected invalid transition got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected from/to details got %v", typed.Details())
	}
	if details["from"] != enums.BookingStatusCompleted || details["to"] != enums.BookingStatusCancelled {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestRequestTransitionRejectsWrongRole(t *testing.T) {
	consumerID := uuid.New()
	repo := &stubBookingsRepo{booking: pendingBooking(consumerID, uuid.New(), enums.PaymentStatusAuthorized)}
	svc := newTestService(t, repo, &stubOutboxPublisher{}, &stubEscrow{})

	_, err := svc.RequestTransition(context.Background(), TransitionInput{
		BookingID: repo.booking.ID,
		Target:    enums.BookingStatusAccepted,
		ActorID:   consumerID,
		Role:      enums.RoleConsumer,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized got %v", err)
	}
}

func TestRequestTransitionRejectsForeignProvider(t *testing.T) {
	repo := &stubBookingsRepo{booking: pendingBooking(uuid.New(), uuid.New(), enums.PaymentStatusAuthorized)}
	svc := newTestService(t, repo, &stubOutboxPublisher{}, &stubEscrow{})

	_, err := svc.RequestTransition(context.Background(), TransitionInput{
		BookingID: repo.booking.ID,
		Target:    enums.BookingStatusAccepted,
		ActorID:   uuid.New(),
		Role:      enums.RoleProvider,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden got %v", err)
	}
}

func TestRequestTransitionCompleteCapturesFunds(t *testing.T) {
	providerID := uuid.New()
	booking := pendingBooking(uuid.New(), providerID, enums.PaymentStatusAuthorized)
	booking.Status = enums.BookingStatusInProgress
	repo := &stubBookingsRepo{booking: booking}
	ob := &stubOutboxPublisher{}
	escrow := &stubEscrow{}
	svc := newTestService(t, repo, ob, escrow)

	updated, err := svc.RequestTransition(context.Background(), TransitionInput{
		BookingID: booking.ID,
		Target:    enums.BookingStatusCompleted,
		ActorID:   providerID,
		Role:      enums.RoleProvider,
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if escrow.captureCalls != 1 {
		t.Fatalf("expected one capture call got %d", escrow.captureCalls)
	}
	if updated.Status != enums.BookingStatusCompleted {
		t.Fatalf("expected completed got %s", updated.Status)
	}
	if updated.PaymentStatus != enums.PaymentStatusCaptured {
		t.Fatalf("expected captured got %s", updated.PaymentStatus)
	}
	if updated.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
}

func TestRequestTransitionCancelAppliesFeePolicy(t *testing.T) {
	consumerID := uuid.New()
	booking := pendingBooking(consumerID, uuid.New(), enums.PaymentStatusAuthorized)
	booking.Status = enums.BookingStatusAccepted
	// Twelve hours to the slot puts this in the 50% tier once the grace
	// window has lapsed.
	booking.CreatedAt = testClock.Add(-5 * time.Hour)
	booking.ScheduledAt = testClock.Add(12 * time.Hour)
	repo := &stubBookingsRepo{booking: booking}
	ob := &stubOutboxPublisher{}
	escrow := &stubEscrow{}
	svc := newTestService(t, repo, ob, escrow)

	updated, err := svc.RequestTransition(context.Background(), TransitionInput{
		BookingID: booking.ID,
		Target:    enums.BookingStatusCancelled,
		ActorID:   consumerID,
		Role:      enums.RoleConsumer,
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if len(escrow.refundAmounts) != 1 || escrow.refundAmounts[0] != 5000 {
		t.Fatalf("expected 5000 cent refund got %v", escrow.refundAmounts)
	}
	if updated.CancellationFeeCents == nil || *updated.CancellationFeeCents != 5000 {
		t.Fatalf("expected 5000 cent fee got %v", updated.CancellationFeeCents)
	}
	if updated.CancellationReason == nil || *updated.CancellationReason != enums.CancellationConsumerRequested {
		t.Fatalf("expected consumer_requested got %v", updated.CancellationReason)
	}
	last := ob.lastEvent(t)
	if last.EventType != enums.EventBookingCancelled {
		t.Fatalf("expected booking_cancelled event got %s", last.EventType)
	}
}

func TestRequestTransitionEmergencyCancelOnly(t *testing.T) {
	providerID := uuid.New()
	booking := pendingBooking(uuid.New(), providerID, enums.PaymentStatusAuthorized)
	booking.Status = enums.BookingStatusInProgress
	repo := &stubBookingsRepo{booking: booking}
	escrow := &stubEscrow{}
	svc := newTestService(t, repo, &stubOutboxPublisher{}, escrow)

	_, err := svc.RequestTransition(context.Background(), TransitionInput{
		BookingID: booking.ID,
		Target:    enums.BookingStatusCancelled,
		ActorID:   providerID,
		Role:      enums.RoleProvider,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("expected invalid transition without emergency reason got %v", err)
	}

	emergency := enums.CancellationEmergency
	updated, err := svc.RequestTransition(context.Background(), TransitionInput{
		BookingID: booking.ID,
		Target:    enums.BookingStatusCancelled,
		ActorID:   providerID,
		Role:      enums.RoleProvider,
		Reason:    &emergency,
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if len(escrow.refundAmounts) != 1 || escrow.refundAmounts[0] != booking.TotalAmountCents {
		t.Fatalf("expected full refund got %v", escrow.refundAmounts)
	}
	if updated.CancellationFeeCents == nil || *updated.CancellationFeeCents != 0 {
		t.Fatalf("expected zero fee got %v", updated.CancellationFeeCents)
	}
}

func TestRequestTransitionSchedulerWaitsForSlot(t *testing.T) {
	providerID := uuid.New()
	booking := pendingBooking(uuid.New(), providerID, enums.PaymentStatusAuthorized)
	booking.Status = enums.BookingStatusAccepted
	booking.ScheduledAt = testClock.Add(2 * time.Hour)
	repo := &stubBookingsRepo{booking: booking}
	svc := newTestService(t, repo, &stubOutboxPublisher{}, &stubEscrow{})

	_, err := svc.RequestTransition(context.Background(), TransitionInput{
		BookingID: booking.ID,
		Target:    enums.BookingStatusInProgress,
		ActorID:   uuid.New(),
		Role:      enums.RoleScheduler,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("expected invalid transition before the slot got %v", err)
	}

	// A provider may start early.
	updated, err := svc.RequestTransition(context.Background(), TransitionInput{
		BookingID: booking.ID,
		Target:    enums.BookingStatusInProgress,
		ActorID:   providerID,
		Role:      enums.RoleProvider,
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if updated.StartedAt == nil {
		t.Fatal("expected started_at to be set")
	}
}

func TestRequestTransitionRetriesOnVersionConflict(t *testing.T) {
	providerID := uuid.New()
	repo := &stubBookingsRepo{
		booking: pendingBooking(uuid.New(), providerID, enums.PaymentStatusAuthorized),
		saveErrs: []error{
			pkgerrors.New(pkgerrors.CodeVersionConflict, "booking was modified concurrently"),
			pkgerrors.New(pkgerrors.CodeVersionConflict, "booking was modified concurrently"),
		},
	}
	svc := newTestService(t, repo, &stubOutboxPublisher{}, &stubEscrow{})

	booking, err := svc.RequestTransition(context.Background(), TransitionInput{
		BookingID: repo.booking.ID,
		Target:    enums.BookingStatusAccepted,
		ActorID:   providerID,
		Role:      enums.RoleProvider,
	})
	if err != nil {
		t.Fatalf("expected retry to succeed got %v", err)
	}
	if repo.saveCalls != 3 {
		t.Fatalf("expected 3 save attempts got %d", repo.saveCalls)
	}
	if booking.Status != enums.BookingStatusAccepted {
		t.Fatalf("expected accepted got %s", booking.Status)
	}
}

func TestRequestTransitionExhaustsRetries(t *testing.T) {
	providerID := uuid.New()
	conflict := pkgerrors.New(pkgerrors.CodeVersionConflict, "booking was modified concurrently")
	repo := &stubBookingsRepo{
		booking:  pendingBooking(uuid.New(), providerID, enums.PaymentStatusAuthorized),
		saveErrs: []error{conflict, conflict, conflict},
	}
	svc := newTestService(t, repo, &stubOutboxPublisher{}, &stubEscrow{})

	_, err := svc.RequestTransition(context.Background(), TransitionInput{
		BookingID: repo.booking.ID,
		Target:    enums.BookingStatusAccepted,
		ActorID:   providerID,
		Role:      enums.RoleProvider,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeVersionConflict) {
		t.Fatalf("expected conflict after exhausted retries got %v", err)
	}
}

func TestRequestTransitionBusinessConflictIsNotRetried(t *testing.T) {
	providerID := uuid.New()
	booking := pendingBooking(uuid.New(), providerID, enums.PaymentStatusAuthorized)
	booking.Status = enums.BookingStatusInProgress
	repo := &stubBookingsRepo{booking: booking}
	escrow := &stubEscrow{
		captureErr: pkgerrors.New(pkgerrors.CodeConflict, "capture requires an authorized hold, payment is refunded"),
	}
	svc := newTestService(t, repo, &stubOutboxPublisher{}, escrow)

	_, err := svc.RequestTransition(context.Background(), TransitionInput{
		BookingID: booking.ID,
		Target:    enums.BookingStatusCompleted,
		ActorID:   providerID,
		Role:      enums.RoleProvider,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected business conflict got %v", err)
	}
	if escrow.captureCalls != 1 {
		t.Fatalf("business conflicts must not re-run escrow, got %d capture calls", escrow.captureCalls)
	}
}

func TestGetBookingOwnership(t *testing.T) {
	consumerID := uuid.New()
	repo := &stubBookingsRepo{booking: pendingBooking(consumerID, uuid.New(), enums.PaymentStatusAuthorized)}
	svc := newTestService(t, repo, &stubOutboxPublisher{}, &stubEscrow{})

	if _, err := svc.GetBooking(context.Background(), repo.booking.ID, consumerID, enums.RoleConsumer); err != nil {
		t.Fatalf("owner read failed: %v", err)
	}
	_, err := svc.GetBooking(context.Background(), repo.booking.ID, uuid.New(), enums.RoleConsumer)
	if !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden got %v", err)
	}
	if _, err := svc.GetBooking(context.Background(), repo.booking.ID, uuid.New(), enums.RoleAdmin); err != nil {
		t.Fatalf("admin read failed: %v", err)
	}
}

func TestListBookingsScopesByRole(t *testing.T) {
	consumerID := uuid.New()
	repo := &stubBookingsRepo{booking: pendingBooking(consumerID, uuid.New(), enums.PaymentStatusAuthorized)}
	svc := newTestService(t, repo, &stubOutboxPublisher{}, &stubEscrow{})

	list, err := svc.ListBookings(context.Background(), consumerID, enums.RoleConsumer, BookingFilters{}, pagination.Params{})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if len(list.Bookings) != 1 {
		t.Fatalf("expected the consumer's booking got %d rows", len(list.Bookings))
	}

	other, err := svc.ListBookings(context.Background(), uuid.New(), enums.RoleConsumer, BookingFilters{}, pagination.Params{})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if len(other.Bookings) != 0 {
		t.Fatalf("expected no rows for a different consumer got %d", len(other.Bookings))
	}
}
