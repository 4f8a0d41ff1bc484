package bookings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rmedina-dev/hauldash-backend/internal/eligibility"
	"github.com/rmedina-dev/hauldash-backend/internal/pricing"
	"github.com/rmedina-dev/hauldash-backend/pkg/config"
	"github.com/rmedina-dev/hauldash-backend/pkg/db/models"
	"github.com/rmedina-dev/hauldash-backend/pkg/enums"
	pkgerrors "github.com/rmedina-dev/hauldash-backend/pkg/errors"
	"github.com/rmedina-dev/hauldash-backend/pkg/geo"
	"github.com/rmedina-dev/hauldash-backend/pkg/outbox"
	"github.com/rmedina-dev/hauldash-backend/pkg/outbox/payloads"
	"github.com/rmedina-dev/hauldash-backend/pkg/pagination"
)

// maxTransitionAttempts bounds the optimistic-lock retry loop. Two retries is
// enough for a race on a single booking; past that the conflict surfaces.
const maxTransitionAttempts = 3

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// escrowCoordinator drives the payment side effects of lifecycle transitions.
// Implementations mutate booking.PaymentStatus in memory and persist the
// payment record inside the caller's transaction; the booking row itself is
// saved by this service.
type escrowCoordinator interface {
	Authorize(ctx context.Context, tx *gorm.DB, booking *models.Booking, paymentMethod string) (*models.PaymentRecord, error)
	Capture(ctx context.Context, tx *gorm.DB, booking *models.Booking) (*models.PaymentRecord, error)
	Refund(ctx context.Context, tx *gorm.DB, booking *models.Booking, amountCents int64) (*models.PaymentRecord, error)
}

// Service owns the booking lifecycle. Every status write in the system goes
// through CreateBooking or RequestTransition.
type Service interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (*models.Booking, error)
	RequestTransition(ctx context.Context, input TransitionInput) (*models.Booking, error)
	GetBooking(ctx context.Context, bookingID, actorID uuid.UUID, role enums.ActorRole) (*models.Booking, error)
	ListBookings(ctx context.Context, actorID uuid.UUID, role enums.ActorRole, filters BookingFilters, params pagination.Params) (*BookingList, error)
}

type service struct {
	repo        Repository
	tx          txRunner
	outbox      outboxPublisher
	escrow      escrowCoordinator
	eligibility *eligibility.Validator
	pricing     *pricing.Engine
	cfg         config.BookingConfig
	now         func() time.Time
}

// NewService builds the booking service with its required dependencies.
func NewService(repo Repository, tx txRunner, ob outboxPublisher, escrow escrowCoordinator, validator *eligibility.Validator, engine *pricing.Engine, cfg config.BookingConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("bookings repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if escrow == nil {
		return nil, fmt.Errorf("escrow coordinator required")
	}
	if validator == nil {
		return nil, fmt.Errorf("eligibility validator required")
	}
	if engine == nil {
		return nil, fmt.Errorf("pricing engine required")
	}
	return &service{
		repo:        repo,
		tx:          tx,
		outbox:      ob,
		escrow:      escrow,
		eligibility: validator,
		pricing:     engine,
		cfg:         cfg,
		now:         time.Now,
	}, nil
}

func (s *service) CreateBooking(ctx context.Context, input CreateBookingInput) (*models.Booking, error) {
	if input.ConsumerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "consumer identity missing")
	}
	if input.ListingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id required")
	}
	if input.ScheduledAt.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "scheduled time required")
	}
	if err := input.Pickup.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pickup coordinate")
	}
	if err := input.Dropoff.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid dropoff coordinate")
	}
	if input.EstimatedMinutes < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "estimated minutes must not be negative")
	}
	if input.Instructions != nil && len(*input.Instructions) > s.cfg.InstructionsMaxLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("instructions exceed %d characters", s.cfg.InstructionsMaxLen))
	}

	listing, err := s.repo.FindListing(ctx, input.ListingID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	if !listing.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing is not active")
	}

	distance := geo.DistanceMiles(input.Pickup, input.Dropoff)

	result := s.eligibility.Validate(eligibility.Request{
		Pickup:                  input.Pickup,
		Dropoff:                 input.Dropoff,
		Category:                listing.Category,
		ScheduledAt:             input.ScheduledAt,
		DistanceMiles:           distance,
		CargoWeightLbs:          input.CargoWeightLbs,
		ListingMaxDistanceMiles: listing.MaxDistanceMiles,
	})
	if !result.OK {
		return nil, eligibility.RejectionError(result)
	}

	breakdown, err := s.pricing.ComputePrice(pricing.RateCard{
		BaseCents:      listing.BaseRateCents,
		PerMileCents:   listing.PerMileRateCents,
		PerMinuteCents: listing.PerMinRateCents,
	}, distance, input.EstimatedMinutes, listing.Category, input.ScheduledAt)
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		ID:               uuid.New(),
		ConsumerID:       input.ConsumerID,
		ProviderID:       listing.ProviderID,
		ListingID:        listing.ID,
		Category:         listing.Category,
		Status:           enums.BookingStatusPending,
		PaymentStatus:    enums.PaymentStatusUninitiated,
		ScheduledAt:      input.ScheduledAt.UTC(),
		EstimatedMinutes: input.EstimatedMinutes,
		PickupLat:        input.Pickup.Lat,
		PickupLng:        input.Pickup.Lng,
		DropoffLat:       input.Dropoff.Lat,
		DropoffLng:       input.Dropoff.Lng,
		DistanceMiles:    distance,
		Instructions:     input.Instructions,
		BaseAmountCents:  breakdown.BaseCents,
		DistanceFeeCents: breakdown.VariableCents,
		CategoryFeeCents: breakdown.PlatformFeeCents,
		SurchargeCents:   breakdown.SurchargeCents,
		TotalAmountCents: breakdown.TotalCents,
		Version:          1,
	}

	var declineErr error
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.CreateBooking(ctx, booking); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create booking")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventBookingCreated,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Version:       1,
			Actor:         buildActor(input.ConsumerID, enums.RoleConsumer),
			Data: payloads.BookingCreatedEvent{
				BookingID:        booking.ID,
				ConsumerID:       booking.ConsumerID,
				ProviderID:       booking.ProviderID,
				Category:         booking.Category,
				ScheduledAt:      booking.ScheduledAt,
				TotalAmountCents: booking.TotalAmountCents,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		record, err := s.escrow.Authorize(ctx, tx, booking, input.PaymentMethod)
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeGatewayRejected) {
				// Business decline: commit the booking as cancelled rather
				// than rolling the whole creation back.
				declineErr = err
				return s.cancelAfterDecline(ctx, tx, repo, booking)
			}
			return err
		}

		booking.PaymentStatus = record.Status
		expected := booking.Version
		booking.Version = expected + 1
		return repo.SaveTransition(ctx, booking, expected)
	})
	if err != nil {
		return nil, err
	}
	if declineErr != nil {
		return nil, declineErr
	}
	return booking, nil
}

// cancelAfterDecline parks a freshly created booking in the cancelled terminal
// state after the gateway refused the hold. Nothing was captured, so there is
// no fee and no refund to move.
func (s *service) cancelAfterDecline(ctx context.Context, tx *gorm.DB, repo Repository, booking *models.Booking) error {
	now := s.now().UTC()
	reason := enums.CancellationPaymentFailed
	fee := int64(0)

	booking.Status = enums.BookingStatusCancelled
	booking.CancellationReason = &reason
	booking.CancellationFeeCents = &fee
	booking.CancelledAt = &now

	expected := booking.Version
	booking.Version = expected + 1
	if err := repo.SaveTransition(ctx, booking, expected); err != nil {
		return err
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventBookingCancelled,
		AggregateType: enums.AggregateBooking,
		AggregateID:   booking.ID,
		Version:       1,
		Data: payloads.BookingCancelledEvent{
			BookingID:   booking.ID,
			ConsumerID:  booking.ConsumerID,
			ProviderID:  booking.ProviderID,
			Reason:      reason,
			CancelledAt: now,
		},
	})
}

func (s *service) RequestTransition(ctx context.Context, input TransitionInput) (*models.Booking, error) {
	if input.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid target status")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if !input.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid actor role")
	}
	if input.Reason != nil && !input.Reason.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cancellation reason")
	}

	var (
		booking *models.Booking
		err     error
	)
	// Only the optimistic version guard is worth retrying; business-state
	// conflicts from the escrow coordinator come back unchanged on replay.
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		booking, err = s.transitionOnce(ctx, input)
		if err == nil || !pkgerrors.HasCode(err, pkgerrors.CodeVersionConflict) {
			return booking, err
		}
	}
	return nil, err
}

func (s *service) transitionOnce(ctx context.Context, input TransitionInput) (*models.Booking, error) {
	var booking *models.Booking
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		var err error
		booking, err = repo.FindBooking(ctx, input.BookingID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
		}

		rule, ok := lookupTransition(booking.Status, input.Target)
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition,
				fmt.Sprintf("cannot transition from %s to %s", booking.Status, input.Target)).
				WithDetails(map[string]any{"from": booking.Status, "to": input.Target})
		}
		if !rule.allows(input.Role) {
			return pkgerrors.New(pkgerrors.CodeUnauthorized,
				fmt.Sprintf("role %s may not request %s", input.Role, input.Target))
		}
		if err := checkOwnership(booking, input.ActorID, input.Role); err != nil {
			return err
		}

		from := booking.Status
		switch input.Target {
		case enums.BookingStatusAccepted:
			if err := s.applyAccept(booking); err != nil {
				return err
			}
		case enums.BookingStatusInProgress:
			if err := s.applyStart(booking, input.Role); err != nil {
				return err
			}
		case enums.BookingStatusCompleted:
			if err := s.applyComplete(ctx, tx, booking); err != nil {
				return err
			}
		case enums.BookingStatusCancelled:
			if err := s.applyCancel(ctx, tx, booking, from, input); err != nil {
				return err
			}
		default:
			return pkgerrors.New(pkgerrors.CodeInvalidTransition,
				fmt.Sprintf("cannot transition from %s to %s", from, input.Target))
		}

		booking.Status = input.Target
		expected := booking.Version
		booking.Version = expected + 1
		if err := repo.SaveTransition(ctx, booking, expected); err != nil {
			return err
		}

		return s.emitTransition(ctx, tx, booking, from, input)
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *service) applyAccept(booking *models.Booking) error {
	if booking.PaymentStatus != enums.PaymentStatusAuthorized {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, "payment must be authorized before acceptance")
	}
	now := s.now().UTC()
	booking.AcceptedAt = &now
	return nil
}

func (s *service) applyStart(booking *models.Booking, role enums.ActorRole) error {
	// The scheduler may only start a booking once its slot has arrived; a
	// provider can start early.
	if role == enums.RoleScheduler && s.now().Before(booking.ScheduledAt) {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, "scheduled time not reached")
	}
	now := s.now().UTC()
	booking.StartedAt = &now
	return nil
}

func (s *service) applyComplete(ctx context.Context, tx *gorm.DB, booking *models.Booking) error {
	if booking.PaymentStatus != enums.PaymentStatusAuthorized {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, "payment must be authorized before completion")
	}
	if _, err := s.escrow.Capture(ctx, tx, booking); err != nil {
		return err
	}
	now := s.now().UTC()
	booking.CompletedAt = &now
	return nil
}

func (s *service) applyCancel(ctx context.Context, tx *gorm.DB, booking *models.Booking, from enums.BookingStatus, input TransitionInput) error {
	reason, err := resolveCancellationReason(from, input)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	percent := refundPercent(s.cfg, reason, booking.CreatedAt, booking.ScheduledAt, now)
	refundCents := refundAmountCents(booking.TotalAmountCents, percent)
	feeCents := booking.TotalAmountCents - refundCents

	if booking.PaymentStatus == enums.PaymentStatusAuthorized || booking.PaymentStatus == enums.PaymentStatusCaptured {
		if _, err := s.escrow.Refund(ctx, tx, booking, refundCents); err != nil {
			return err
		}
	}

	role := input.Role
	booking.CancellationReason = &reason
	booking.CancelledBy = &role
	booking.CancellationFeeCents = &feeCents
	booking.CancelledAt = &now
	return nil
}

// resolveCancellationReason defaults the reason from the actor role and
// enforces the emergency-only rule for in-flight work.
func resolveCancellationReason(from enums.BookingStatus, input TransitionInput) (enums.CancellationReason, error) {
	if from == enums.BookingStatusInProgress {
		if input.Reason == nil || *input.Reason != enums.CancellationEmergency {
			return "", pkgerrors.New(pkgerrors.CodeInvalidTransition, "in-progress bookings may only be cancelled for an emergency")
		}
		return enums.CancellationEmergency, nil
	}
	if input.Reason != nil {
		return *input.Reason, nil
	}
	switch input.Role {
	case enums.RoleProvider:
		return enums.CancellationProviderRequested, nil
	default:
		return enums.CancellationConsumerRequested, nil
	}
}

func (s *service) emitTransition(ctx context.Context, tx *gorm.DB, booking *models.Booking, from enums.BookingStatus, input TransitionInput) error {
	event := outbox.DomainEvent{
		EventType:     transitionEventType(booking.Status),
		AggregateType: enums.AggregateBooking,
		AggregateID:   booking.ID,
		Version:       1,
		Actor:         buildActor(input.ActorID, input.Role),
	}

	if booking.Status == enums.BookingStatusCancelled {
		fee := int64(0)
		if booking.CancellationFeeCents != nil {
			fee = *booking.CancellationFeeCents
		}
		event.Data = payloads.BookingCancelledEvent{
			BookingID:            booking.ID,
			ConsumerID:           booking.ConsumerID,
			ProviderID:           booking.ProviderID,
			Reason:               derefReason(booking.CancellationReason),
			CancelledBy:          input.Role,
			CancellationFeeCents: fee,
			RefundCents:          booking.TotalAmountCents - fee,
			CancelledAt:          derefTime(booking.CancelledAt),
		}
	} else {
		event.Data = payloads.BookingTransitionEvent{
			BookingID:     booking.ID,
			ConsumerID:    booking.ConsumerID,
			ProviderID:    booking.ProviderID,
			FromStatus:    from,
			ToStatus:      booking.Status,
			PaymentStatus: booking.PaymentStatus,
		}
	}
	return s.outbox.Emit(ctx, tx, event)
}

func (s *service) GetBooking(ctx context.Context, bookingID, actorID uuid.UUID, role enums.ActorRole) (*models.Booking, error) {
	if bookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	booking, err := s.repo.FindBooking(ctx, bookingID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
	}
	if err := checkOwnership(booking, actorID, role); err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *service) ListBookings(ctx context.Context, actorID uuid.UUID, role enums.ActorRole, filters BookingFilters, params pagination.Params) (*BookingList, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	switch role {
	case enums.RoleConsumer:
		filters.ConsumerID = &actorID
	case enums.RoleProvider:
		filters.ProviderID = &actorID
	case enums.RoleAdmin:
		// Admins see everything; caller-supplied filters stand.
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role may not list bookings")
	}

	list, err := s.repo.ListBookings(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bookings")
	}
	return list, nil
}

// checkOwnership binds consumer and provider actors to their own bookings.
// Admin and scheduler actors operate across the fleet.
func checkOwnership(booking *models.Booking, actorID uuid.UUID, role enums.ActorRole) error {
	switch role {
	case enums.RoleConsumer:
		if booking.ConsumerID != actorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "booking does not belong to consumer")
		}
	case enums.RoleProvider:
		if booking.ProviderID != actorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "booking does not belong to provider")
		}
	}
	return nil
}

func buildActor(userID uuid.UUID, role enums.ActorRole) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: userID, Role: role.String()}
}

func derefReason(reason *enums.CancellationReason) enums.CancellationReason {
	if reason == nil {
		return ""
	}
	return *reason
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
