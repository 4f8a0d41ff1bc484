package bookings

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rmedina-dev/hauldash-backend/api/middleware"
	"github.com/rmedina-dev/hauldash-backend/api/responses"
	"github.com/rmedina-dev/hauldash-backend/api/validators"
	internalbookings "github.com/rmedina-dev/hauldash-backend/internal/bookings"
	"github.com/rmedina-dev/hauldash-backend/pkg/enums"
	pkgerrors "github.com/rmedina-dev/hauldash-backend/pkg/errors"
	"github.com/rmedina-dev/hauldash-backend/pkg/logger"
	"github.com/rmedina-dev/hauldash-backend/pkg/pagination"
	"github.com/rmedina-dev/hauldash-backend/pkg/types"
)

type createBookingRequest struct {
	ListingID        string      `json:"listing_id" validate:"required,uuid4"`
	ScheduledAt      time.Time   `json:"scheduled_at" validate:"required"`
	Pickup           types.LatLng `json:"pickup"`
	Dropoff          types.LatLng `json:"dropoff"`
	Instructions     *string     `json:"instructions,omitempty"`
	EstimatedMinutes int         `json:"estimated_minutes" validate:"gte=0"`
	CargoWeightLbs   float64     `json:"cargo_weight_lbs" validate:"gte=0"`
	PaymentMethod    string      `json:"payment_method,omitempty"`
}

type cancelBookingRequest struct {
	Reason *string `json:"reason,omitempty"`
}

type transitionRequest struct {
	Target string  `json:"target" validate:"required"`
	Reason *string `json:"reason,omitempty"`
}

// Create opens a booking for the authenticated consumer and places the
// payment hold before responding.
func Create(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}

		actorID, role, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if role != enums.RoleConsumer {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "only consumers may create bookings"))
			return
		}

		var payload createBookingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		listingID, err := uuid.Parse(strings.TrimSpace(payload.ListingID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid listing id"))
			return
		}

		if payload.Instructions != nil {
			cleaned := validators.SanitizeString(*payload.Instructions, 0)
			payload.Instructions = &cleaned
		}

		booking, err := svc.CreateBooking(r.Context(), internalbookings.CreateBookingInput{
			ConsumerID:       actorID,
			ListingID:        listingID,
			ScheduledAt:      payload.ScheduledAt,
			Pickup:           payload.Pickup,
			Dropoff:          payload.Dropoff,
			Instructions:     payload.Instructions,
			EstimatedMinutes: payload.EstimatedMinutes,
			CargoWeightLbs:   payload.CargoWeightLbs,
			PaymentMethod:    strings.TrimSpace(payload.PaymentMethod),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, booking)
	}
}

// Accept moves a pending booking to accepted on behalf of the provider.
func Accept(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, enums.BookingStatusAccepted)
}

// Start moves an accepted booking to in_progress.
func Start(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, enums.BookingStatusInProgress)
}

// Complete finishes an in-progress booking and captures the payment hold.
func Complete(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, enums.BookingStatusCompleted)
}

// Cancel terminates a booking, applying the cancellation fee schedule and
// refunding the remainder of any held funds.
func Cancel(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}

		actorID, role, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bookingID, err := parseBookingID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalbookings.TransitionInput{
			BookingID: bookingID,
			Target:    enums.BookingStatusCancelled,
			ActorID:   actorID,
			Role:      role,
		}

		// The body is optional; a consumer cancelling from the app sends no
		// payload and gets the role-default reason.
		if r.ContentLength != 0 {
			var payload cancelBookingRequest
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if payload.Reason != nil {
				reason, err := enums.ParseCancellationReason(*payload.Reason)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cancellation reason"))
					return
				}
				input.Reason = &reason
			}
		}

		booking, err := svc.RequestTransition(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

// Transition applies a caller-named target status. The action routes cover
// the common cases; this is the generic form used by admin tooling.
func Transition(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}

		actorID, role, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bookingID, err := parseBookingID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload transitionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseBookingStatus(payload.Target)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target status"))
			return
		}

		input := internalbookings.TransitionInput{
			BookingID: bookingID,
			Target:    target,
			ActorID:   actorID,
			Role:      role,
		}
		if payload.Reason != nil {
			reason, err := enums.ParseCancellationReason(*payload.Reason)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cancellation reason"))
				return
			}
			input.Reason = &reason
		}

		booking, err := svc.RequestTransition(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

func transition(svc internalbookings.Service, logg *logger.Logger, target enums.BookingStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}

		actorID, role, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bookingID, err := parseBookingID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.RequestTransition(r.Context(), internalbookings.TransitionInput{
			BookingID: bookingID,
			Target:    target,
			ActorID:   actorID,
			Role:      role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

// Detail returns a single booking after the ownership check.
func Detail(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}

		actorID, role, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bookingID, err := parseBookingID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.GetBooking(r.Context(), bookingID, actorID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

// List returns the actor's bookings, scoped server-side to their own rows
// unless the actor is an admin.
func List(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}

		actorID, role, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filters, err := buildFilters(r, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		list, err := svc.ListBookings(r.Context(), actorID, role, filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func requireActor(r *http.Request) (uuid.UUID, enums.ActorRole, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	actorID, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	role, err := enums.ParseActorRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "actor role missing")
	}
	return actorID, role, nil
}

func parseBookingID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "bookingId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id is required")
	}
	bookingID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking id")
	}
	return bookingID, nil
}

func buildFilters(r *http.Request, role enums.ActorRole) (internalbookings.BookingFilters, error) {
	var filters internalbookings.BookingFilters

	status, err := parseStatusParam(r.URL.Query().Get("status"))
	if err != nil {
		return filters, err
	}
	filters.Status = status

	category, err := parseCategoryParam(r.URL.Query().Get("category"))
	if err != nil {
		return filters, err
	}
	filters.Category = category

	dateFrom, err := parseDateParam(r.URL.Query().Get("date_from"), "date_from")
	if err != nil {
		return filters, err
	}
	filters.DateFrom = dateFrom

	dateTo, err := parseDateParam(r.URL.Query().Get("date_to"), "date_to")
	if err != nil {
		return filters, err
	}
	filters.DateTo = dateTo

	// Admins can scope to a specific party; other roles are pinned to their
	// own rows by the service.
	if role == enums.RoleAdmin {
		consumerID, err := parseUUIDParam(r.URL.Query().Get("consumer_id"), "consumer_id")
		if err != nil {
			return filters, err
		}
		filters.ConsumerID = consumerID

		providerID, err := parseUUIDParam(r.URL.Query().Get("provider_id"), "provider_id")
		if err != nil {
			return filters, err
		}
		filters.ProviderID = providerID
	}

	return filters, nil
}

func parseStatusParam(raw string) (*enums.BookingStatus, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	status, err := enums.ParseBookingStatus(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid status %q", raw))
	}
	return &status, nil
}

func parseCategoryParam(raw string) (*enums.ServiceCategory, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	category, err := enums.ParseServiceCategory(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid category %q", raw))
	}
	return &category, nil
}

func parseUUIDParam(raw, field string) (*uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid %s", field))
	}
	return &id, nil
}

func parseDateParam(value, field string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		t, err = time.Parse(time.RFC3339, value)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid %s", field))
		}
	}
	return &t, nil
}
