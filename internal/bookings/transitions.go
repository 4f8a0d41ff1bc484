package bookings

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rmedina-dev/hauldash-backend/pkg/config"
	"github.com/rmedina-dev/hauldash-backend/pkg/enums"
)

// transitionRule lists the roles permitted to drive one edge of the lifecycle.
type transitionRule struct {
	actors []enums.ActorRole
}

func (r transitionRule) allows(role enums.ActorRole) bool {
	for _, actor := range r.actors {
		if actor == role {
			return true
		}
	}
	return false
}

// transitionTable is the closed set of legal lifecycle edges. Anything not
// listed here is rejected before preconditions are even considered.
var transitionTable = map[enums.BookingStatus]map[enums.BookingStatus]transitionRule{
	enums.BookingStatusPending: {
		enums.BookingStatusAccepted:  {actors: []enums.ActorRole{enums.RoleProvider}},
		enums.BookingStatusCancelled: {actors: []enums.ActorRole{enums.RoleConsumer, enums.RoleProvider}},
	},
	enums.BookingStatusAccepted: {
		enums.BookingStatusInProgress: {actors: []enums.ActorRole{enums.RoleProvider, enums.RoleScheduler}},
		enums.BookingStatusCancelled:  {actors: []enums.ActorRole{enums.RoleConsumer, enums.RoleProvider}},
	},
	enums.BookingStatusInProgress: {
		enums.BookingStatusCompleted: {actors: []enums.ActorRole{enums.RoleProvider}},
		enums.BookingStatusCancelled: {actors: []enums.ActorRole{enums.RoleProvider, enums.RoleAdmin}},
	},
}

func lookupTransition(from, to enums.BookingStatus) (transitionRule, bool) {
	edges, ok := transitionTable[from]
	if !ok {
		return transitionRule{}, false
	}
	rule, ok := edges[to]
	return rule, ok
}

// refundPercent is the cancellation fee policy. Emergency reasons override the
// timing tiers entirely; otherwise the grace window since creation wins first,
// then the lead time remaining before the scheduled slot decides the tier.
func refundPercent(cfg config.BookingConfig, reason enums.CancellationReason, createdAt, scheduledAt, now time.Time) int {
	if reason == enums.CancellationEmergency || reason == enums.CancellationPaymentFailed {
		return cfg.EmergencyRefundPercent
	}
	if now.Sub(createdAt) <= cfg.GraceWindow {
		return 100
	}
	remaining := scheduledAt.Sub(now)
	switch {
	case remaining >= cfg.FullRefundLeadTime:
		return 100
	case remaining >= cfg.PartialRefundLeadTime:
		return cfg.PartialRefundPercent
	default:
		return 0
	}
}

// refundAmountCents applies a percentage to a cent total with half-to-even
// rounding so odd splits do not drift in either party's favor.
func refundAmountCents(totalCents int64, percent int) int64 {
	if totalCents <= 0 || percent <= 0 {
		return 0
	}
	if percent >= 100 {
		return totalCents
	}
	return decimal.NewFromInt(totalCents).
		Mul(decimal.NewFromInt(int64(percent))).
		Div(decimal.NewFromInt(100)).
		RoundBank(0).
		IntPart()
}

func transitionEventType(to enums.BookingStatus) enums.OutboxEventType {
	switch to {
	case enums.BookingStatusAccepted:
		return enums.EventBookingAccepted
	case enums.BookingStatusInProgress:
		return enums.EventBookingStarted
	case enums.BookingStatusCompleted:
		return enums.EventBookingCompleted
	default:
		return enums.EventBookingCancelled
	}
}
