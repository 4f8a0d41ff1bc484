package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rmedina-dev/hauldash-backend/pkg/enums"
	pkgerrors "github.com/rmedina-dev/hauldash-backend/pkg/errors"
)

// RateCard is the listing-provided pricing input.
type RateCard struct {
	BaseCents      int64
	PerMileCents   int64
	PerMinuteCents int64
}

// Breakdown is the priced quote attached to a booking. Total is always the
// exact sum of the other components.
type Breakdown struct {
	BaseCents        int64
	VariableCents    int64
	SurchargeCents   int64
	PlatformFeeCents int64
	TotalCents       int64
}

// Config carries the platform-controlled pricing knobs. Fee rates vary per
// category and the resulting fee is clamped to an absolute min/max.
type Config struct {
	FeeRates          map[enums.ServiceCategory]decimal.Decimal
	MinFeeCents       int64
	MaxFeeCents       int64
	PeakMultiplier    decimal.Decimal
	WeekendMultiplier decimal.Decimal
	PeakStartHour     int
	PeakEndHour       int
}

// DefaultConfig returns the launch pricing parameters.
func DefaultConfig() Config {
	return Config{
		FeeRates: map[enums.ServiceCategory]decimal.Decimal{
			enums.CategoryFoodDelivery:    decimal.NewFromFloat(0.10),
			enums.CategoryGroceryDelivery: decimal.NewFromFloat(0.12),
			enums.CategoryPackageCourier:  decimal.NewFromFloat(0.15),
			enums.CategoryFurnitureMoving: decimal.NewFromFloat(0.18),
		},
		MinFeeCents:       50,
		MaxFeeCents:       2000,
		PeakMultiplier:    decimal.NewFromFloat(1.2),
		WeekendMultiplier: decimal.NewFromFloat(1.1),
		PeakStartHour:     17,
		PeakEndHour:       20,
	}
}

// Engine computes booking quotes. It is pure: same inputs, same breakdown.
type Engine struct {
	cfg Config
}

// NewEngine validates the config and builds a pricing engine.
func NewEngine(cfg Config) (*Engine, error) {
	if len(cfg.FeeRates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fee rates required")
	}
	if cfg.MinFeeCents < 0 || cfg.MaxFeeCents < cfg.MinFeeCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fee clamp bounds invalid")
	}
	if cfg.PeakMultiplier.LessThan(decimal.NewFromInt(1)) || cfg.WeekendMultiplier.LessThan(decimal.NewFromInt(1)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "multipliers must be at least 1")
	}
	return &Engine{cfg: cfg}, nil
}

// ComputePrice quotes a booking. Distance and duration charges are taken from
// the rate card, peak and weekend multipliers compose, and the platform fee is
// applied last on the clamped-to-zero subtotal. All rounding is half-to-even
// at cent precision.
func (e *Engine) ComputePrice(card RateCard, distanceMiles float64, durationMinutes int, category enums.ServiceCategory, requestedAt time.Time) (Breakdown, error) {
	if !category.IsValid() {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown service category")
	}
	if card.BaseCents < 0 || card.PerMileCents < 0 || card.PerMinuteCents < 0 {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "rate card amounts must be non-negative")
	}
	if distanceMiles < 0 {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "distance must be non-negative")
	}
	if durationMinutes < 0 {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "duration must be non-negative")
	}
	feeRate, ok := e.cfg.FeeRates[category]
	if !ok {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "no fee rate for category")
	}

	base := decimal.NewFromInt(card.BaseCents)
	variable := decimal.NewFromFloat(distanceMiles).Mul(decimal.NewFromInt(card.PerMileCents)).
		Add(decimal.NewFromInt(int64(durationMinutes)).Mul(decimal.NewFromInt(card.PerMinuteCents)))
	variableCents := variable.RoundBank(0)

	subtotal := base.Add(variableCents)

	multiplier := decimal.NewFromInt(1)
	if e.isPeak(requestedAt) {
		multiplier = multiplier.Mul(e.cfg.PeakMultiplier)
	}
	if isWeekend(requestedAt) {
		multiplier = multiplier.Mul(e.cfg.WeekendMultiplier)
	}

	totalBeforeFee := subtotal.Mul(multiplier).RoundBank(0)
	if totalBeforeFee.IsNegative() {
		totalBeforeFee = decimal.Zero
	}
	surcharge := totalBeforeFee.Sub(subtotal)
	if surcharge.IsNegative() {
		surcharge = decimal.Zero
	}

	fee := totalBeforeFee.Mul(feeRate).RoundBank(0)
	minFee := decimal.NewFromInt(e.cfg.MinFeeCents)
	maxFee := decimal.NewFromInt(e.cfg.MaxFeeCents)
	if fee.LessThan(minFee) {
		fee = minFee
	}
	if fee.GreaterThan(maxFee) {
		fee = maxFee
	}

	total := totalBeforeFee.Add(fee)

	return Breakdown{
		BaseCents:        card.BaseCents,
		VariableCents:    variableCents.IntPart(),
		SurchargeCents:   surcharge.IntPart(),
		PlatformFeeCents: fee.IntPart(),
		TotalCents:       total.IntPart(),
	}, nil
}

// isPeak reports whether the hour falls inside the configured evening window.
func (e *Engine) isPeak(at time.Time) bool {
	hour := at.Hour()
	return hour >= e.cfg.PeakStartHour && hour < e.cfg.PeakEndHour
}

func isWeekend(at time.Time) bool {
	switch at.Weekday() {
	case time.Saturday, time.Sunday:
		return true
	default:
		return false
	}
}
