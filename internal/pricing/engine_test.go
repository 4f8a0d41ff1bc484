package pricing

import (
	"testing"
	"time"

	"github.com/rmedina-dev/hauldash-backend/pkg/enums"
	pkgerrors "github.com/rmedina-dev/hauldash-backend/pkg/errors"
)

var (
	// Wednesday 10:00, off-peak weekday.
	weekdayOffPeak = time.Date(2026, time.March, 11, 10, 0, 0, 0, time.UTC)
	// Wednesday 18:00, inside the peak window.
	weekdayPeak = time.Date(2026, time.March, 11, 18, 0, 0, 0, time.UTC)
	// Saturday 18:00, peak and weekend compose.
	weekendPeak = time.Date(2026, time.March, 14, 18, 0, 0, 0, time.UTC)
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(DefaultConfig())
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	return engine
}

func assertSumsToTotal(t *testing.T, b Breakdown) {
	t.Helper()
	sum := b.BaseCents + b.VariableCents + b.SurchargeCents + b.PlatformFeeCents
	if sum != b.TotalCents {
		t.Fatalf("components sum to %d but total is %d (%+v)", sum, b.TotalCents, b)
	}
}

func TestComputePriceWeekdayOffPeak(t *testing.T) {
	engine := newTestEngine(t)

	card := RateCard{BaseCents: 500, PerMileCents: 150}
	got, err := engine.ComputePrice(card, 3, 0, enums.CategoryFoodDelivery, weekdayOffPeak)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.BaseCents != 500 {
		t.Fatalf("base: expected 500 got %d", got.BaseCents)
	}
	if got.VariableCents != 450 {
		t.Fatalf("variable: expected 450 got %d", got.VariableCents)
	}
	if got.SurchargeCents != 0 {
		t.Fatalf("surcharge: expected 0 got %d", got.SurchargeCents)
	}
	if got.PlatformFeeCents != 95 {
		t.Fatalf("fee: expected 95 got %d", got.PlatformFeeCents)
	}
	if got.TotalCents != 1045 {
		t.Fatalf("total: expected 1045 got %d", got.TotalCents)
	}
	assertSumsToTotal(t, got)
}

func TestComputePricePeakMultiplier(t *testing.T) {
	engine := newTestEngine(t)

	card := RateCard{BaseCents: 500, PerMileCents: 150}
	got, err := engine.ComputePrice(card, 3, 0, enums.CategoryFoodDelivery, weekdayPeak)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 950 * 1.2 = 1140, surcharge 190, fee 10% = 114.
	if got.SurchargeCents != 190 {
		t.Fatalf("surcharge: expected 190 got %d", got.SurchargeCents)
	}
	if got.PlatformFeeCents != 114 {
		t.Fatalf("fee: expected 114 got %d", got.PlatformFeeCents)
	}
	if got.TotalCents != 1254 {
		t.Fatalf("total: expected 1254 got %d", got.TotalCents)
	}
	assertSumsToTotal(t, got)
}

func TestComputePriceMultipliersCompose(t *testing.T) {
	engine := newTestEngine(t)

	card := RateCard{BaseCents: 500, PerMileCents: 150}
	got, err := engine.ComputePrice(card, 3, 0, enums.CategoryFoodDelivery, weekendPeak)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 950 * 1.2 * 1.1 = 1254, surcharge 304, fee 125.4 banker-rounds to 125.
	if got.SurchargeCents != 304 {
		t.Fatalf("surcharge: expected 304 got %d", got.SurchargeCents)
	}
	if got.PlatformFeeCents != 125 {
		t.Fatalf("fee: expected 125 got %d", got.PlatformFeeCents)
	}
	if got.TotalCents != 1379 {
		t.Fatalf("total: expected 1379 got %d", got.TotalCents)
	}
	assertSumsToTotal(t, got)
}

func TestComputePriceDurationCharge(t *testing.T) {
	engine := newTestEngine(t)

	card := RateCard{BaseCents: 1000, PerMileCents: 100, PerMinuteCents: 25}
	got, err := engine.ComputePrice(card, 2, 40, enums.CategoryFurnitureMoving, weekdayOffPeak)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// variable = 2*100 + 40*25 = 1200; fee 18% of 2200 = 396.
	if got.VariableCents != 1200 {
		t.Fatalf("variable: expected 1200 got %d", got.VariableCents)
	}
	if got.PlatformFeeCents != 396 {
		t.Fatalf("fee: expected 396 got %d", got.PlatformFeeCents)
	}
	assertSumsToTotal(t, got)
}

func TestComputePriceFeeClamps(t *testing.T) {
	engine := newTestEngine(t)

	small, err := engine.ComputePrice(RateCard{BaseCents: 100}, 0, 0, enums.CategoryFoodDelivery, weekdayOffPeak)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if small.PlatformFeeCents != 50 {
		t.Fatalf("expected min fee clamp 50, got %d", small.PlatformFeeCents)
	}

	large, err := engine.ComputePrice(RateCard{BaseCents: 5000000}, 0, 0, enums.CategoryFurnitureMoving, weekdayOffPeak)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if large.PlatformFeeCents != 2000 {
		t.Fatalf("expected max fee clamp 2000, got %d", large.PlatformFeeCents)
	}
}

func TestComputePriceBankersRounding(t *testing.T) {
	engine := newTestEngine(t)

	// Half-to-even: 1.5 rounds to 2, 0.5 rounds to 0.
	halfUp, err := engine.ComputePrice(RateCard{BaseCents: 100, PerMileCents: 1}, 1.5, 0, enums.CategoryFoodDelivery, weekdayOffPeak)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if halfUp.VariableCents != 2 {
		t.Fatalf("expected 1.5 to round to 2, got %d", halfUp.VariableCents)
	}

	halfDown, err := engine.ComputePrice(RateCard{BaseCents: 100, PerMileCents: 1}, 0.5, 0, enums.CategoryFoodDelivery, weekdayOffPeak)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if halfDown.VariableCents != 0 {
		t.Fatalf("expected 0.5 to round to 0, got %d", halfDown.VariableCents)
	}
}

func TestComputePriceRejectsInvalidInput(t *testing.T) {
	engine := newTestEngine(t)

	if _, err := engine.ComputePrice(RateCard{}, 1, 0, enums.ServiceCategory("bike_rental"), weekdayOffPeak); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for bad category, got %v", err)
	}
	if _, err := engine.ComputePrice(RateCard{BaseCents: -5}, 1, 0, enums.CategoryFoodDelivery, weekdayOffPeak); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for negative base, got %v", err)
	}
	if _, err := engine.ComputePrice(RateCard{}, -1, 0, enums.CategoryFoodDelivery, weekdayOffPeak); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for negative distance, got %v", err)
	}
}
