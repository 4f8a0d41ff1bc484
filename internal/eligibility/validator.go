package eligibility

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rmedina-dev/hauldash-backend/pkg/config"
	"github.com/rmedina-dev/hauldash-backend/pkg/enums"
	pkgerrors "github.com/rmedina-dev/hauldash-backend/pkg/errors"
	"github.com/rmedina-dev/hauldash-backend/pkg/geo"
	"github.com/rmedina-dev/hauldash-backend/pkg/types"
)

// ReasonCode identifies the first rule a request violated.
type ReasonCode string

const (
	ReasonOutsideServiceArea    ReasonCode = "outside_service_area"
	ReasonInsideExclusionZone   ReasonCode = "inside_exclusion_zone"
	ReasonInsufficientLeadTime  ReasonCode = "insufficient_lead_time"
	ReasonOutsideOperatingHours ReasonCode = "outside_operating_hours"
	ReasonDistanceLimitExceeded ReasonCode = "distance_limit_exceeded"
	ReasonCargoWeightExceeded   ReasonCode = "cargo_weight_exceeded"
)

// Result is the outcome of a validation pass. Reason is set only when OK is
// false and names exactly one violated rule.
type Result struct {
	OK     bool
	Reason ReasonCode
}

// HourWindow is an inclusive-start exclusive-end daily window in local hours.
type HourWindow struct {
	Start int
	End   int
}

func (w HourWindow) contains(at time.Time) bool {
	hour := at.Hour()
	return hour >= w.Start && hour < w.End
}

// CategoryLimits are the per-category hard ceilings.
type CategoryLimits struct {
	MaxDistanceMiles  float64
	MaxCargoWeightLbs float64
}

// Request carries everything the validator needs in one pass.
type Request struct {
	Pickup         types.LatLng
	Dropoff        types.LatLng
	Category       enums.ServiceCategory
	ScheduledAt    time.Time
	DistanceMiles  float64
	CargoWeightLbs float64
	// ListingMaxDistanceMiles tightens the category ceiling when positive.
	ListingMaxDistanceMiles float64
}

// Validator applies the ordered eligibility rules. Checks short-circuit on the
// first failure and never report more than one reason.
type Validator struct {
	area        geo.Circle
	areaPolygon geo.Polygon
	exclusions  []geo.Circle
	minLeadTime time.Duration
	hours       map[enums.ServiceCategory]HourWindow
	limits      map[enums.ServiceCategory]CategoryLimits
	now         func() time.Time
}

// Params configures a Validator. AreaPolygon, when set, replaces the circular
// service area.
type Params struct {
	Area        geo.Circle
	AreaPolygon geo.Polygon
	Exclusions  []geo.Circle
	MinLeadTime time.Duration
	Hours       map[enums.ServiceCategory]HourWindow
	Limits      map[enums.ServiceCategory]CategoryLimits
	Now         func() time.Time
}

// DefaultHours returns the launch operating windows per category.
func DefaultHours() map[enums.ServiceCategory]HourWindow {
	return map[enums.ServiceCategory]HourWindow{
		enums.CategoryFoodDelivery:    {Start: 7, End: 23},
		enums.CategoryGroceryDelivery: {Start: 7, End: 22},
		enums.CategoryPackageCourier:  {Start: 6, End: 22},
		enums.CategoryFurnitureMoving: {Start: 8, End: 18},
	}
}

// DefaultLimits returns the launch hard ceilings per category.
func DefaultLimits() map[enums.ServiceCategory]CategoryLimits {
	return map[enums.ServiceCategory]CategoryLimits{
		enums.CategoryFoodDelivery:    {MaxDistanceMiles: 15, MaxCargoWeightLbs: 50},
		enums.CategoryGroceryDelivery: {MaxDistanceMiles: 20, MaxCargoWeightLbs: 100},
		enums.CategoryPackageCourier:  {MaxDistanceMiles: 40, MaxCargoWeightLbs: 150},
		enums.CategoryFurnitureMoving: {MaxDistanceMiles: 50, MaxCargoWeightLbs: 1000},
	}
}

// NewValidator builds a validator from explicit params.
func NewValidator(params Params) (*Validator, error) {
	if params.Area.RadiusMiles <= 0 && len(params.AreaPolygon) < 3 {
		return nil, fmt.Errorf("service area required")
	}
	if params.MinLeadTime < 0 {
		return nil, fmt.Errorf("min lead time must be non-negative")
	}
	hours := params.Hours
	if hours == nil {
		hours = DefaultHours()
	}
	limits := params.Limits
	if limits == nil {
		limits = DefaultLimits()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Validator{
		area:        params.Area,
		areaPolygon: params.AreaPolygon,
		exclusions:  params.Exclusions,
		minLeadTime: params.MinLeadTime,
		hours:       hours,
		limits:      limits,
		now:         now,
	}, nil
}

// NewValidatorFromConfig builds a validator from the service-area and booking
// config sections.
func NewValidatorFromConfig(areaCfg config.ServiceAreaConfig, bookingCfg config.BookingConfig) (*Validator, error) {
	exclusions, err := parseExclusionZones(areaCfg.ExclusionZonesJSON)
	if err != nil {
		return nil, err
	}
	return NewValidator(Params{
		Area: geo.Circle{
			Center:      types.LatLng{Lat: areaCfg.CenterLat, Lng: areaCfg.CenterLng},
			RadiusMiles: areaCfg.RadiusMiles,
		},
		Exclusions:  exclusions,
		MinLeadTime: bookingCfg.MinLeadTime,
	})
}

type exclusionZone struct {
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	RadiusMiles float64 `json:"radius_miles"`
}

func parseExclusionZones(raw string) ([]geo.Circle, error) {
	if raw == "" {
		return nil, nil
	}
	var zones []exclusionZone
	if err := json.Unmarshal([]byte(raw), &zones); err != nil {
		return nil, fmt.Errorf("parsing exclusion zones: %w", err)
	}
	circles := make([]geo.Circle, 0, len(zones))
	for _, z := range zones {
		circles = append(circles, geo.Circle{
			Center:      types.LatLng{Lat: z.Lat, Lng: z.Lng},
			RadiusMiles: z.RadiusMiles,
		})
	}
	return circles, nil
}

// Validate runs the ordered checks and returns the first violation.
func (v *Validator) Validate(req Request) Result {
	if !v.inServiceArea(req.Pickup) || !v.inServiceArea(req.Dropoff) {
		return Result{Reason: ReasonOutsideServiceArea}
	}
	for _, zone := range v.exclusions {
		if zone.Contains(req.Pickup) || zone.Contains(req.Dropoff) {
			return Result{Reason: ReasonInsideExclusionZone}
		}
	}
	if req.ScheduledAt.Before(v.now().Add(v.minLeadTime)) {
		return Result{Reason: ReasonInsufficientLeadTime}
	}
	if window, ok := v.hours[req.Category]; ok && !window.contains(req.ScheduledAt) {
		return Result{Reason: ReasonOutsideOperatingHours}
	}
	if limits, ok := v.limits[req.Category]; ok {
		maxDistance := limits.MaxDistanceMiles
		if req.ListingMaxDistanceMiles > 0 && req.ListingMaxDistanceMiles < maxDistance {
			maxDistance = req.ListingMaxDistanceMiles
		}
		if maxDistance > 0 && req.DistanceMiles > maxDistance {
			return Result{Reason: ReasonDistanceLimitExceeded}
		}
		if limits.MaxCargoWeightLbs > 0 && req.CargoWeightLbs > limits.MaxCargoWeightLbs {
			return Result{Reason: ReasonCargoWeightExceeded}
		}
	}
	return Result{OK: true}
}

func (v *Validator) inServiceArea(p types.LatLng) bool {
	if len(v.areaPolygon) >= 3 {
		return v.areaPolygon.Contains(p)
	}
	return v.area.Contains(p)
}

// RejectionError wraps a failed result in the coded error taxonomy.
func RejectionError(res Result) error {
	if res.OK {
		return nil
	}
	err := pkgerrors.New(pkgerrors.CodeEligibility, "booking not eligible")
	return err.WithDetails(map[string]any{"reason": string(res.Reason)})
}
