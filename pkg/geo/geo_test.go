package geo

import (
	"math"
	"testing"

	"github.com/rmedina-dev/hauldash-backend/pkg/types"
)

func TestDistanceMiles(t *testing.T) {
	austin := types.LatLng{Lat: 30.2672, Lng: -97.7431}
	roundRock := types.LatLng{Lat: 30.5083, Lng: -97.6789}

	d := DistanceMiles(austin, roundRock)
	if math.Abs(d-17.1) > 0.5 {
		t.Fatalf("expected ~17.1 miles, got %f", d)
	}
	if DistanceMiles(austin, austin) != 0 {
		t.Fatalf("distance to self should be zero")
	}
}

func TestCircleContains(t *testing.T) {
	area := Circle{Center: types.LatLng{Lat: 30.2672, Lng: -97.7431}, RadiusMiles: 25}
	if !area.Contains(types.LatLng{Lat: 30.4, Lng: -97.7}) {
		t.Fatalf("expected point inside service radius")
	}
	if area.Contains(types.LatLng{Lat: 32.7767, Lng: -96.797}) {
		t.Fatalf("dallas should be outside a 25mi austin radius")
	}
}

func TestPolygonContains(t *testing.T) {
	square := Polygon{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 10},
		{Lat: 10, Lng: 10},
		{Lat: 10, Lng: 0},
	}
	if !square.Contains(types.LatLng{Lat: 5, Lng: 5}) {
		t.Fatalf("expected centroid inside")
	}
	if square.Contains(types.LatLng{Lat: 15, Lng: 5}) {
		t.Fatalf("expected point above square outside")
	}
	if (Polygon{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}}).Contains(types.LatLng{Lat: 0, Lng: 0}) {
		t.Fatalf("degenerate polygon contains nothing")
	}
}
