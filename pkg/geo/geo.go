package geo

import (
	"math"

	"github.com/rmedina-dev/hauldash-backend/pkg/types"
)

const earthRadiusMiles = 3958.8

// DistanceMiles returns the great-circle distance between two points.
func DistanceMiles(a, b types.LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMiles * math.Asin(math.Sqrt(h))
}

// Circle is a center point plus radius in miles.
type Circle struct {
	Center      types.LatLng
	RadiusMiles float64
}

// Contains reports whether the point lies within the circle.
func (c Circle) Contains(p types.LatLng) bool {
	return DistanceMiles(c.Center, p) <= c.RadiusMiles
}

// Polygon is a closed ring of vertices. The last vertex is implicitly
// connected back to the first.
type Polygon []types.LatLng

// Contains reports whether the point lies inside the polygon using the
// even-odd ray casting rule. Points exactly on an edge may fall either way;
// service boundaries are drawn with enough margin that this does not matter.
func (poly Polygon) Contains(p types.LatLng) bool {
	if len(poly) < 3 {
		return false
	}
	inside := false
	j := len(poly) - 1
	for i := 0; i < len(poly); i++ {
		vi, vj := poly[i], poly[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) {
			crossLng := (vj.Lng-vi.Lng)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lng
			if p.Lng < crossLng {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}
