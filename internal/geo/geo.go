package geo

import (
	"errors"
	"math"

	"github.com/tacmap/tacsim/pkg/core"
)

// EarthRadius is the mean earth radius in metres used for haversine distances.
const EarthRadius = 6371e3

// ErrInvalidBounds is returned when a bounding box has no area.
var ErrInvalidBounds = errors.New("invalid bounds provided")

// Distance returns the great-circle distance between a and b in metres.
func Distance(a, b core.LatLng) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	dPhi := (b.Lat - a.Lat) * math.Pi / 180
	dLambda := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadius * c
}

// Away returns the point reached by stepping from pos directly away from
// threat by factor times their separation, in degree space.
func Away(pos, threat core.LatLng, factor float64) core.LatLng {
	return core.LatLng{
		Lat: pos.Lat + (pos.Lat-threat.Lat)*factor,
		Lng: pos.Lng + (pos.Lng-threat.Lng)*factor,
	}
}

// Box is an axis-aligned bounding box in degrees.
type Box struct {
	MinLat, MinLng float64
	MaxLat, MaxLng float64
}

// BoxFromBounds normalises a corner pair into a Box. Corner order does not matter.
func BoxFromBounds(b core.Bounds) Box {
	return Box{
		MinLat: math.Min(b[0].Lat, b[1].Lat),
		MaxLat: math.Max(b[0].Lat, b[1].Lat),
		MinLng: math.Min(b[0].Lng, b[1].Lng),
		MaxLng: math.Max(b[0].Lng, b[1].Lng),
	}
}

// Validate reports ErrInvalidBounds when the box is degenerate or not finite.
func (b Box) Validate() error {
	for _, v := range []float64{b.MinLat, b.MinLng, b.MaxLat, b.MaxLng} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidBounds
		}
	}
	if b.MaxLat <= b.MinLat || b.MaxLng <= b.MinLng {
		return ErrInvalidBounds
	}
	return nil
}

// Overlaps reports whether the two boxes share any area or edge.
func (b Box) Overlaps(o Box) bool {
	return b.MinLat <= o.MaxLat && o.MinLat <= b.MaxLat &&
		b.MinLng <= o.MaxLng && o.MinLng <= b.MaxLng
}

// Contains reports whether p lies inside the box, edges included.
func (b Box) Contains(p core.LatLng) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}
