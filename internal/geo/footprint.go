package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/tacmap/tacsim/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// ErrMalformedObstacle is returned when an obstacle lacks the geometry its type needs.
var ErrMalformedObstacle = errors.New("malformed obstacle geometry")

// ErrUnsupportedObstacle is returned for obstacle types with no footprint rule.
var ErrUnsupportedObstacle = errors.New("unsupported obstacle type")

// Footprint returns the bounding box an obstacle blocks on the path grid.
func Footprint(o core.Obstacle) (Box, error) {
	switch o.Type {
	case core.ObstacleRectangle:
		if o.Bounds == nil {
			return Box{}, fmt.Errorf("rectangle %s: %w", o.ID, ErrMalformedObstacle)
		}
		return BoxFromBounds(*o.Bounds), nil
	case core.ObstacleCircle:
		if o.Center == nil || o.Radius <= 0 {
			return Box{}, fmt.Errorf("circle %s: %w", o.ID, ErrMalformedObstacle)
		}
		return CircleBox(*o.Center, o.Radius), nil
	case core.ObstaclePolygon, core.ObstaclePolyline:
		box, err := PointsEnvelope(o.Points)
		if err != nil {
			return Box{}, fmt.Errorf("%s %s: %w", o.Type, o.ID, err)
		}
		return box, nil
	default:
		return Box{}, fmt.Errorf("%q: %w", o.Type, ErrUnsupportedObstacle)
	}
}

// CircleBox returns the box enclosing a circle of radius metres around center.
// The offset is applied in EPSG:3857 with the mercator scale factor for the
// centre latitude, then projected back to EPSG:4326.
func CircleBox(center core.LatLng, radius float64) Box {
	epsg := wgs84.EPSG()
	toMercator := epsg.Transform(4326, 3857)
	fromMercator := epsg.Transform(3857, 4326)

	x, y, _ := toMercator(center.Lng, center.Lat, 0)
	r := radius / math.Cos(center.Lat*math.Pi/180)

	minLng, minLat, _ := fromMercator(x-r, y-r, 0)
	maxLng, maxLat, _ := fromMercator(x+r, y+r, 0)
	return Box{MinLat: minLat, MinLng: minLng, MaxLat: maxLat, MaxLng: maxLng}
}

// PointsEnvelope returns the envelope of a polyline or polygon outline.
func PointsEnvelope(points []core.LatLng) (Box, error) {
	if len(points) < 2 {
		return Box{}, fmt.Errorf("need at least 2 points, got %d: %w", len(points), ErrMalformedObstacle)
	}

	flatCoords := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flatCoords = append(flatCoords, p.Lng, p.Lat)
	}
	ls, err := geom.NewLineString(geom.NewSequence(flatCoords, geom.DimXY))
	if err != nil {
		return Box{}, fmt.Errorf("%v: %w", err, ErrMalformedObstacle)
	}

	lower, upper, ok := ls.Envelope().MinMaxXYs()
	if !ok || lower == upper {
		return Box{}, ErrMalformedObstacle
	}
	return Box{MinLat: lower.Y, MinLng: lower.X, MaxLat: upper.Y, MaxLng: upper.X}, nil
}
