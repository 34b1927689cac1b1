// pkg/core/types.go
package core

import (
	"encoding/json"
	"fmt"
)

// LatLng is a geographic coordinate in degrees (EPSG:4326).
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is a pair of opposite corners, as sent by the map calibration UI:
// [[lat1, lng1], [lat2, lng2]]. Corner order is not significant.
type Bounds [2]LatLng

// Obstacle is a drawing on the session map that blocks movement.
// Which fields are required depends on Type.
type Obstacle struct {
	ID     string   `json:"id"`
	Type   string   `json:"type"`             // rectangle, circle, polygon, polyline
	Bounds *Bounds  `json:"bounds,omitempty"` // rectangle
	Center *LatLng  `json:"center,omitempty"` // circle
	Radius float64  `json:"radius,omitempty"` // circle, metres
	Points []LatLng `json:"points,omitempty"` // polygon, polyline
}

// Obstacle types understood by the path planner.
const (
	ObstacleRectangle = "rectangle"
	ObstacleCircle    = "circle"
	ObstaclePolygon   = "polygon"
	ObstaclePolyline  = "polyline"
)

// UnmarshalJSON accepts both {"lat":..,"lng":..} and [lat, lng].
func (l *LatLng) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) < 2 {
			return fmt.Errorf("latlng array needs 2 values, got %d", len(pair))
		}
		l.Lat, l.Lng = pair[0], pair[1]
		return nil
	}
	var obj struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("failed to parse latlng: %w", err)
	}
	l.Lat, l.Lng = obj.Lat, obj.Lng
	return nil
}
