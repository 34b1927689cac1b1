package gormstore

import (
	"time"

	"github.com/tacmap/tacsim/pkg/core"
	"gorm.io/datatypes"
)

// MapObject is a tactical token placed on a session map.
type MapObject struct {
	ID        string  `gorm:"primaryKey;size:64"`
	SessionID string  `gorm:"index;size:64;not null"`
	Identity  string  `gorm:"size:16"`
	Entity    string  `gorm:"size:32"`
	Echelon   string  `gorm:"size:32"`
	Name      string  `gorm:"size:128"`
	Lat       float64 `gorm:"not null"`
	Lng       float64 `gorm:"not null"`
	HP        *int
	MaxHP     *int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (MapObject) TableName() string { return "map_objects" }

// MapDrawing is a shape drawn on a session map. Geometry holds the
// type-specific fields (bounds, center, radius, points) as JSON.
type MapDrawing struct {
	ID        string         `gorm:"primaryKey;size:64"`
	SessionID string         `gorm:"index;size:64;not null"`
	Type      string         `gorm:"size:32;not null"`
	Blocking  bool           `gorm:"default:true"`
	Geometry  datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time
}

func (MapDrawing) TableName() string { return "map_drawings" }

// SessionBounds is the calibrated extent of a session map.
type SessionBounds struct {
	SessionID string `gorm:"primaryKey;size:64"`
	Lat1      float64
	Lng1      float64
	Lat2      float64
	Lng2      float64
	UpdatedAt time.Time
}

func (SessionBounds) TableName() string { return "session_bounds" }

// HistoryArchive is a zstd-compressed JSON batch of snapshots.
type HistoryArchive struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"index;size:64;not null"`
	Snapshots int
	FirstTime int64
	LastTime  int64
	Data      []byte
	CreatedAt time.Time
}

func (HistoryArchive) TableName() string { return "history_archives" }

// Models lists every table the backend migrates.
var Models = []any{
	&MapObject{},
	&MapDrawing{},
	&SessionBounds{},
	&HistoryArchive{},
}

// drawingGeometry is the JSON layout of MapDrawing.Geometry.
type drawingGeometry struct {
	Bounds *core.Bounds  `json:"bounds,omitempty"`
	Center *core.LatLng  `json:"center,omitempty"`
	Radius float64       `json:"radius,omitempty"`
	Points []core.LatLng `json:"points,omitempty"`
}
