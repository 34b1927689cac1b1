// Package gormstore implements the storage backend on Postgres or SQLite through GORM.
package gormstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/tacmap/tacsim/pkg/core"
	"gorm.io/gorm"
)

// Backend reads session seeds from and archives history to a GORM database.
// The connection is owned by the caller.
type Backend struct {
	db  *gorm.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// New creates a backend on db.
func New(db *gorm.DB) *Backend {
	return &Backend{db: db}
}

// Init migrates the schema and prepares the archive codec.
func (b *Backend) Init() error {
	if err := b.db.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	b.enc, b.dec = enc, dec
	return nil
}

// Close releases the archive codec.
func (b *Backend) Close() error {
	if b.dec != nil {
		b.dec.Close()
	}
	if b.enc != nil {
		return b.enc.Close()
	}
	return nil
}

// LoadSession reads the tactical objects, drawings and bounds of a session.
// Objects without an identity are not tactical units and are skipped.
func (b *Backend) LoadSession(ctx context.Context, sessionID string) (*core.SessionSeed, error) {
	db := b.db.WithContext(ctx)
	seed := &core.SessionSeed{}

	var objects []MapObject
	if err := db.Where("session_id = ? AND identity <> ''", sessionID).Order("id").Find(&objects).Error; err != nil {
		return nil, fmt.Errorf("load map objects: %w", err)
	}
	for _, o := range objects {
		seed.Units = append(seed.Units, objectToDelta(o))
	}

	var drawings []MapDrawing
	if err := db.Where("session_id = ? AND blocking = ?", sessionID, true).Order("id").Find(&drawings).Error; err != nil {
		return nil, fmt.Errorf("load map drawings: %w", err)
	}
	for _, d := range drawings {
		obs, err := drawingToObstacle(d)
		if err != nil {
			// malformed geometry is skipped, the rest of the session still loads
			continue
		}
		seed.Obstacles = append(seed.Obstacles, obs)
	}

	var bounds []SessionBounds
	if err := db.Where("session_id = ?", sessionID).Limit(1).Find(&bounds).Error; err != nil {
		return nil, fmt.Errorf("load session bounds: %w", err)
	}
	if len(bounds) == 1 {
		sb := bounds[0]
		seed.Bounds = &core.Bounds{{Lat: sb.Lat1, Lng: sb.Lng1}, {Lat: sb.Lat2, Lng: sb.Lng2}}
	}
	return seed, nil
}

// ArchiveHistory compresses the snapshots and stores them as one row.
func (b *Backend) ArchiveHistory(ctx context.Context, sessionID string, history []core.Snapshot) error {
	if len(history) == 0 {
		return nil
	}
	if b.enc == nil {
		return fmt.Errorf("archive history: backend not initialised")
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	row := HistoryArchive{
		SessionID: sessionID,
		Snapshots: len(history),
		FirstTime: history[0].Time,
		LastTime:  history[len(history)-1].Time,
		Data:      b.enc.EncodeAll(raw, nil),
	}
	if err := b.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert history archive: %w", err)
	}
	return nil
}

// ReadArchives returns every archived snapshot of a session, oldest batch first.
func (b *Backend) ReadArchives(ctx context.Context, sessionID string) ([]core.Snapshot, error) {
	if b.dec == nil {
		return nil, fmt.Errorf("read archives: backend not initialised")
	}
	var rows []HistoryArchive
	if err := b.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load history archives: %w", err)
	}
	var out []core.Snapshot
	for _, row := range rows {
		raw, err := b.dec.DecodeAll(row.Data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress archive %d: %w", row.ID, err)
		}
		var batch []core.Snapshot
		if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&batch); err != nil {
			return nil, fmt.Errorf("decode archive %d: %w", row.ID, err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

func objectToDelta(o MapObject) core.UnitDelta {
	identity := core.Identity(o.Identity)
	delta := core.UnitDelta{
		ID:       o.ID,
		Identity: &identity,
		Position: &core.LatLng{Lat: o.Lat, Lng: o.Lng},
		HP:       o.HP,
		MaxHP:    o.MaxHP,
	}
	if o.Entity != "" {
		entity := core.Entity(o.Entity)
		delta.Entity = &entity
	}
	if o.Echelon != "" {
		echelon := core.Echelon(o.Echelon)
		delta.Echelon = &echelon
	}
	if o.Name != "" {
		name := o.Name
		delta.Name = &name
	}
	return delta
}

func drawingToObstacle(d MapDrawing) (core.Obstacle, error) {
	var g drawingGeometry
	if err := json.Unmarshal(d.Geometry, &g); err != nil {
		return core.Obstacle{}, fmt.Errorf("decode geometry of drawing %s: %w", d.ID, err)
	}
	return core.Obstacle{
		ID:     d.ID,
		Type:   d.Type,
		Bounds: g.Bounds,
		Center: g.Center,
		Radius: g.Radius,
		Points: g.Points,
	}, nil
}
