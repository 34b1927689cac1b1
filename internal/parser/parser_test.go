package parser

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tacmap/tacsim/pkg/core"
)

func TestIntFromNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"32", 32, false},
		{"32.00", 32, false},
		{"-5", -5, false},
		{"32.5", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := intFromNumber(json.Number(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseUnitDelta(t *testing.T) {
	p := NewParser(nil)

	delta, err := p.ParseUnitDelta(json.RawMessage(`{
		"id": "u1", "name": "Alpha", "identity": "friend", "entity": "tank",
		"echelon": "company", "latLng": [50.45, 30.5], "hp": 150.0, "maxHp": 500
	}`))
	require.NoError(t, err)
	assert.Equal(t, "u1", delta.ID)
	assert.Equal(t, "Alpha", *delta.Name)
	assert.Equal(t, core.IdentityFriend, *delta.Identity)
	assert.Equal(t, core.EntityTank, *delta.Entity)
	assert.Equal(t, core.EchelonCompany, *delta.Echelon)
	assert.Equal(t, core.LatLng{Lat: 50.45, Lng: 30.5}, *delta.Position)
	assert.Equal(t, 150, *delta.HP)
	assert.Equal(t, 500, *delta.MaxHP)

	moved, err := p.ParseUnitDelta(json.RawMessage(`{"id":"u1","latLng":{"lat":50.46,"lng":30.51}}`))
	require.NoError(t, err)
	assert.Nil(t, moved.HP)
	assert.Nil(t, moved.Identity)
	assert.Equal(t, 50.46, moved.Position.Lat)
}

func TestParseUnitDelta_Invalid(t *testing.T) {
	p := NewParser(nil)
	for name, raw := range map[string]string{
		"not json":      `{`,
		"missing id":    `{"latLng":[1,2]}`,
		"fractional hp": `{"id":"u1","hp":10.5}`,
		"zero max hp":   `{"id":"u1","maxHp":0}`,
		"bad latitude":  `{"id":"u1","latLng":[91,0]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := p.ParseUnitDelta(json.RawMessage(raw))
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestParseUnitID(t *testing.T) {
	p := NewParser(nil)
	id, err := p.ParseUnitID(json.RawMessage(`{"id":"u9"}`))
	require.NoError(t, err)
	assert.Equal(t, "u9", id)

	_, err = p.ParseUnitID(json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestParseWorldBounds(t *testing.T) {
	p := NewParser(nil)
	payload, err := p.ParseWorldBounds(json.RawMessage(`{
		"bounds": [[50.40, 30.40], [50.50, 30.60]],
		"obstacles": [
			{"id": "r1", "type": "rectangle", "bounds": [[50.44, 30.48], [50.46, 30.52]]},
			{"id": "c1", "type": "circle", "center": {"lat": 50.45, "lng": 30.5}, "radius": 300}
		]
	}`))
	require.NoError(t, err)
	assert.Equal(t, core.Bounds{{Lat: 50.40, Lng: 30.40}, {Lat: 50.50, Lng: 30.60}}, payload.Bounds)
	require.Len(t, payload.Obstacles, 2)
	assert.Equal(t, core.ObstacleCircle, payload.Obstacles[1].Type)
	assert.Equal(t, 300.0, payload.Obstacles[1].Radius)

	_, err = p.ParseWorldBounds(json.RawMessage(`{"bounds": [[50.4, 30.4], [50.4, 30.6]]}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestParseConfigPatch(t *testing.T) {
	p := NewParser(nil)
	patch, err := p.ParseConfigPatch(json.RawMessage(`{"enabled":true,"side":"blue","doctrine":"ambush"}`))
	require.NoError(t, err)
	assert.True(t, *patch.Enabled)
	assert.Equal(t, core.SideBlue, *patch.Side)
	assert.Nil(t, patch.Difficulty)

	_, err = p.ParseConfigPatch(json.RawMessage(`{"doctrine":"reckless"}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
	_, err = p.ParseConfigPatch(json.RawMessage(`{"side":"green"}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestParseMoveOrder(t *testing.T) {
	p := NewParser(nil)
	order, err := p.ParseMoveOrder(json.RawMessage(`{
		"unitIds": ["a", "b"],
		"target": {"lat": 50.45, "lng": 30.5},
		"currentUnitPositions": {"a": [50.41, 30.41]}
	}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order.UnitIDs)
	assert.Equal(t, core.LatLng{Lat: 50.41, Lng: 30.41}, order.CurrentPositions["a"])

	_, err = p.ParseMoveOrder(json.RawMessage(`{"unitIds":[],"target":[1,1]}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
