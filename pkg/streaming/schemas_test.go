package streaming_test

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tacmap/tacsim/pkg/core"
	"github.com/tacmap/tacsim/pkg/streaming"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", name))
	require.NoError(t, err, "compile %s", name)
	return s
}

// decode round-trips v through JSON so the validator sees wire values.
func decode(t *testing.T, v any) any {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var out any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestSchemas_OutboundMessages(t *testing.T) {
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	hp, maxHP := 59, 100
	pos := core.LatLng{Lat: 50.45, Lng: 30.52}

	payload, err := json.Marshal(core.UnitUpdate{ID: "u1", Position: &pos, HP: &hp})
	require.NoError(t, err)

	tests := []struct {
		name   string
		schema string
		value  any
	}{
		{"envelope", "envelope.schema.json", streaming.Envelope{Type: streaming.TypeObjectUpdated, SessionID: "s1", Payload: payload}},
		{"ack", "ack.schema.json", streaming.AckMessage{Type: streaming.TypeAck, For: streaming.TypeJoinSession}},
		{"position update", "object_updated.schema.json", core.UnitUpdate{ID: "u1", Position: &pos}},
		{"hp update", "object_updated.schema.json", core.UnitUpdate{ID: "u1", HP: &hp, MaxHP: &maxHP}},
		{"battle log", "battle_log.schema.json", core.BattleLogEntry{
			ID: "e1", Timestamp: ts, Kind: core.BattleDamage,
			UnitID: "u2", AttackerID: "u1", Damage: 41, Message: "Infantry platoon takes heavy losses",
		}},
		{"history", "history_data.schema.json", streaming.HistoryPayload{Snapshots: []core.Snapshot{{
			Time: 3, Timestamp: ts,
			Units: []core.UnitState{{
				ID: "u1", Position: pos, HP: 100, MaxHP: 100,
				Identity: core.IdentityFriend, Entity: core.EntityInfantry, Echelon: core.EchelonPlatoon,
			}},
		}}}},
		{"empty history", "history_data.schema.json", streaming.HistoryPayload{Snapshots: []core.Snapshot{}}},
		{"error", "error.schema.json", streaming.ErrorPayload{For: streaming.TypeSetAIConfig, Message: "invalid doctrine"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, compile(t, tt.schema).Validate(decode(t, tt.value)))
		})
	}
}

func TestSchemas_RejectMalformed(t *testing.T) {
	var unknownType any
	require.NoError(t, json.Unmarshal([]byte(`{"type":"teleport","sessionId":"s1"}`), &unknownType))
	assert.Error(t, compile(t, "envelope.schema.json").Validate(unknownType))

	var noID any
	require.NoError(t, json.Unmarshal([]byte(`{"latLng":{"lat":50.4,"lng":30.5}}`), &noID))
	assert.Error(t, compile(t, "object_updated.schema.json").Validate(noID))

	var badLat any
	require.NoError(t, json.Unmarshal([]byte(`{"id":"u1","latLng":{"lat":120,"lng":30.5}}`), &badLat))
	assert.Error(t, compile(t, "object_updated.schema.json").Validate(badLat))
}
