package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatLngUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    LatLng
		wantErr bool
	}{
		{name: "object", input: `{"lat":50.4,"lng":30.5}`, want: LatLng{Lat: 50.4, Lng: 30.5}},
		{name: "array", input: `[50.4,30.5]`, want: LatLng{Lat: 50.4, Lng: 30.5}},
		{name: "short array", input: `[50.4]`, wantErr: true},
		{name: "garbage", input: `"north"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got LatLng
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBoundsUnmarshalCalibrationArrays(t *testing.T) {
	var b Bounds
	require.NoError(t, json.Unmarshal([]byte(`[[50.40,30.40],[50.50,30.60]]`), &b))
	assert.Equal(t, LatLng{Lat: 50.40, Lng: 30.40}, b[0])
	assert.Equal(t, LatLng{Lat: 50.50, Lng: 30.60}, b[1])
}

func TestConfigPatchApply(t *testing.T) {
	enabled := true
	doctrine := DoctrineAggressive
	got := ConfigPatch{Enabled: &enabled, Doctrine: &doctrine}.Apply(DefaultAIConfig())

	assert.True(t, got.Enabled)
	assert.Equal(t, DoctrineAggressive, got.Doctrine)
	assert.Equal(t, "medium", got.Difficulty)
	assert.Equal(t, SideRed, got.Side)
	assert.Equal(t, "Active", got.StatusLabel())
}

func TestAIConfigSides(t *testing.T) {
	red := AIConfig{Side: SideRed}
	assert.Equal(t, IdentityHostile, red.ControlledIdentity())
	assert.Equal(t, IdentityFriend, red.OpposingIdentity())

	blue := AIConfig{Side: SideBlue}
	assert.Equal(t, IdentityFriend, blue.ControlledIdentity())
	assert.Equal(t, IdentityHostile, blue.OpposingIdentity())

	other := AIConfig{Side: "green"}
	assert.Equal(t, IdentityFriend, other.ControlledIdentity())
}

func TestUnitHPFraction(t *testing.T) {
	u := Unit{HP: 50, MaxHP: 200}
	assert.InDelta(t, 0.25, u.HPFraction(), 1e-9)
	assert.True(t, u.Alive())

	assert.Zero(t, (&Unit{HP: 10}).HPFraction())
	assert.False(t, (&Unit{}).Alive())
}
