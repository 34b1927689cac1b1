package combat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tacmap/tacsim/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogStats(t *testing.T) {
	cat := DefaultCatalog()

	tests := []struct {
		name    string
		entity  core.Entity
		echelon core.Echelon
		want    core.Stats
	}{
		{"tank platoon", core.EntityTank, core.EchelonPlatoon, core.Stats{MaxHP: 200, Attack: 30, Defense: 40, Range: 1500}},
		{"infantry squad", core.EntityInfantry, core.EchelonSquad, core.Stats{MaxHP: 70, Attack: 11, Defense: 10, Range: 500}},
		{"artillery battalion", core.EntityArtillery, core.EchelonBattalion, core.Stats{MaxHP: 400, Attack: 150, Defense: 5, Range: 5000}},
		{"hq team rounds half away from zero", core.EntityHQ, core.EchelonTeam, core.Stats{MaxHP: 50, Attack: 3, Defense: 20, Range: 300}},
		{"unknown entity is infantry", "cavalry", core.EchelonPlatoon, core.Stats{MaxHP: 100, Attack: 15, Defense: 10, Range: 500}},
		{"unknown echelon is platoon", core.EntityTank, "corps", core.Stats{MaxHP: 200, Attack: 30, Defense: 40, Range: 1500}},
		{"medical cannot attack", core.EntityMedical, core.EchelonCompany, core.Stats{MaxHP: 125}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cat.Stats(tt.entity, tt.echelon))
		})
	}
}

func TestCatalogDamage(t *testing.T) {
	cat := DefaultCatalog()
	tank := &core.Unit{Entity: core.EntityTank, Echelon: core.EchelonPlatoon}
	inf := &core.Unit{Entity: core.EntityInfantry, Echelon: core.EchelonPlatoon}
	arty := &core.Unit{Entity: core.EntityArtillery, Echelon: core.EchelonPlatoon}

	// 30 * 1.5 * 0.9 = 40.5
	assert.Equal(t, 41, cat.Damage(tank, inf))
	// 15 * 1.0 * 0.6 = 9
	assert.Equal(t, 9, cat.Damage(inf, tank))
	// 15 * 1.5 * 0.95 = 21.375
	assert.Equal(t, 21, cat.Damage(inf, arty))
	// 50 * 1.5 * 0.6 = 45
	assert.Equal(t, 45, cat.Damage(arty, tank))

	assert.Equal(t, 1.0, cat.Bonus(core.EntityUAV, core.EntityTank))
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
classes:
  tank: {hp: 250, attack: 35, defense: 45, range: 1800}
echelons:
  company: {hp: 3.0, attack: 2.0}
bonuses:
  uav:
    artillery: 2.0
`), 0o644))

	cat, err := LoadCatalog(path)
	require.NoError(t, err)

	assert.Equal(t, core.Stats{MaxHP: 250, Attack: 35, Defense: 45, Range: 1800}, cat.Stats(core.EntityTank, core.EchelonPlatoon))
	assert.Equal(t, 300, cat.Stats(core.EntityInfantry, core.EchelonCompany).MaxHP)
	assert.Equal(t, 2.0, cat.Bonus(core.EntityUAV, core.EntityArtillery))
	// untouched entries keep their defaults
	assert.Equal(t, 1.5, cat.Bonus(core.EntityTank, core.EntityInfantry))
	assert.Equal(t, 80, cat.Stats(core.EntityArtillery, core.EchelonPlatoon).MaxHP)
}

func TestLoadCatalog_Errors(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("classes: [1, 2"), 0o644))
	_, err = LoadCatalog(path)
	require.Error(t, err)

	cat, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog(), cat)
}

func TestNamer(t *testing.T) {
	tank := &core.Unit{Entity: core.EntityTank, Echelon: core.EchelonPlatoon, Name: "Alpha"}
	inf := &core.Unit{Entity: core.EntityInfantry, Echelon: core.EchelonCompany}

	en := NewNamer(LocaleEnglish)
	assert.Equal(t, `Tank platoon "Alpha"`, en.UnitName(tank))
	assert.Equal(t, "Infantry company", en.UnitName(inf))
	assert.Equal(t, `⚔️ Tank platoon "Alpha" engages Infantry company!`, en.Engage(tank, inf))
	assert.Contains(t, en.Advance(tank, 1234), "1234m")

	uk := NewNamer(LocaleUkrainian)
	assert.Equal(t, `Танковий взвод "Alpha"`, uk.UnitName(tank))
	assert.Equal(t, "☠️ Піхотний рота знищено!", uk.Destroyed(inf))

	fallback := NewNamer("fr")
	assert.Equal(t, en.UnitName(tank), fallback.UnitName(tank))

	odd := &core.Unit{Entity: "cavalry", Echelon: "corps"}
	assert.Equal(t, "Cavalry corps", en.UnitName(odd))
}
