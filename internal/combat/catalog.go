package combat

import (
	"fmt"
	"math"
	"os"

	"github.com/tacmap/tacsim/pkg/core"
	"gopkg.in/yaml.v3"
)

// ClassStats are the platoon-level base values of an entity class.
type ClassStats struct {
	HP      int     `yaml:"hp"`
	Attack  int     `yaml:"attack"`
	Defense int     `yaml:"defense"`
	Range   float64 `yaml:"range"`
}

// Multiplier scales HP and attack for an echelon.
type Multiplier struct {
	HP     float64 `yaml:"hp"`
	Attack float64 `yaml:"attack"`
}

// Catalog holds the stats tables used to derive unit values.
type Catalog struct {
	Classes  map[core.Entity]ClassStats              `yaml:"classes"`
	Echelons map[core.Echelon]Multiplier             `yaml:"echelons"`
	Bonuses  map[core.Entity]map[core.Entity]float64 `yaml:"bonuses"`
}

// DefaultCatalog returns the built-in tables.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Classes: map[core.Entity]ClassStats{
			core.EntityInfantry:  {HP: 100, Attack: 15, Defense: 10, Range: 500},
			core.EntityTank:      {HP: 200, Attack: 30, Defense: 40, Range: 1500},
			core.EntityAPC:       {HP: 150, Attack: 20, Defense: 30, Range: 800},
			core.EntityArtillery: {HP: 80, Attack: 50, Defense: 5, Range: 5000},
			core.EntityMedical:   {HP: 50},
			core.EntitySupply:    {HP: 60},
			core.EntityUAV:       {HP: 30, Attack: 10, Range: 3000},
			core.EntityHQ:        {HP: 100, Attack: 5, Defense: 20, Range: 300},
		},
		Echelons: map[core.Echelon]Multiplier{
			core.EchelonTeam:      {HP: 0.5, Attack: 0.5},
			core.EchelonSquad:     {HP: 0.7, Attack: 0.7},
			core.EchelonSection:   {HP: 0.8, Attack: 0.8},
			core.EchelonPlatoon:   {HP: 1.0, Attack: 1.0},
			core.EchelonCompany:   {HP: 2.5, Attack: 2.0},
			core.EchelonBattalion: {HP: 5.0, Attack: 3.0},
			core.EchelonRegiment:  {HP: 8.0, Attack: 5.0},
			core.EchelonBrigade:   {HP: 12.0, Attack: 7.0},
		},
		Bonuses: map[core.Entity]map[core.Entity]float64{
			core.EntityTank:      {core.EntityInfantry: 1.5},
			core.EntityInfantry:  {core.EntityArtillery: 1.5},
			core.EntityArtillery: {core.EntityTank: 1.5},
		},
	}
}

// LoadCatalog reads a YAML override file on top of the built-in tables.
// Entries present in the file replace the matching built-in entries.
func LoadCatalog(path string) (*Catalog, error) {
	cat := DefaultCatalog()
	if path == "" {
		return cat, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	var override Catalog
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	for k, v := range override.Classes {
		cat.Classes[k] = v
	}
	for k, v := range override.Echelons {
		cat.Echelons[k] = v
	}
	for att, row := range override.Bonuses {
		if cat.Bonuses[att] == nil {
			cat.Bonuses[att] = make(map[core.Entity]float64)
		}
		for def, v := range row {
			cat.Bonuses[att][def] = v
		}
	}
	return cat, nil
}

// Stats derives the values for an entity class at an echelon. Unknown classes
// fall back to infantry and unknown echelons to platoon. Only HP and attack
// scale with echelon.
func (c *Catalog) Stats(entity core.Entity, echelon core.Echelon) core.Stats {
	base, ok := c.Classes[entity]
	if !ok {
		base = c.Classes[core.EntityInfantry]
	}
	mult, ok := c.Echelons[echelon]
	if !ok {
		mult = c.Echelons[core.EchelonPlatoon]
	}
	return core.Stats{
		MaxHP:   int(math.Round(float64(base.HP) * mult.HP)),
		Attack:  int(math.Round(float64(base.Attack) * mult.Attack)),
		Defense: base.Defense,
		Range:   base.Range,
	}
}

// Bonus returns the type advantage multiplier of attacker against defender.
func (c *Catalog) Bonus(attacker, defender core.Entity) float64 {
	if b, ok := c.Bonuses[attacker][defender]; ok {
		return b
	}
	return 1.0
}

// Damage computes one hit: attack x type bonus x (1 - defense/100), rounded.
func (c *Catalog) Damage(attacker, defender *core.Unit) int {
	as := c.Stats(attacker.Entity, attacker.Echelon)
	ds := c.Stats(defender.Entity, defender.Echelon)
	dmg := float64(as.Attack) * c.Bonus(attacker.Entity, defender.Entity) * (1 - float64(ds.Defense)/100)
	return int(math.Round(dmg))
}
