package combat

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tacmap/tacsim/pkg/core"
)

// Supported battle log locales.
const (
	LocaleEnglish   = "en"
	LocaleUkrainian = "uk"
)

type phrasebook struct {
	entities  map[core.Entity]string
	echelons  map[core.Echelon]string
	advance   string
	engage    string
	retreat   string
	heavyLoss string
	destroyed string
}

var phrasebooks = map[string]phrasebook{
	LocaleEnglish: {
		entities: map[core.Entity]string{
			core.EntityInfantry:  "infantry",
			core.EntityTank:      "tank",
			core.EntityAPC:       "mechanized",
			core.EntityArtillery: "artillery",
			core.EntityMedical:   "medical",
			core.EntitySupply:    "supply",
			core.EntityUAV:       "recon UAV",
			core.EntityHQ:        "headquarters",
		},
		echelons: map[core.Echelon]string{
			core.EchelonTeam:      "team",
			core.EchelonSquad:     "squad",
			core.EchelonSection:   "section",
			core.EchelonPlatoon:   "platoon",
			core.EchelonCompany:   "company",
			core.EchelonBattalion: "battalion",
			core.EchelonRegiment:  "regiment",
			core.EchelonBrigade:   "brigade",
		},
		advance:   "🚀 %s moves to the line of attack (%dm to target)",
		engage:    "⚔️ %s engages %s!",
		retreat:   "🏃 %s is retreating! (HP: %d%%)",
		heavyLoss: "💔 %s is taking heavy losses! (%d%% combat effectiveness)",
		destroyed: "☠️ %s destroyed!",
	},
	LocaleUkrainian: {
		entities: map[core.Entity]string{
			core.EntityInfantry:  "піхотний",
			core.EntityTank:      "танковий",
			core.EntityAPC:       "механізований",
			core.EntityArtillery: "артилерійський",
			core.EntityMedical:   "медичний",
			core.EntitySupply:    "тиловий",
			core.EntityUAV:       "розвідувальний БПЛА",
			core.EntityHQ:        "штабний",
		},
		echelons: map[core.Echelon]string{
			core.EchelonTeam:      "група",
			core.EchelonSquad:     "відділення",
			core.EchelonSection:   "секція",
			core.EchelonPlatoon:   "взвод",
			core.EchelonCompany:   "рота",
			core.EchelonBattalion: "батальйон",
			core.EchelonRegiment:  "полк",
			core.EchelonBrigade:   "бригада",
		},
		advance:   "🚀 %s виходить на рубіж атаки (%dм до цілі)",
		engage:    "⚔️ %s вступає в бій з %s!",
		retreat:   "🏃 %s відступає! (HP: %d%%)",
		heavyLoss: "💔 %s зазнає важких втрат! (%d%% боєздатності)",
		destroyed: "☠️ %s знищено!",
	},
}

// Namer renders unit names and battle log messages in one locale.
type Namer struct {
	book phrasebook
}

// NewNamer returns a namer for locale, falling back to English.
func NewNamer(locale string) *Namer {
	book, ok := phrasebooks[locale]
	if !ok {
		book = phrasebooks[LocaleEnglish]
	}
	return &Namer{book: book}
}

// UnitName renders e.g. `Tank platoon "Alpha"`.
func (n *Namer) UnitName(u *core.Unit) string {
	entity, ok := n.book.entities[u.Entity]
	if !ok {
		entity = string(u.Entity)
	}
	echelon, ok := n.book.echelons[u.Echelon]
	if !ok {
		echelon = string(u.Echelon)
	}
	name := upperFirst(entity) + " " + echelon
	if u.Name != "" {
		name += fmt.Sprintf(" %q", u.Name)
	}
	return strings.TrimSpace(name)
}

func (n *Namer) Advance(u *core.Unit, distance int) string {
	return fmt.Sprintf(n.book.advance, n.UnitName(u), distance)
}

func (n *Namer) Engage(u, target *core.Unit) string {
	return fmt.Sprintf(n.book.engage, n.UnitName(u), n.UnitName(target))
}

func (n *Namer) Retreat(u *core.Unit, hpPercent int) string {
	return fmt.Sprintf(n.book.retreat, n.UnitName(u), hpPercent)
}

func (n *Namer) HeavyLoss(u *core.Unit, hpPercent int) string {
	return fmt.Sprintf(n.book.heavyLoss, n.UnitName(u), hpPercent)
}

func (n *Namer) Destroyed(u *core.Unit) string {
	return fmt.Sprintf(n.book.destroyed, n.UnitName(u))
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
