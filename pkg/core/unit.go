// pkg/core/unit.go
package core

// Identity is the faction affiliation of a unit token.
type Identity string

const (
	IdentityFriend  Identity = "friend"
	IdentityHostile Identity = "hostile"
	IdentityNeutral Identity = "neutral"
	IdentityUnknown Identity = "unknown"
)

// Entity is the combat role of a unit.
type Entity string

const (
	EntityInfantry  Entity = "infantry"
	EntityTank      Entity = "tank"
	EntityAPC       Entity = "apc"
	EntityArtillery Entity = "artillery"
	EntityMedical   Entity = "medical"
	EntitySupply    Entity = "supply"
	EntityUAV       Entity = "uav"
	EntityHQ        Entity = "hq"
)

// Echelon is the organisational size tier of a unit.
type Echelon string

const (
	EchelonTeam      Echelon = "team"
	EchelonSquad     Echelon = "squad"
	EchelonSection   Echelon = "section"
	EchelonPlatoon   Echelon = "platoon"
	EchelonCompany   Echelon = "company"
	EchelonBattalion Echelon = "battalion"
	EchelonRegiment  Echelon = "regiment"
	EchelonBrigade   Echelon = "brigade"
)

// Stats are the combat values derived from entity class and echelon.
type Stats struct {
	MaxHP   int     `json:"maxHp"`
	Attack  int     `json:"attack"`
	Defense int     `json:"defense"` // percent damage reduction
	Range   float64 `json:"range"`   // metres
}

// Unit is the world-state record of a tactical token.
type Unit struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Identity Identity `json:"identity"`
	Entity   Entity   `json:"entity"`
	Echelon  Echelon  `json:"echelon"`
	Position LatLng   `json:"latLng"`
	HP       int      `json:"hp"`
	MaxHP    int      `json:"maxHp"`

	// EngagedTarget is the last target an engage log entry was emitted for.
	EngagedTarget string `json:"-"`
}

// HPFraction returns HP/MaxHP, or 0 when MaxHP is not set.
func (u *Unit) HPFraction() float64 {
	if u.MaxHP <= 0 {
		return 0
	}
	return float64(u.HP) / float64(u.MaxHP)
}

// Alive reports whether the unit still has hit points.
func (u *Unit) Alive() bool {
	return u.HP > 0
}

// UnitDelta is a partial unit update from the authoritative object store.
// Nil fields were not provided.
type UnitDelta struct {
	ID       string    `json:"id"`
	Name     *string   `json:"name,omitempty"`
	Identity *Identity `json:"identity,omitempty"`
	Entity   *Entity   `json:"entity,omitempty"`
	Echelon  *Echelon  `json:"echelon,omitempty"`
	Position *LatLng   `json:"latLng,omitempty"`
	HP       *int      `json:"hp,omitempty"`
	MaxHP    *int      `json:"maxHp,omitempty"`
}

// UnitState is the compact copy of a unit kept in history snapshots.
type UnitState struct {
	ID       string   `json:"id"`
	Position LatLng   `json:"latLng"`
	HP       int      `json:"hp"`
	MaxHP    int      `json:"maxHp"`
	Identity Identity `json:"identity"`
	Entity   Entity   `json:"entity"`
	Echelon  Echelon  `json:"echelon"`
	Name     string   `json:"name,omitempty"`
}
