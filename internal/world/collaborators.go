package world

import "errors"

// ErrUnknownEntity is returned by PositionLookup implementations when the
// host no longer tracks the requested entity.
var ErrUnknownEntity = errors.New("world: unknown entity")

// Peer is one connected entity as reported by the host roster.
type Peer struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	PublicPosition bool   `json:"publicRefPos"`
}

// Vitals carries the live state of a tracked entity.
type Vitals struct {
	Position   Position `json:"position"`
	Health     float64  `json:"health"`
	MaxHealth  float64  `json:"maxHealth"`
	Stamina    float64  `json:"stamina"`
	MaxStamina float64  `json:"maxStamina"`
}

// Roster lists the entities currently connected to the host. Each call
// returns an independent snapshot.
type Roster interface {
	Peers() []Peer
}

// PositionLookup resolves the live state of a single entity. Lookups may
// fail independently per entity.
type PositionLookup interface {
	Lookup(id string) (Vitals, error)
}

// BiomeSampler answers terrain queries at bake time.
type BiomeSampler interface {
	Biome(x, z float64) Biome
	Height(biome Biome, x, z float64) float64
	InForest(x, z float64) bool
	ForestFactor(x, z float64) float64
	WaterLevel() float64
}

// DayClock reports the host's in-game calendar.
type DayClock interface {
	Day() int
	DayFraction() float64
}
