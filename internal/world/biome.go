package world

// Biome classifies a world coordinate for map colouring.
type Biome int

const (
	BiomeNone        Biome = 0
	BiomeMeadows     Biome = 1
	BiomeSwamp       Biome = 2
	BiomeMountain    Biome = 4
	BiomeBlackForest Biome = 8
	BiomePlains      Biome = 16
	BiomeAshLands    Biome = 32
	BiomeDeepNorth   Biome = 64
	BiomeOcean       Biome = 256
	BiomeMistlands   Biome = 512
)

var biomeNames = map[Biome]string{
	BiomeNone:        "none",
	BiomeMeadows:     "meadows",
	BiomeSwamp:       "swamp",
	BiomeMountain:    "mountain",
	BiomeBlackForest: "blackforest",
	BiomePlains:      "plains",
	BiomeAshLands:    "ashlands",
	BiomeDeepNorth:   "deepnorth",
	BiomeOcean:       "ocean",
	BiomeMistlands:   "mistlands",
}

func (b Biome) String() string {
	if name, ok := biomeNames[b]; ok {
		return name
	}
	return "unknown"
}
