package render

import "webmap/server/internal/world"

// rgb is a linear colour with channels in [0, 1].
type rgb struct {
	r, g, b, a float64
}

var (
	deepWater    = rgb{0.36105883, 0.36105883, 0.43137255, 1}
	shallowWater = rgb{0.574, 0.50709206, 0.47892025, 1}
	shore        = rgb{0.1981132, 0.12241901, 0.1503943, 1}
	white        = rgb{1, 1, 1, 1}
)

var biomeColors = map[world.Biome]rgb{
	world.BiomeMeadows:     {0.573, 0.655, 0.361, 1},
	world.BiomeSwamp:       {0.639, 0.447, 0.345, 1},
	world.BiomeMountain:    white,
	world.BiomeBlackForest: {0.420, 0.455, 0.247, 1},
	world.BiomePlains:      {0.906, 0.671, 0.470, 1},
	world.BiomeAshLands:    {0.690, 0.192, 0.192, 1},
	world.BiomeDeepNorth:   white,
	world.BiomeOcean:       white,
	world.BiomeMistlands:   {0.325, 0.325, 0.325, 1},
}

// baseColor returns the flat colour of a biome. Unknown biomes are white.
func baseColor(biome world.Biome) rgb {
	if c, ok := biomeColors[biome]; ok {
		return c
	}
	return white
}

// forested applies the per-biome forest density rules. Pixels below the
// water line are never forested.
func forested(sampler world.BiomeSampler, biome world.Biome, x, z, height float64) bool {
	if height < sampler.WaterLevel() {
		return false
	}
	switch biome {
	case world.BiomeMeadows:
		return sampler.InForest(x, z)
	case world.BiomePlains:
		return sampler.ForestFactor(x, z) < 0.8
	case world.BiomeBlackForest, world.BiomeMistlands:
		return true
	default:
		return false
	}
}

func lerp(a, b rgb, t float64) rgb {
	t = clamp01(t)
	return rgb{
		r: a.r + (b.r-a.r)*t,
		g: a.g + (b.g-a.g)*t,
		b: a.b + (b.b-a.b)*t,
		a: a.a + (b.a-a.a)*t,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func channel(v float64) uint8 {
	return uint8(clamp01(v)*255 + 0.5)
}
