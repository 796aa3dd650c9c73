package hostbridge

import (
	"math"

	"webmap/server/internal/world"
)

// DefaultWaterLevel is the sea height of the demo terrain.
const DefaultWaterLevel = 30.0

// NoiseSampler is a deterministic world.BiomeSampler used when no host
// terrain is available. Biomes form rough rings around the origin.
type NoiseSampler struct {
	seed  uint64
	water float64
}

// NewNoiseSampler returns a sampler for the given seed.
func NewNoiseSampler(seed int64) *NoiseSampler {
	return &NoiseSampler{seed: uint64(seed), water: DefaultWaterLevel}
}

// Biome implements world.BiomeSampler.
func (s *NoiseSampler) Biome(x, z float64) world.Biome {
	if s.continent(x, z) < 0.35 {
		return world.BiomeOcean
	}
	dist := math.Hypot(x, z) + (s.noise(x/900, z/900, 7)-0.5)*1500
	variant := s.noise(x/500, z/500, 11)
	switch {
	case z > 9000:
		return world.BiomeDeepNorth
	case z < -9000:
		return world.BiomeAshLands
	case dist < 2000:
		return world.BiomeMeadows
	case dist < 4000:
		if variant > 0.65 {
			return world.BiomeSwamp
		}
		return world.BiomeBlackForest
	case dist < 6500:
		if variant > 0.6 {
			return world.BiomeMountain
		}
		return world.BiomePlains
	default:
		if variant > 0.5 {
			return world.BiomeMistlands
		}
		return world.BiomePlains
	}
}

// Height implements world.BiomeSampler.
func (s *NoiseSampler) Height(biome world.Biome, x, z float64) float64 {
	base := s.continent(x, z)*80 - 5
	detail := s.fbm(x/200, z/200, 3) * 10
	switch biome {
	case world.BiomeOcean:
		return math.Min(base, s.water-1)
	case world.BiomeMountain, world.BiomeDeepNorth:
		return base + 40 + detail*4
	case world.BiomeSwamp:
		return s.water + 1 + detail*0.2
	default:
		return base + detail
	}
}

// InForest implements world.BiomeSampler.
func (s *NoiseSampler) InForest(x, z float64) bool {
	return s.ForestFactor(x, z) < 0.45
}

// ForestFactor implements world.BiomeSampler.
func (s *NoiseSampler) ForestFactor(x, z float64) float64 {
	return s.fbm(x/300, z/300, 5)
}

// WaterLevel implements world.BiomeSampler.
func (s *NoiseSampler) WaterLevel() float64 {
	return s.water
}

func (s *NoiseSampler) continent(x, z float64) float64 {
	edge := 1 - math.Hypot(x, z)/11000
	return clamp01(s.fbm(x/2500, z/2500, 1)*0.6 + edge*0.6)
}

// fbm sums four octaves of value noise into [0, 1].
func (s *NoiseSampler) fbm(x, z float64, salt uint64) float64 {
	total, amplitude, norm := 0.0, 1.0, 0.0
	for octave := uint64(0); octave < 4; octave++ {
		total += s.noise(x, z, salt+octave*101) * amplitude
		norm += amplitude
		amplitude *= 0.5
		x, z = x*2, z*2
	}
	return total / norm
}

// noise is smoothed value noise on the integer lattice, in [0, 1].
func (s *NoiseSampler) noise(x, z float64, salt uint64) float64 {
	x0, z0 := math.Floor(x), math.Floor(z)
	tx, tz := smooth(x-x0), smooth(z-z0)
	ix, iz := int64(x0), int64(z0)
	a := s.lattice(ix, iz, salt)
	b := s.lattice(ix+1, iz, salt)
	c := s.lattice(ix, iz+1, salt)
	d := s.lattice(ix+1, iz+1, salt)
	top := a + (b-a)*tx
	bottom := c + (d-c)*tx
	return top + (bottom-top)*tz
}

func (s *NoiseSampler) lattice(x, z int64, salt uint64) float64 {
	h := s.seed ^ salt*0x9e3779b97f4a7c15
	h ^= uint64(x) * 0xbf58476d1ce4e5b9
	h ^= uint64(z) * 0x94d049bb133111eb
	h ^= h >> 30
	h *= 0xbf58476d1ce4e5b9
	h ^= h >> 27
	h *= 0x94d049bb133111eb
	h ^= h >> 31
	return float64(h>>11) / float64(1<<53)
}

func smooth(t float64) float64 {
	return t * t * (3 - 2*t)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
