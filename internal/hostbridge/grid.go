package hostbridge

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"webmap/server/internal/world"
)

const (
	// SamplerNoise selects the seeded NoiseSampler.
	SamplerNoise = "noise"
	// SamplerGrid selects a GridSampler built from pushed terrain cells.
	SamplerGrid = "grid"

	maxGridSide = 4096
	// inForestBelow is the forest factor under which a point counts as
	// inside a forest.
	inForestBelow = 1.15
)

// ErrInvalidWorld is returned for world-ready payloads that cannot produce a
// sampler.
var ErrInvalidWorld = errors.New("hostbridge: invalid world description")

// TerrainGrid is a square grid of terrain cells centred on the world origin.
// Cells are row-major with row 0 at the most negative z.
type TerrainGrid struct {
	Side       int       `json:"side"`
	CellSize   float64   `json:"cellSize"`
	WaterLevel float64   `json:"waterLevel"`
	Biomes     []int     `json:"biomes"`
	Heights    []float64 `json:"heights"`
	// Forest holds per-cell forest factors. Empty means no forest anywhere.
	Forest []float64 `json:"forest,omitempty"`
}

// WorldReady is the host's signal that terrain queries can be answered.
type WorldReady struct {
	Sampler string       `json:"sampler"`
	Seed    int64        `json:"seed,omitempty"`
	Grid    *TerrainGrid `json:"grid,omitempty"`
}

// BiomeSampler builds the sampler the payload describes.
func (w WorldReady) BiomeSampler() (world.BiomeSampler, error) {
	switch strings.ToLower(strings.TrimSpace(w.Sampler)) {
	case SamplerNoise:
		return NewNoiseSampler(w.Seed), nil
	case SamplerGrid:
		if w.Grid == nil {
			return nil, fmt.Errorf("%w: grid sampler without grid", ErrInvalidWorld)
		}
		return NewGridSampler(*w.Grid)
	default:
		return nil, fmt.Errorf("%w: unknown sampler %q", ErrInvalidWorld, w.Sampler)
	}
}

// GridSampler answers terrain queries from the nearest pushed cell. Points
// outside the grid read the closest edge cell.
type GridSampler struct {
	grid TerrainGrid
}

// NewGridSampler validates the grid dimensions.
func NewGridSampler(grid TerrainGrid) (*GridSampler, error) {
	if grid.Side <= 0 || grid.Side > maxGridSide {
		return nil, fmt.Errorf("%w: side %d outside (0, %d]", ErrInvalidWorld, grid.Side, maxGridSide)
	}
	if math.IsNaN(grid.CellSize) || grid.CellSize <= 0 {
		return nil, fmt.Errorf("%w: cell size %v", ErrInvalidWorld, grid.CellSize)
	}
	cells := grid.Side * grid.Side
	if len(grid.Biomes) != cells || len(grid.Heights) != cells {
		return nil, fmt.Errorf("%w: want %d biomes and heights, got %d and %d", ErrInvalidWorld, cells, len(grid.Biomes), len(grid.Heights))
	}
	if len(grid.Forest) != 0 && len(grid.Forest) != cells {
		return nil, fmt.Errorf("%w: want %d forest factors, got %d", ErrInvalidWorld, cells, len(grid.Forest))
	}
	return &GridSampler{grid: grid}, nil
}

func (s *GridSampler) cell(x, z float64) int {
	half := float64(s.grid.Side) / 2
	col := clampIndex(int(math.Floor(x/s.grid.CellSize+half)), s.grid.Side)
	row := clampIndex(int(math.Floor(z/s.grid.CellSize+half)), s.grid.Side)
	return row*s.grid.Side + col
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Biome implements world.BiomeSampler.
func (s *GridSampler) Biome(x, z float64) world.Biome {
	return world.Biome(s.grid.Biomes[s.cell(x, z)])
}

// Height implements world.BiomeSampler.
func (s *GridSampler) Height(_ world.Biome, x, z float64) float64 {
	return s.grid.Heights[s.cell(x, z)]
}

// InForest implements world.BiomeSampler.
func (s *GridSampler) InForest(x, z float64) bool {
	return s.ForestFactor(x, z) < inForestBelow
}

// ForestFactor implements world.BiomeSampler.
func (s *GridSampler) ForestFactor(x, z float64) float64 {
	if len(s.grid.Forest) == 0 {
		return math.Inf(1)
	}
	return s.grid.Forest[s.cell(x, z)]
}

// WaterLevel implements world.BiomeSampler.
func (s *GridSampler) WaterLevel() float64 {
	return s.grid.WaterLevel
}
