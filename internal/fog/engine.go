package fog

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
	"sync/atomic"

	"webmap/server/internal/persist"
	"webmap/server/internal/raster"
	"webmap/server/internal/telemetry"
	"webmap/server/internal/world"
	"webmap/server/logging"
	"webmap/server/logging/mapdata"
)

const (
	fogged   = 0x00
	revealed = 0xff
)

// Config controls where the fog raster lives and how far players see.
type Config struct {
	Path          string
	ExploreRadius float64
	Logger        telemetry.Logger
	Publisher     logging.Publisher
}

// Engine owns the fog-of-war raster. Reveal and Persist may be called from
// different goroutines.
type Engine struct {
	mu       sync.Mutex
	mask     *image.Gray
	dirty    bool
	revision atomic.Uint64

	persistMu sync.Mutex
	path      string
	radius    int
	logger    telemetry.Logger
	publisher logging.Publisher
}

// New returns an engine with an all-fogged raster.
func New(cfg Config) *Engine {
	radius := cfg.ExploreRadius
	if radius <= 0 {
		radius = world.DefaultExploreRadius
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Nop()
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &Engine{
		mask:      raster.NewMask(fogged),
		path:      cfg.Path,
		radius:    world.PixelRadius(radius),
		logger:    logger,
		publisher: publisher,
	}
}

// Load builds an engine from the raster stored at cfg.Path. A missing or
// unreadable file yields a fresh all-fogged raster; nothing is written.
func Load(cfg Config) *Engine {
	engine := New(cfg)
	if cfg.Path == "" {
		return engine
	}
	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			engine.logger.Printf("no fog raster at %s, starting fully fogged", cfg.Path)
		} else {
			engine.logger.Printf("failed to read fog raster %s: %v, starting fully fogged", cfg.Path, err)
		}
		return engine
	}
	mask, err := raster.DecodeMask(data)
	if err != nil {
		engine.logger.Printf("failed to decode fog raster %s: %v, starting fully fogged", cfg.Path, err)
		return engine
	}
	engine.mask = mask
	engine.logger.Printf("loaded fog raster %s (%s)", cfg.Path, persist.Size(len(data)))
	return engine
}

// Radius returns the pixel radius cleared around each position.
func (e *Engine) Radius() int {
	return e.radius
}

// Reveal clears the fog around every position and reports how many pixels
// changed. Pixels at exactly the radius stay fogged.
func (e *Engine) Reveal(positions []world.Position) int {
	if len(positions) == 0 {
		return 0
	}
	r := e.radius
	r2 := r * r

	e.mu.Lock()
	defer e.mu.Unlock()

	changed := 0
	for _, pos := range positions {
		cx, cy := pos.Pixel()
		for y := cy - r; y <= cy+r; y++ {
			for x := cx - r; x <= cx+r; x++ {
				if !world.InBounds(x, y) {
					continue
				}
				dx, dy := cx-x, cy-y
				if dx*dx+dy*dy >= r2 {
					continue
				}
				offset := e.mask.PixOffset(x, y)
				if e.mask.Pix[offset] == revealed {
					continue
				}
				e.mask.Pix[offset] = revealed
				changed++
			}
		}
	}
	if changed > 0 {
		e.dirty = true
		e.revision.Add(1)
	}
	return changed
}

// IsRevealed reports whether a pixel has been explored. Out-of-bounds pixels
// are never revealed.
func (e *Engine) IsRevealed(px, py int) bool {
	if !world.InBounds(px, py) {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mask.GrayAt(px, py).Y == revealed
}

// Dirty reports whether the raster changed since the last successful save.
func (e *Engine) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// Revision increases every time a reveal changes at least one pixel.
func (e *Engine) Revision() uint64 {
	return e.revision.Load()
}

// Snapshot returns a copy of the raster and its revision.
func (e *Engine) Snapshot() (*image.Gray, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return raster.CloneMask(e.mask), e.revision.Load()
}

// EncodePNG encodes a consistent copy of the raster.
func (e *Engine) EncodePNG() ([]byte, uint64, error) {
	mask, rev := e.Snapshot()
	data, err := raster.EncodeMask(mask)
	if err != nil {
		return nil, 0, err
	}
	return data, rev, nil
}

// Persist writes the raster when at least one entity is tracked and the
// raster is dirty. It reports whether a write happened. The dirty flag is
// cleared only when no reveal landed while the file was being written.
func (e *Engine) Persist(ctx context.Context, tracked int) (bool, error) {
	if tracked <= 0 || e.path == "" {
		return false, nil
	}
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	e.mu.Lock()
	if !e.dirty {
		e.mu.Unlock()
		return false, nil
	}
	mask := raster.CloneMask(e.mask)
	rev := e.revision.Load()
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	data, err := raster.EncodeMask(mask)
	if err == nil {
		err = persist.WriteFileAtomic(e.path, data, 0o644)
	}
	if err != nil {
		e.logger.Printf("failed to write fog raster %s: %v", e.path, err)
		mapdata.SaveFailed(ctx, e.publisher, mapdata.SaveFailedPayload{Path: e.path, Error: err.Error()})
		return false, fmt.Errorf("persist fog: %w", err)
	}

	e.mu.Lock()
	if e.revision.Load() == rev {
		e.dirty = false
	}
	e.mu.Unlock()

	mapdata.FogSaved(ctx, e.publisher, mapdata.ArtifactPayload{Path: e.path, Bytes: len(data), Size: persist.Size(len(data))})
	return true, nil
}
