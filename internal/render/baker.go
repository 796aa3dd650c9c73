package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"webmap/server/internal/persist"
	"webmap/server/internal/raster"
	"webmap/server/internal/telemetry"
	"webmap/server/internal/world"
	"webmap/server/logging"
	"webmap/server/logging/mapdata"
)

// BakerConfig controls where the base map is stored and how large it is.
type BakerConfig struct {
	Path      string
	Size      int
	Logger    telemetry.Logger
	Publisher logging.Publisher
}

// Baker holds the encoded base map. The map is computed at most once per
// world; later Bake calls are no-ops.
type Baker struct {
	bakeMu sync.Mutex

	mu     sync.RWMutex
	data   []byte
	forest *image.Gray

	path      string
	size      int
	logger    telemetry.Logger
	publisher logging.Publisher
}

// NewBaker returns a baker with no map loaded.
func NewBaker(cfg BakerConfig) *Baker {
	size := cfg.Size
	if size <= 0 {
		size = world.TextureSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Nop()
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &Baker{path: cfg.Path, size: size, logger: logger, publisher: publisher}
}

// LoadExisting primes the baker from the map file on disk. A missing file
// is not an error.
func (b *Baker) LoadExisting() (bool, error) {
	if b.path == "" {
		return false, nil
	}
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read map %s: %w", b.path, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	b.mu.Lock()
	b.data = data
	b.mu.Unlock()
	b.logger.Printf("loaded base map %s (%s)", b.path, persist.Size(len(data)))
	return true, nil
}

// Bake renders the base map unless one is already held. It reports whether
// a render happened. The map file is written once; a failed write is logged
// and the in-memory map is still served.
func (b *Baker) Bake(ctx context.Context, sampler world.BiomeSampler) (bool, error) {
	b.bakeMu.Lock()
	defer b.bakeMu.Unlock()

	if b.Ready() {
		b.logger.Printf("base map already built, skipping bake")
		return false, nil
	}

	b.logger.Printf("baking base map (%dx%d)", b.size, b.size)
	started := time.Now()
	result, err := Render(ctx, sampler, b.size)
	if err != nil {
		return false, fmt.Errorf("render map: %w", err)
	}
	data, err := raster.EncodeRGBA(result.Image)
	if err != nil {
		return false, fmt.Errorf("encode map: %w", err)
	}

	b.mu.Lock()
	b.data = data
	b.forest = result.Forest
	b.mu.Unlock()

	if b.path != "" {
		if err := persist.WriteFileAtomic(b.path, data, 0o644); err != nil {
			b.logger.Printf("failed to write base map %s: %v", b.path, err)
			mapdata.SaveFailed(ctx, b.publisher, mapdata.SaveFailedPayload{Path: b.path, Error: err.Error()})
		}
	}

	b.logger.Printf("baked base map in %s (%s)", time.Since(started).Round(time.Millisecond), persist.Size(len(data)))
	mapdata.MapBaked(ctx, b.publisher, mapdata.ArtifactPayload{Path: b.path, Bytes: len(data), Size: persist.Size(len(data))})
	return true, nil
}

// Ready reports whether a base map is held in memory.
func (b *Baker) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data) > 0
}

// Bytes returns a copy of the encoded base map, or nil before the first
// bake.
func (b *Baker) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.data == nil {
		return nil
	}
	return append([]byte(nil), b.data...)
}

// Size reports the encoded length of the base map.
func (b *Baker) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// Forest returns the forest mask of the last bake in this process. It is
// nil when the map was loaded from disk.
func (b *Baker) Forest() *image.Gray {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.forest
}
