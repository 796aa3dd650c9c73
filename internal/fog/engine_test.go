package fog

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"webmap/server/internal/raster"
	"webmap/server/internal/world"
	"webmap/server/logging"
	"webmap/server/logging/mapdata"
)

func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fog.png")
	return New(Config{Path: path}), path
}

func TestRevealBoundaryIsStrict(t *testing.T) {
	engine, _ := newTestEngine(t)
	r := engine.Radius()
	if r != world.PixelRadius(world.DefaultExploreRadius) {
		t.Fatalf("unexpected radius %d", r)
	}

	engine.Reveal([]world.Position{{}})
	cx, cy := world.WorldToPixel(0, 0)

	if !engine.IsRevealed(cx, cy) {
		t.Fatalf("expected centre revealed")
	}
	if engine.IsRevealed(cx+r, cy) || engine.IsRevealed(cx, cy-r) {
		t.Fatalf("expected pixels at squared distance R^2 to stay fogged")
	}
	if !engine.IsRevealed(cx+r-1, cy) || !engine.IsRevealed(cx, cy-(r-1)) {
		t.Fatalf("expected pixels at distance R-1 revealed")
	}
}

func TestRevealIsMonotonic(t *testing.T) {
	engine, _ := newTestEngine(t)
	first := engine.Reveal([]world.Position{{X: 120, Z: -60}})
	if first == 0 {
		t.Fatalf("expected first reveal to change pixels")
	}
	mask, _ := engine.Snapshot()

	if again := engine.Reveal([]world.Position{{X: 120, Z: -60}}); again != 0 {
		t.Fatalf("expected repeated reveal to change nothing, changed %d", again)
	}
	engine.Reveal([]world.Position{{X: 5000, Z: 5000}})

	after, _ := engine.Snapshot()
	for i, v := range mask.Pix {
		if v == 0xff && after.Pix[i] != 0xff {
			t.Fatalf("pixel %d was re-fogged", i)
		}
	}
}

func TestRevealSkipsOutOfBounds(t *testing.T) {
	engine, _ := newTestEngine(t)
	edge := float64(world.TextureSize/2) * world.PixelSize
	changed := engine.Reveal([]world.Position{{X: edge, Z: edge}, {X: -edge * 3, Z: 0}})
	if changed == 0 {
		t.Fatalf("expected the in-bounds quarter disc to be revealed")
	}
	if !engine.IsRevealed(world.TextureSize-1, world.TextureSize-1) {
		t.Fatalf("expected corner pixel revealed")
	}
}

func TestPersistRequiresTrackedEntityAndDirtyFlag(t *testing.T) {
	engine, path := newTestEngine(t)
	ctx := context.Background()

	wrote, err := engine.Persist(ctx, 1)
	if err != nil || wrote {
		t.Fatalf("expected clean raster not to be written: wrote=%v err=%v", wrote, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no fog file for an unvisited world")
	}

	engine.Reveal([]world.Position{{}})
	if wrote, _ := engine.Persist(ctx, 0); wrote {
		t.Fatalf("expected no write without tracked entities")
	}
	wrote, err = engine.Persist(ctx, 1)
	if err != nil || !wrote {
		t.Fatalf("expected dirty raster written: wrote=%v err=%v", wrote, err)
	}
	if engine.Dirty() {
		t.Fatalf("expected dirty flag cleared after save")
	}
}

func TestPersistWithoutChangesLeavesFileUntouched(t *testing.T) {
	engine, path := newTestEngine(t)
	ctx := context.Background()
	engine.Reveal([]world.Position{{X: 36, Z: 36}})
	if _, err := engine.Persist(ctx, 1); err != nil {
		t.Fatalf("persist failed: %v", err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	info, _ := os.Stat(path)

	if wrote, err := engine.Persist(ctx, 3); wrote || err != nil {
		t.Fatalf("expected no-op persist, wrote=%v err=%v", wrote, err)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("expected file contents unchanged")
	}
	infoAfter, _ := os.Stat(path)
	if !info.ModTime().Equal(infoAfter.ModTime()) {
		t.Fatalf("expected modification time unchanged")
	}
}

func TestPersistFailureKeepsDirtyFlag(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "fog.png")
	if err := os.MkdirAll(filepath.Join(blocked, "child"), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	var events []logging.Event
	pub := logging.PublisherFunc(func(_ context.Context, e logging.Event) { events = append(events, e) })
	engine := New(Config{Path: blocked, Publisher: pub})
	engine.Reveal([]world.Position{{}})

	wrote, err := engine.Persist(context.Background(), 1)
	if err == nil || wrote {
		t.Fatalf("expected write failure, wrote=%v err=%v", wrote, err)
	}
	if !engine.Dirty() {
		t.Fatalf("expected dirty flag kept after failed write")
	}
	if len(events) != 1 || events[0].Type != mapdata.EventSaveFailed {
		t.Fatalf("expected save failure event, got %+v", events)
	}
}

func TestLoadRestoresSavedRaster(t *testing.T) {
	engine, path := newTestEngine(t)
	engine.Reveal([]world.Position{{X: -300, Z: 450}})
	if _, err := engine.Persist(context.Background(), 1); err != nil {
		t.Fatalf("persist failed: %v", err)
	}

	loaded := Load(Config{Path: path})
	want, _ := engine.Snapshot()
	got, _ := loaded.Snapshot()
	if !bytes.Equal(want.Pix, got.Pix) {
		t.Fatalf("expected loaded raster to match saved raster")
	}
	if loaded.Dirty() {
		t.Fatalf("expected freshly loaded raster clean")
	}
}

func TestLoadCorruptFileStartsFogged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fog.png")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	engine := Load(Config{Path: path})
	mask, _ := engine.Snapshot()
	for _, v := range mask.Pix {
		if v != 0 {
			t.Fatalf("expected fully fogged raster")
		}
	}
	data, _ := os.ReadFile(path)
	if string(data) != "garbage" {
		t.Fatalf("expected corrupt file left alone until the next save")
	}
}

func TestEncodePNGDecodes(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.Reveal([]world.Position{{X: 10, Z: 10}})
	data, rev, err := engine.EncodePNG()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if rev != engine.Revision() || rev == 0 {
		t.Fatalf("unexpected revision %d", rev)
	}
	mask, err := raster.DecodeMask(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	px, py := world.WorldToPixel(10, 10)
	if mask.GrayAt(px, py).Y != 0xff {
		t.Fatalf("expected revealed pixel in encoded raster")
	}
}
