package pins

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"webmap/server/internal/world"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("pin-%d", n)
	}
}

func newTestStore(t *testing.T, mutate func(*Config)) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pins.csv")
	cfg := Config{Path: path, NewID: sequentialIDs(), EvictOverQuota: true}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewStore(cfg), path
}

func TestAddNormalizesAndMarksDirty(t *testing.T) {
	store, _ := newTestStore(t, nil)
	pin, evicted := store.Add("owner-1", "castle", "Ragnar", world.Position{X: 1, Y: 2, Z: 3}, "Base camp!!")
	if len(evicted) != 0 {
		t.Fatalf("unexpected eviction %v", evicted)
	}
	if pin.Kind != KindDot || pin.Label != "Base camp" || pin.ID != "pin-1" {
		t.Fatalf("unexpected pin %s", spew.Sdump(pin))
	}
	if !store.Dirty() {
		t.Fatalf("expected store dirty after add")
	}
}

func TestDefaultIDsAreUnique(t *testing.T) {
	store := NewStore(Config{})
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		pin, _ := store.Add("owner", KindDot, "n", world.Position{}, "x")
		if _, ok := seen[pin.ID]; ok {
			t.Fatalf("duplicate id %s", pin.ID)
		}
		seen[pin.ID] = struct{}{}
	}
}

func TestUndoRemovesMostRecentPinOfOwner(t *testing.T) {
	store, _ := newTestStore(t, nil)
	const n = 5
	for i := 0; i < n; i++ {
		store.Add("owner-a", KindFire, "A", world.Position{X: float64(i)}, fmt.Sprintf("a%d", i))
		store.Add("owner-b", KindCave, "B", world.Position{Z: float64(i)}, fmt.Sprintf("b%d", i))
	}
	before := store.Snapshot()

	removed, err := store.Undo("owner-a")
	if err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	if removed.Label != "a4" {
		t.Fatalf("expected most recent pin removed, got %s", spew.Sdump(removed))
	}

	after := store.Snapshot()
	if len(after) != len(before)-1 {
		t.Fatalf("expected one pin removed, got %d -> %d", len(before), len(after))
	}
	j := 0
	for _, pin := range before {
		if pin.ID == removed.ID {
			continue
		}
		if after[j] != pin {
			t.Fatalf("pin %d changed: %s", j, spew.Sdump(after[j], pin))
		}
		j++
	}
	if store.CountByOwner("owner-a") != n-1 {
		t.Fatalf("expected %d pins left for owner-a", n-1)
	}
}

func TestUndoWithoutPinsReturnsNotFound(t *testing.T) {
	store, _ := newTestStore(t, nil)
	store.Add("someone", KindDot, "S", world.Position{}, "x")
	if _, err := store.Undo("nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteByLabelRemovesMostRecentMatch(t *testing.T) {
	store, _ := newTestStore(t, nil)
	first, _ := store.Add("owner", KindMine, "O", world.Position{X: 1}, "copper")
	store.Add("owner", KindMine, "O", world.Position{X: 2}, "tin")
	second, _ := store.Add("owner", KindMine, "O", world.Position{X: 3}, "copper")
	store.Add("other", KindMine, "P", world.Position{X: 4}, "copper")

	removed, err := store.DeleteByLabel("owner", "copper")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if removed.ID != second.ID {
		t.Fatalf("expected newest matching pin removed, got %s", removed.ID)
	}
	remaining := store.Snapshot()
	if len(remaining) != 3 || remaining[0].ID != first.ID {
		t.Fatalf("unexpected remaining pins %s", spew.Sdump(remaining))
	}
	if _, err := store.DeleteByLabel("owner", "silver"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown label, got %v", err)
	}
}

func TestAddEvictsOldestPinsOverQuota(t *testing.T) {
	store, _ := newTestStore(t, func(cfg *Config) { cfg.MaxPerOwner = 3 })
	for i := 0; i < 3; i++ {
		store.Add("owner", KindDot, "O", world.Position{}, fmt.Sprintf("p%d", i))
	}
	store.Add("other", KindDot, "X", world.Position{}, "keep")

	_, evicted := store.Add("owner", KindDot, "O", world.Position{}, "p3")
	if len(evicted) != 1 || evicted[0].Label != "p0" {
		t.Fatalf("expected oldest pin evicted, got %s", spew.Sdump(evicted))
	}
	if got := store.CountByOwner("owner"); got != 3 {
		t.Fatalf("expected owner capped at 3, got %d", got)
	}
	if got := store.CountByOwner("other"); got != 1 {
		t.Fatalf("expected other owner untouched, got %d", got)
	}
}

func TestAddReportsOverQuotaWithoutEvicting(t *testing.T) {
	store, _ := newTestStore(t, func(cfg *Config) {
		cfg.MaxPerOwner = 1
		cfg.EvictOverQuota = false
	})
	store.Add("owner", KindDot, "O", world.Position{}, "a")
	_, evicted := store.Add("owner", KindDot, "O", world.Position{}, "b")
	if len(evicted) != 0 {
		t.Fatalf("expected no eviction when disabled")
	}
	if got := store.CountByOwner("owner"); got != 2 {
		t.Fatalf("expected both pins kept, got %d", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, path := newTestStore(t, nil)
	store.Add("76561198000000001", KindHouse, "Ragnar, the Bold", world.Position{X: -120.5, Y: 31.25, Z: 940}, "home")
	store.Add("76561198000000002", KindFire, "Astrid", world.Position{X: 12, Y: 0, Z: -8.75}, "camp fire")
	store.Add("76561198000000001", KindCave, "Ragnar, the Bold", world.Position{X: 0.01, Y: 2, Z: 3}, "")

	if err := store.Save(context.Background()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if store.Dirty() {
		t.Fatalf("expected clean store after save")
	}

	loaded := NewStore(Config{Path: path})
	if err := loaded.Load(); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	want := store.Snapshot()
	got := loaded.Snapshot()
	if len(got) != len(want) {
		t.Fatalf("expected %d pins, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pin %d mismatch:\n%s", i, spew.Sdump(want[i], got[i]))
		}
	}
}

func TestSaveLoadKeepsFullPrecisionPositions(t *testing.T) {
	store, path := newTestStore(t, nil)
	want := world.Position{X: -120.456789, Y: 31.333, Z: 940.0049}
	store.Add("76561198000000001", KindMine, "Ragnar", want, "copper")
	if err := store.Save(context.Background()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded := NewStore(Config{Path: path})
	if err := loaded.Load(); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	got := loaded.Snapshot()
	if len(got) != 1 {
		t.Fatalf("expected 1 pin, got %d", len(got))
	}
	if got[0].Position != want {
		t.Fatalf("expected position %+v after reload, got %+v", want, got[0].Position)
	}
}

func TestSaveIfDirtySkipsCleanStore(t *testing.T) {
	store, path := newTestStore(t, nil)
	if wrote, err := store.SaveIfDirty(context.Background()); wrote || err != nil {
		t.Fatalf("expected clean store skipped, wrote=%v err=%v", wrote, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no pins file for untouched store")
	}

	store.Add("owner", KindDot, "O", world.Position{}, "a")
	store.Add("owner", KindDot, "O", world.Position{}, "b")
	if wrote, err := store.SaveIfDirty(context.Background()); !wrote || err != nil {
		t.Fatalf("expected coalesced write, wrote=%v err=%v", wrote, err)
	}
	if wrote, _ := store.SaveIfDirty(context.Background()); wrote {
		t.Fatalf("expected second flush to be a no-op")
	}
}

func TestLoadMissingOrCorruptFileLeavesStoreEmpty(t *testing.T) {
	dir := t.TempDir()
	missing := NewStore(Config{Path: filepath.Join(dir, "absent.csv")})
	if err := missing.Load(); err != nil {
		t.Fatalf("expected missing file tolerated, got %v", err)
	}
	if missing.Len() != 0 {
		t.Fatalf("expected empty store")
	}

	corruptPath := filepath.Join(dir, "pins.csv")
	if err := os.WriteFile(corruptPath, []byte("a,b,c\n"), 0o644); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	corrupt := NewStore(Config{Path: corruptPath})
	if err := corrupt.Load(); !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
	if corrupt.Len() != 0 {
		t.Fatalf("expected empty store after corrupt load")
	}
}

func TestSaveFailureKeepsStoreDirty(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "pins.csv")
	if err := os.MkdirAll(filepath.Join(blocked, "child"), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	store := NewStore(Config{Path: blocked})
	store.Add("owner", KindDot, "O", world.Position{}, "a")
	if _, err := store.SaveIfDirty(context.Background()); err == nil {
		t.Fatalf("expected save failure")
	}
	if !store.Dirty() {
		t.Fatalf("expected store still dirty for the next flush")
	}
}
