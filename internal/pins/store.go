package pins

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"webmap/server/internal/persist"
	"webmap/server/internal/telemetry"
	"webmap/server/internal/world"
	"webmap/server/logging"
	"webmap/server/logging/mapdata"
)

// ErrNotFound is returned when an owner has no matching pin.
var ErrNotFound = errors.New("pins: not found")

// Config controls persistence and quota behaviour.
type Config struct {
	Path        string
	MaxPerOwner int
	// EvictOverQuota removes an owner's oldest pins once the quota is
	// exceeded. When false, overflow is only reported.
	EvictOverQuota bool
	NewID          func() string
	Logger         telemetry.Logger
	Publisher      logging.Publisher
}

// Store is the ordered pin collection. Insertion order is creation order.
type Store struct {
	mu    sync.RWMutex
	pins  []Pin
	dirty bool

	saveMu    sync.Mutex
	path      string
	maxOwner  int
	evict     bool
	newID     func() string
	logger    telemetry.Logger
	publisher logging.Publisher
}

// NewStore returns an empty store.
func NewStore(cfg Config) *Store {
	maxOwner := cfg.MaxPerOwner
	if maxOwner <= 0 {
		maxOwner = DefaultMaxPerOwner
	}
	newID := cfg.NewID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Nop()
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &Store{
		path:      cfg.Path,
		maxOwner:  maxOwner,
		evict:     cfg.EvictOverQuota,
		newID:     newID,
		logger:    logger,
		publisher: publisher,
	}
}

// Add appends a new pin and enforces the owner's quota. It returns the new
// pin and any pins evicted to make room.
func (s *Store) Add(owner string, kind Kind, creator string, pos world.Position, label string) (Pin, []Pin) {
	pin := Pin{
		OwnerID:     owner,
		ID:          s.newID(),
		Kind:        NormalizeKind(kind),
		CreatorName: creator,
		Position:    pos,
		Label:       SanitizeLabel(label),
	}

	s.mu.Lock()
	s.pins = append(s.pins, pin)
	s.dirty = true
	var evicted, overflow []Pin
	if over := s.overQuotaLocked(owner); len(over) > 0 {
		if s.evict {
			evicted = s.removeLocked(over)
			overflow = evicted
		} else {
			for _, idx := range over {
				overflow = append(overflow, s.pins[idx])
			}
		}
	}
	owned := s.countLocked(owner)
	s.mu.Unlock()

	ctx := context.Background()
	mapdata.PinAdded(ctx, s.publisher, owner, mapdata.PinPayload{PinID: pin.ID, Kind: string(pin.Kind), Label: pin.Label, Owned: owned})
	if len(overflow) > 0 && !s.evict {
		s.logger.Printf("owner %s holds %d pins, %d over the quota of %d", owner, owned, len(overflow), s.maxOwner)
	}
	for _, victim := range overflow {
		mapdata.PinEvicted(ctx, s.publisher, owner, mapdata.PinPayload{PinID: victim.ID, Kind: string(victim.Kind), Label: victim.Label, Owned: owned})
	}
	return pin, evicted
}

// Undo removes the owner's most recent pin.
func (s *Store) Undo(owner string) (Pin, error) {
	return s.removeLast(owner, func(Pin) bool { return true })
}

// DeleteByLabel removes the owner's most recent pin whose label equals label.
func (s *Store) DeleteByLabel(owner, label string) (Pin, error) {
	return s.removeLast(owner, func(p Pin) bool { return p.Label == label })
}

func (s *Store) removeLast(owner string, match func(Pin) bool) (Pin, error) {
	s.mu.Lock()
	idx := -1
	for i := len(s.pins) - 1; i >= 0; i-- {
		if s.pins[i].OwnerID == owner && match(s.pins[i]) {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return Pin{}, ErrNotFound
	}
	removed := s.removeLocked([]int{idx})[0]
	s.mu.Unlock()

	mapdata.PinRemoved(context.Background(), s.publisher, owner, mapdata.PinPayload{PinID: removed.ID, Kind: string(removed.Kind), Label: removed.Label})
	return removed, nil
}

// overQuotaLocked returns the indices of the owner's oldest pins beyond the
// quota, oldest first.
func (s *Store) overQuotaLocked(owner string) []int {
	var owned []int
	for i, pin := range s.pins {
		if pin.OwnerID == owner {
			owned = append(owned, i)
		}
	}
	if len(owned) <= s.maxOwner {
		return nil
	}
	return owned[:len(owned)-s.maxOwner]
}

// removeLocked deletes the pins at the given ascending indices.
func (s *Store) removeLocked(indices []int) []Pin {
	if len(indices) == 0 {
		return nil
	}
	removed := make([]Pin, 0, len(indices))
	kept := s.pins[:0]
	next := 0
	for i, pin := range s.pins {
		if next < len(indices) && indices[next] == i {
			removed = append(removed, pin)
			next++
			continue
		}
		kept = append(kept, pin)
	}
	for i := len(kept); i < len(s.pins); i++ {
		s.pins[i] = Pin{}
	}
	s.pins = kept
	s.dirty = true
	return removed
}

func (s *Store) countLocked(owner string) int {
	n := 0
	for _, pin := range s.pins {
		if pin.OwnerID == owner {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of every pin in creation order.
func (s *Store) Snapshot() []Pin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Pin, len(s.pins))
	copy(out, s.pins)
	return out
}

// Len returns the number of stored pins.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pins)
}

// CountByOwner returns how many pins the owner holds.
func (s *Store) CountByOwner(owner string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countLocked(owner)
}

// Dirty reports whether the store changed since the last save or load.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Load replaces the store contents with the file at the configured path.
// A missing or corrupt file leaves the store empty and returns the error
// for logging only.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.reset()
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read pins: %w", err)
	}
	loaded, err := Decode(bytes.NewReader(data))
	if err != nil {
		s.reset()
		return fmt.Errorf("load pins: %w", err)
	}
	s.mu.Lock()
	s.pins = loaded
	s.dirty = false
	s.mu.Unlock()
	s.logger.Printf("loaded %d pins from %s", len(loaded), s.path)
	return nil
}

func (s *Store) reset() {
	s.mu.Lock()
	s.pins = nil
	s.dirty = false
	s.mu.Unlock()
}

// Save writes every pin to the configured path.
func (s *Store) Save(ctx context.Context) error {
	_, err := s.save(ctx, true)
	return err
}

// SaveIfDirty writes the store only when it changed since the last save.
func (s *Store) SaveIfDirty(ctx context.Context) (bool, error) {
	return s.save(ctx, false)
}

func (s *Store) save(ctx context.Context, force bool) (bool, error) {
	if s.path == "" {
		return false, nil
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if !force && !s.dirty {
		s.mu.Unlock()
		return false, nil
	}
	snapshot := make([]Pin, len(s.pins))
	copy(snapshot, s.pins)
	// Cleared optimistically; restored below if the write fails.
	s.dirty = false
	s.mu.Unlock()

	data, err := Marshal(snapshot)
	if err == nil {
		err = persist.WriteFileAtomic(s.path, data, 0o644)
	}
	if err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		s.logger.Printf("failed to write pins %s: %v", s.path, err)
		mapdata.SaveFailed(ctx, s.publisher, mapdata.SaveFailedPayload{Path: s.path, Error: err.Error()})
		return false, fmt.Errorf("save pins: %w", err)
	}
	mapdata.PinsSaved(ctx, s.publisher, mapdata.ArtifactPayload{Path: s.path, Bytes: len(data), Size: persist.Size(len(data))})
	return true, nil
}
