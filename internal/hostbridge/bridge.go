package hostbridge

import (
	"fmt"
	"math"
	"sync"
	"time"

	"webmap/server/internal/world"
)

const defaultStaleAfter = 10 * time.Second

// PeerState is one roster entry pushed by the host, with its live vitals.
type PeerState struct {
	world.Peer
	Vitals *world.Vitals `json:"vitals,omitempty"`
}

// RosterUpdate replaces the whole roster.
type RosterUpdate struct {
	Peers []PeerState `json:"peers"`
}

// ClockUpdate reports the host calendar.
type ClockUpdate struct {
	Day         int     `json:"day"`
	DayFraction float64 `json:"dayFraction"`
}

// Config tunes how pushed state ages.
type Config struct {
	// StaleAfter bounds how long pushed vitals stay valid. Lookups for
	// entities whose vitals are older fail.
	StaleAfter time.Duration
	// DayLength advances the clock between pushes. Zero freezes it.
	DayLength time.Duration
	Now       func() time.Time
}

type vitalsEntry struct {
	vitals  world.Vitals
	updated time.Time
}

// Bridge holds the host state pushed over HTTP and serves it through the
// world collaborator interfaces.
type Bridge struct {
	mu      sync.RWMutex
	peers   []world.Peer
	vitals  map[string]vitalsEntry
	clock   ClockUpdate
	clockAt time.Time

	staleAfter time.Duration
	dayLength  time.Duration
	now        func() time.Time
}

// New returns an empty bridge.
func New(cfg Config) *Bridge {
	stale := cfg.StaleAfter
	if stale <= 0 {
		stale = defaultStaleAfter
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Bridge{
		vitals:     make(map[string]vitalsEntry),
		staleAfter: stale,
		dayLength:  cfg.DayLength,
		now:        now,
	}
}

// UpdateRoster replaces the roster. Peers without vitals keep their last
// known vitals.
func (b *Bridge) UpdateRoster(update RosterUpdate) error {
	now := b.now()
	peers := make([]world.Peer, 0, len(update.Peers))
	seen := make(map[string]struct{}, len(update.Peers))
	for i, p := range update.Peers {
		if p.ID == "" {
			return fmt.Errorf("peer %d: missing id", i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("peer %d: duplicate id %s", i, p.ID)
		}
		seen[p.ID] = struct{}{}
		peers = append(peers, p.Peer)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.peers = peers
	for id := range b.vitals {
		if _, ok := seen[id]; !ok {
			delete(b.vitals, id)
		}
	}
	for _, p := range update.Peers {
		if p.Vitals != nil {
			b.vitals[p.ID] = vitalsEntry{vitals: *p.Vitals, updated: now}
		}
	}
	return nil
}

// UpdateClock records the host calendar.
func (b *Bridge) UpdateClock(update ClockUpdate) error {
	if math.IsNaN(update.DayFraction) || update.DayFraction < 0 || update.DayFraction >= 1 {
		return fmt.Errorf("day fraction %v outside [0, 1)", update.DayFraction)
	}
	if update.Day < 0 {
		return fmt.Errorf("negative day %d", update.Day)
	}
	b.mu.Lock()
	b.clock = update
	b.clockAt = b.now()
	b.mu.Unlock()
	return nil
}

// Peers implements world.Roster.
func (b *Bridge) Peers() []world.Peer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]world.Peer(nil), b.peers...)
}

// Lookup implements world.PositionLookup.
func (b *Bridge) Lookup(id string) (world.Vitals, error) {
	b.mu.RLock()
	entry, ok := b.vitals[id]
	b.mu.RUnlock()
	if !ok {
		return world.Vitals{}, fmt.Errorf("lookup %s: %w", id, world.ErrUnknownEntity)
	}
	if age := b.now().Sub(entry.updated); age > b.staleAfter {
		return world.Vitals{}, fmt.Errorf("lookup %s: vitals %s old: %w", id, age.Round(time.Second), world.ErrUnknownEntity)
	}
	return entry.vitals, nil
}

// Day implements world.DayClock.
func (b *Bridge) Day() int {
	day, _ := b.current()
	return day
}

// DayFraction implements world.DayClock.
func (b *Bridge) DayFraction() float64 {
	_, fraction := b.current()
	return fraction
}

func (b *Bridge) current() (int, float64) {
	b.mu.RLock()
	clock, at := b.clock, b.clockAt
	b.mu.RUnlock()
	if b.dayLength <= 0 || at.IsZero() {
		return clock.Day, clock.DayFraction
	}
	advanced := clock.DayFraction + float64(b.now().Sub(at))/float64(b.dayLength)
	whole := math.Floor(advanced)
	return clock.Day + int(whole), advanced - whole
}
