package presence

import (
	"math"

	"webmap/server/internal/net/proto"
	"webmap/server/internal/telemetry"
	"webmap/server/internal/world"
)

// MetricLookupFailures counts entities omitted because their lookup failed.
const MetricLookupFailures = "presence_lookup_failures"

// Config wires the reporter to its host collaborators.
type Config struct {
	Roster  world.Roster
	Lookup  world.PositionLookup
	Clock   world.DayClock
	Logger  telemetry.Logger
	Metrics telemetry.Metrics
}

// Reporter samples the host roster for the telemetry and fog ticks.
type Reporter struct {
	roster  world.Roster
	lookup  world.PositionLookup
	clock   world.DayClock
	logger  telemetry.Logger
	metrics telemetry.Metrics
}

// Report is the result of one telemetry tick. Players is nil when no entity
// could be reported.
type Report struct {
	Players *proto.Players
	Time    proto.Time
	Tracked int
	Omitted int
}

// Messages returns the frames to broadcast, in order.
func (r Report) Messages() []proto.Message {
	msgs := make([]proto.Message, 0, 2)
	if r.Players != nil {
		msgs = append(msgs, *r.Players)
	}
	return append(msgs, r.Time)
}

// NewReporter builds a reporter. Roster and Lookup are required.
func NewReporter(cfg Config) *Reporter {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Nop()
	}
	return &Reporter{
		roster:  cfg.Roster,
		lookup:  cfg.Lookup,
		clock:   cfg.Clock,
		logger:  logger,
		metrics: cfg.Metrics,
	}
}

// Tick samples every tracked entity once. A failed lookup omits only that
// entity. The time message is always produced.
func (r *Reporter) Tick() Report {
	peers := r.peers()
	report := Report{Tracked: len(peers)}

	entries := make([]proto.PlayerEntry, 0, len(peers))
	for _, peer := range peers {
		vitals, err := r.lookup.Lookup(peer.ID)
		if err != nil {
			report.Omitted++
			continue
		}
		if !peer.PublicPosition {
			entries = append(entries, proto.PlayerEntry{ID: peer.ID, Name: peer.Name, Hidden: true})
			continue
		}
		entries = append(entries, proto.PlayerEntry{
			ID:         peer.ID,
			Name:       peer.Name,
			Position:   vitals.Position,
			Health:     vitals.Health,
			MaxHealth:  math.Max(vitals.MaxHealth, vitals.Health),
			Stamina:    vitals.Stamina,
			MaxStamina: vitals.MaxStamina,
		})
	}
	if report.Omitted > 0 && r.metrics != nil {
		r.metrics.Add(MetricLookupFailures, uint64(report.Omitted))
	}
	if len(entries) > 0 {
		report.Players = &proto.Players{Entries: entries}
	}
	if r.clock != nil {
		report.Time = proto.Time{Day: r.clock.Day(), Fraction: r.clock.DayFraction()}
	}
	return report
}

// PublicPositions returns the live positions of entities that share their
// location, and the number of entities tracked. Failed lookups are skipped.
func (r *Reporter) PublicPositions() ([]world.Position, int) {
	peers := r.peers()
	positions := make([]world.Position, 0, len(peers))
	for _, peer := range peers {
		if !peer.PublicPosition {
			continue
		}
		vitals, err := r.lookup.Lookup(peer.ID)
		if err != nil {
			continue
		}
		positions = append(positions, vitals.Position)
	}
	return positions, len(peers)
}

// Tracked returns the number of entities currently on the roster.
func (r *Reporter) Tracked() int {
	return len(r.peers())
}

// Lookup resolves one entity's live state.
func (r *Reporter) Lookup(id string) (world.Vitals, error) {
	return r.lookup.Lookup(id)
}

func (r *Reporter) peers() []world.Peer {
	if r.roster == nil || r.lookup == nil {
		return nil
	}
	return r.roster.Peers()
}
