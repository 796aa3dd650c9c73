package presence

import (
	"fmt"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"webmap/server/internal/telemetry"
	"webmap/server/internal/world"
	"webmap/server/logging"
)

type staticRoster []world.Peer

func (r staticRoster) Peers() []world.Peer { return append([]world.Peer(nil), r...) }

type mapLookup map[string]world.Vitals

func (m mapLookup) Lookup(id string) (world.Vitals, error) {
	v, ok := m[id]
	if !ok {
		return world.Vitals{}, fmt.Errorf("lookup %s: %w", id, world.ErrUnknownEntity)
	}
	return v, nil
}

type fixedClock struct {
	day      int
	fraction float64
}

func (c fixedClock) Day() int             { return c.day }
func (c fixedClock) DayFraction() float64 { return c.fraction }

func TestTickFloorsMaxHealthAtHealth(t *testing.T) {
	reporter := NewReporter(Config{
		Roster: staticRoster{{ID: "1", Name: "Ragnar", PublicPosition: true}},
		Lookup: mapLookup{"1": {Position: world.Position{X: 10, Y: 20, Z: 30}, Health: 15, MaxHealth: 10, Stamina: 5, MaxStamina: 80}},
		Clock:  fixedClock{day: 4, fraction: 0.75},
	})
	report := reporter.Tick()
	if report.Players == nil || len(report.Players.Entries) != 1 {
		t.Fatalf("expected one player entry, got %s", spew.Sdump(report))
	}
	want := "players\n1\nRagnar\n10,20,30\n15\n15\n5\n80\n\n"
	if got := string(report.Players.Encode()); got != want {
		t.Fatalf("players frame = %q, want %q", got, want)
	}
	if got := string(report.Time.Encode()); got != "time\n4,0.75,18:00:00" {
		t.Fatalf("unexpected time frame %q", got)
	}
}

func TestTickOmitsFailedLookups(t *testing.T) {
	metrics := &logging.Metrics{}
	reporter := NewReporter(Config{
		Roster: staticRoster{
			{ID: "1", Name: "Ragnar", PublicPosition: true},
			{ID: "2", Name: "Ghost", PublicPosition: true},
			{ID: "3", Name: "Astrid"},
		},
		Lookup:  mapLookup{"1": {Health: 10, MaxHealth: 25}, "3": {Health: 1}},
		Clock:   fixedClock{},
		Metrics: telemetry.WrapMetrics(metrics),
	})
	report := reporter.Tick()
	if report.Tracked != 3 || report.Omitted != 1 {
		t.Fatalf("unexpected counts %s", spew.Sdump(report))
	}
	entries := report.Players.Entries
	if len(entries) != 2 || entries[0].ID != "1" || entries[1].ID != "3" || !entries[1].Hidden {
		t.Fatalf("unexpected entries %s", spew.Sdump(entries))
	}
	if metrics.Snapshot()[MetricLookupFailures] != 1 {
		t.Fatalf("expected lookup failure counted, got %v", metrics.Snapshot())
	}
}

func TestTickWithEmptyRosterSendsOnlyTime(t *testing.T) {
	reporter := NewReporter(Config{Roster: staticRoster{}, Lookup: mapLookup{}, Clock: fixedClock{day: 1}})
	report := reporter.Tick()
	if report.Players != nil {
		t.Fatalf("expected players skipped")
	}
	msgs := report.Messages()
	if len(msgs) != 1 || msgs[0].Tag() != "time" {
		t.Fatalf("expected only a time message, got %s", spew.Sdump(msgs))
	}
}

func TestPublicPositionsSkipsHiddenAndFailed(t *testing.T) {
	reporter := NewReporter(Config{
		Roster: staticRoster{
			{ID: "1", PublicPosition: true},
			{ID: "2", PublicPosition: true},
			{ID: "3"},
		},
		Lookup: mapLookup{
			"1": {Position: world.Position{X: 100, Z: -50}},
			"3": {Position: world.Position{X: 7}},
		},
	})
	positions, tracked := reporter.PublicPositions()
	if tracked != 3 {
		t.Fatalf("expected 3 tracked, got %d", tracked)
	}
	if len(positions) != 1 || positions[0] != (world.Position{X: 100, Z: -50}) {
		t.Fatalf("unexpected positions %v", positions)
	}
}
