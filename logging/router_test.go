package logging_test

import (
	"context"
	"testing"
	"time"

	"webmap/server/logging"
	"webmap/server/logging/sinks"
)

func TestRouterForwardsEventsToSinks(t *testing.T) {
	memory := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{"memory"}
	cfg.Fields = map[string]any{"world": "test"}

	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	router, err := logging.NewRouter(logging.ClockFunc(func() time.Time { return fixed }), cfg, nil, []logging.NamedSink{
		{Name: "memory", Sink: memory},
	})
	if err != nil {
		t.Fatalf("router construction failed: %v", err)
	}

	router.Publish(context.Background(), logging.Event{Type: "test.event", Severity: logging.SeverityInfo})
	router.Publish(context.Background(), logging.Event{Type: "test.debug", Severity: logging.SeverityDebug})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := router.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	events := memory.Events()
	if len(events) != 1 {
		t.Fatalf("expected one event above minimum severity, got %d", len(events))
	}
	if events[0].Type != "test.event" {
		t.Fatalf("unexpected event type %q", events[0].Type)
	}
	if !events[0].Time.Equal(fixed) {
		t.Fatalf("expected router clock stamp, got %v", events[0].Time)
	}
	if events[0].Fields["world"] != "test" {
		t.Fatalf("expected configured fields merged, got %+v", events[0].Fields)
	}
	if stats := router.Stats(); stats.EventsTotal != 1 {
		t.Fatalf("expected one forwarded event, got %+v", stats)
	}
}

func TestRouterSkipsDisabledSinks(t *testing.T) {
	memory := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{"console"}

	router, err := logging.NewRouter(nil, cfg, nil, []logging.NamedSink{{Name: "memory", Sink: memory}})
	if err != nil {
		t.Fatalf("router construction failed: %v", err)
	}
	if router.Sink("memory") != nil {
		t.Fatalf("expected disabled sink to be skipped")
	}
	router.Close(context.Background())
}

func TestRouterSendsRoutedCategoriesToNamedSinks(t *testing.T) {
	console := sinks.NewMemorySink()
	audit := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{"console", "audit"}
	cfg.Routes = map[string][]string{logging.CategoryNetwork: {"audit"}}

	router, err := logging.NewRouter(nil, cfg, nil, []logging.NamedSink{
		{Name: "console", Sink: console},
		{Name: "audit", Sink: audit},
	})
	if err != nil {
		t.Fatalf("router construction failed: %v", err)
	}

	ctx := context.Background()
	router.Publish(ctx, logging.Event{Type: "network.viewer_joined", Severity: logging.SeverityInfo, Category: logging.CategoryNetwork})
	router.Publish(ctx, logging.Event{
		Type:     "mapdata.pin_added",
		Severity: logging.SeverityInfo,
		Category: logging.CategoryMapData,
		Subject:  logging.Ref(logging.EntityKindPin, "p1"),
	})

	closeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := router.Close(closeCtx); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if got := console.Category(logging.CategoryNetwork); len(got) != 0 {
		t.Fatalf("expected routed network events kept off the console, got %d", len(got))
	}
	if got := audit.Category(logging.CategoryNetwork); len(got) != 1 {
		t.Fatalf("expected one network event in audit, got %d", len(got))
	}
	for name, sink := range map[string]*sinks.MemorySink{"console": console, "audit": audit} {
		pins := sink.OfType("mapdata.pin_added")
		if len(pins) != 1 {
			t.Fatalf("expected unrouted category on %s, got %d", name, len(pins))
		}
		if pins[0].Subject == nil || pins[0].Subject.ID != "p1" {
			t.Fatalf("expected pin subject on %s, got %+v", name, pins[0].Subject)
		}
	}
}

func TestRouterRejectsRouteToInactiveSink(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{"memory"}
	cfg.Routes = map[string][]string{logging.CategoryIngest: {"json"}}

	if _, err := logging.NewRouter(nil, cfg, nil, []logging.NamedSink{{Name: "memory", Sink: sinks.NewMemorySink()}}); err == nil {
		t.Fatalf("expected route to an inactive sink to fail")
	}
}

func TestRouterIgnoresPublishAfterClose(t *testing.T) {
	memory := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{"memory"}
	router, err := logging.NewRouter(nil, cfg, nil, []logging.NamedSink{{Name: "memory", Sink: memory}})
	if err != nil {
		t.Fatalf("router construction failed: %v", err)
	}
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	router.Publish(context.Background(), logging.Event{Type: "late", Severity: logging.SeverityError})
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if len(memory.Events()) != 0 {
		t.Fatalf("expected no events after close")
	}
}

func TestEventWithFieldLeavesOriginalUntouched(t *testing.T) {
	base := logging.Event{Type: "x", Fields: map[string]any{"world": "a"}}
	changed := base.WithField("world", "b")
	if base.Fields["world"] != "a" || changed.Fields["world"] != "b" {
		t.Fatalf("expected copy on write, got %v and %v", base.Fields, changed.Fields)
	}
}

func TestMetricsAddAndStore(t *testing.T) {
	var metrics logging.Metrics
	metrics.TelemetryAdd("fog_saves", 2)
	metrics.TelemetryStore("viewers", 7)
	metrics.TelemetryAdd("fog_saves", 1)

	snapshot := metrics.Snapshot()
	if snapshot["fog_saves"] != 3 || snapshot["viewers"] != 7 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	keys := metrics.Keys()
	if len(keys) != 2 || keys[0] != "fog_saves" {
		t.Fatalf("unexpected keys %v", keys)
	}
}
