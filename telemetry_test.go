package server

import (
	"errors"
	"testing"
	"time"
)

func TestTelemetryBroadcastAccounting(t *testing.T) {
	counters := newTelemetryCounters()
	counters.RecordBroadcast(120, 2)
	counters.RecordBroadcast(80, 1)
	counters.RecordBroadcast(-5, -1)
	counters.RecordTickDuration(16 * time.Millisecond)

	snapshot := counters.Snapshot()
	if snapshot.Ticks != 3 {
		t.Fatalf("expected 3 ticks, got %d", snapshot.Ticks)
	}
	if snapshot.BytesSent != 200 {
		t.Fatalf("expected 200 bytes sent, got %d", snapshot.BytesSent)
	}
	if snapshot.LastBroadcast != 0 || snapshot.LastPlayers != 0 {
		t.Fatalf("expected negative inputs clamped to zero, got %d bytes %d players", snapshot.LastBroadcast, snapshot.LastPlayers)
	}
	if snapshot.TickDuration != 16 {
		t.Fatalf("expected tick duration 16ms, got %d", snapshot.TickDuration)
	}
}

func TestTelemetrySaveAccounting(t *testing.T) {
	counters := newTelemetryCounters()
	counters.RecordSave("fog", nil)
	counters.RecordSave("pins", nil)
	counters.RecordSave("pins", nil)
	counters.RecordSave("fog", errors.New("disk full"))
	counters.RecordReveal(0)
	counters.RecordReveal(42)

	snapshot := counters.Snapshot()
	if snapshot.FogSaves != 1 || snapshot.PinSaves != 2 {
		t.Fatalf("expected 1 fog save and 2 pin saves, got %d and %d", snapshot.FogSaves, snapshot.PinSaves)
	}
	if snapshot.SaveFailures != 1 {
		t.Fatalf("expected 1 save failure, got %d", snapshot.SaveFailures)
	}
	if snapshot.PixelsRevealed != 42 {
		t.Fatalf("expected 42 revealed pixels, got %d", snapshot.PixelsRevealed)
	}
}
