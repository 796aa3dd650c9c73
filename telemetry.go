package server

import (
	"sync/atomic"
	"time"
)

type telemetryCounters struct {
	ticks              atomic.Uint64
	tickDurationMillis atomic.Int64
	bytesSent          atomic.Uint64
	lastBroadcastBytes atomic.Uint64
	lastPlayers        atomic.Uint64
	pixelsRevealed     atomic.Uint64
	fogSaves           atomic.Uint64
	pinSaves           atomic.Uint64
	saveFailures       atomic.Uint64
	eventsReceived     atomic.Uint64
}

type telemetrySnapshot struct {
	Ticks          uint64 `json:"ticks"`
	TickDuration   int64  `json:"tickDurationMillis"`
	BytesSent      uint64 `json:"bytesSent"`
	LastBroadcast  uint64 `json:"lastBroadcastBytes"`
	LastPlayers    uint64 `json:"lastPlayers"`
	PixelsRevealed uint64 `json:"pixelsRevealed"`
	FogSaves       uint64 `json:"fogSaves"`
	PinSaves       uint64 `json:"pinSaves"`
	SaveFailures   uint64 `json:"saveFailures"`
	EventsReceived uint64 `json:"eventsReceived"`
}

func newTelemetryCounters() *telemetryCounters {
	return &telemetryCounters{}
}

// RecordBroadcast accounts one telemetry tick's frames. bytes is the total
// written across viewers.
func (t *telemetryCounters) RecordBroadcast(bytes, players int) {
	if bytes < 0 {
		bytes = 0
	}
	if players < 0 {
		players = 0
	}
	t.ticks.Add(1)
	t.bytesSent.Add(uint64(bytes))
	t.lastBroadcastBytes.Store(uint64(bytes))
	t.lastPlayers.Store(uint64(players))
}

func (t *telemetryCounters) RecordTickDuration(duration time.Duration) {
	millis := duration.Milliseconds()
	if millis < 0 {
		millis = 0
	}
	t.tickDurationMillis.Store(millis)
}

func (t *telemetryCounters) RecordReveal(pixels int) {
	if pixels > 0 {
		t.pixelsRevealed.Add(uint64(pixels))
	}
}

func (t *telemetryCounters) RecordSave(kind string, err error) {
	if err != nil {
		t.saveFailures.Add(1)
		return
	}
	switch kind {
	case "fog":
		t.fogSaves.Add(1)
	case "pins":
		t.pinSaves.Add(1)
	}
}

func (t *telemetryCounters) RecordEvent() {
	t.eventsReceived.Add(1)
}

func (t *telemetryCounters) Snapshot() telemetrySnapshot {
	return telemetrySnapshot{
		Ticks:          t.ticks.Load(),
		TickDuration:   t.tickDurationMillis.Load(),
		BytesSent:      t.bytesSent.Load(),
		LastBroadcast:  t.lastBroadcastBytes.Load(),
		LastPlayers:    t.lastPlayers.Load(),
		PixelsRevealed: t.pixelsRevealed.Load(),
		FogSaves:       t.fogSaves.Load(),
		PinSaves:       t.pinSaves.Load(),
		SaveFailures:   t.saveFailures.Load(),
		EventsReceived: t.eventsReceived.Load(),
	}
}
