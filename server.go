package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"webmap/server/internal/fog"
	"webmap/server/internal/ingest"
	"webmap/server/internal/net/ws"
	"webmap/server/internal/pins"
	"webmap/server/internal/presence"
	"webmap/server/internal/render"
	"webmap/server/internal/telemetry"
	"webmap/server/internal/world"
	"webmap/server/logging"
)

// Config wires the map server to its artifacts, timers and host collaborators.
type Config struct {
	MapPath  string
	FogPath  string
	PinsPath string
	// MapSize overrides the raster side for the base map bake.
	MapSize int

	ExploreRadius        float64
	FogUpdateInterval    time.Duration
	SaveInterval         time.Duration
	PlayerUpdateInterval time.Duration

	MaxPinsPerUser  int
	EvictOverQuota  bool
	PingType        int
	CommandInterval time.Duration
	CommandBurst    int

	Hub ws.HubConfig

	Roster world.Roster
	Lookup world.PositionLookup
	Clock  world.DayClock

	Logger    telemetry.Logger
	Publisher logging.Publisher
	Metrics   *logging.Metrics
}

// Server owns the live map state and drives its periodic work.
type Server struct {
	fog      *fog.Engine
	pins     *pins.Store
	baker    *render.Baker
	hub      *ws.Hub
	reporter *presence.Reporter
	ingestor *ingest.Ingestor

	fogInterval    time.Duration
	saveInterval   time.Duration
	playerInterval time.Duration

	counters *telemetryCounters
	metrics  *logging.Metrics
	logger   telemetry.Logger
	started  time.Time

	bakeWG   sync.WaitGroup
	shutdown sync.Once
}

// New loads persisted state and assembles the components. Missing or
// corrupt artifacts are logged and replaced with empty state.
func New(cfg Config) (*Server, error) {
	if cfg.Roster == nil || cfg.Lookup == nil {
		return nil, errors.New("server: roster and position lookup are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Nop()
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &logging.Metrics{}
	}
	wrapped := telemetry.WrapMetrics(metrics)

	s := &Server{
		fogInterval:    orDefault(cfg.FogUpdateInterval, defaultFogUpdateInterval),
		saveInterval:   orDefault(cfg.SaveInterval, defaultSaveInterval),
		playerInterval: orDefault(cfg.PlayerUpdateInterval, defaultPlayerUpdateInterval),
		counters:       newTelemetryCounters(),
		metrics:        metrics,
		logger:         logger,
		started:        time.Now(),
	}

	s.fog = fog.Load(fog.Config{
		Path:          cfg.FogPath,
		ExploreRadius: cfg.ExploreRadius,
		Logger:        logger,
		Publisher:     publisher,
	})

	s.pins = pins.NewStore(pins.Config{
		Path:           cfg.PinsPath,
		MaxPerOwner:    cfg.MaxPinsPerUser,
		EvictOverQuota: cfg.EvictOverQuota,
		Logger:         logger,
		Publisher:      publisher,
	})
	if err := s.pins.Load(); err != nil {
		logger.Printf("failed to load pins, starting empty: %v", err)
	}

	s.baker = render.NewBaker(render.BakerConfig{
		Path:      cfg.MapPath,
		Size:      cfg.MapSize,
		Logger:    logger,
		Publisher: publisher,
	})
	if _, err := s.baker.LoadExisting(); err != nil {
		logger.Printf("failed to load base map, it will be rebuilt: %v", err)
	}

	hubCfg := cfg.Hub
	hubCfg.Logger = logger
	hubCfg.Publisher = publisher
	hubCfg.Metrics = wrapped
	s.hub = ws.NewHub(hubCfg)

	s.reporter = presence.NewReporter(presence.Config{
		Roster:  cfg.Roster,
		Lookup:  cfg.Lookup,
		Clock:   cfg.Clock,
		Logger:  logger,
		Metrics: wrapped,
	})

	s.ingestor = ingest.New(ingest.Config{
		Pins:            s.pins,
		Hub:             s.hub,
		Lookup:          cfg.Lookup,
		PingType:        cfg.PingType,
		CommandInterval: cfg.CommandInterval,
		CommandBurst:    cfg.CommandBurst,
		Logger:          logger,
		Publisher:       publisher,
		Metrics:         wrapped,
	})
	return s, nil
}

func orDefault(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}

// Hub returns the viewer hub.
func (s *Server) Hub() *ws.Hub { return s.hub }

// Fog returns the fog engine.
func (s *Server) Fog() *fog.Engine { return s.fog }

// Pins returns the pin store.
func (s *Server) Pins() *pins.Store { return s.pins }

// Baker returns the base map holder.
func (s *Server) Baker() *render.Baker { return s.baker }

// OnWorldReady bakes the base map in the background. The returned channel
// yields the bake result once.
func (s *Server) OnWorldReady(ctx context.Context, sampler world.BiomeSampler) <-chan error {
	done := make(chan error, 1)
	s.bakeWG.Add(1)
	go func() {
		defer s.bakeWG.Done()
		ctx, cancel := context.WithTimeout(ctx, defaultBakeTimeout)
		defer cancel()
		_, err := s.baker.Bake(ctx, sampler)
		if err != nil {
			s.logger.Printf("failed to bake base map: %v", err)
		}
		done <- err
	}()
	return done
}

// HandleEvent routes one host event. It never fails.
func (s *Server) HandleEvent(ctx context.Context, ev ingest.Event) {
	s.counters.RecordEvent()
	s.ingestor.Handle(ctx, ev)
}

// Run drives the keepalive loop and the fog reveal, fog persist, pin
// persist and telemetry tickers until ctx is cancelled. Each ticker runs on
// its own goroutine so a slow write never delays a reveal or broadcast.
func (s *Server) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	start := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}
	start(func() { s.hub.Run(ctx) })
	start(func() { every(ctx, s.fogInterval, s.revealFog) })
	start(func() { every(ctx, s.saveInterval, func() { s.persistFog(ctx) }) })
	start(func() { every(ctx, s.saveInterval, func() { s.persistPins(ctx) }) })
	start(func() { every(ctx, s.playerInterval, s.broadcastPlayers) })
	wg.Wait()
	return ctx.Err()
}

func every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func (s *Server) revealFog() {
	positions, tracked := s.reporter.PublicPositions()
	if tracked == 0 || len(positions) == 0 {
		return
	}
	s.counters.RecordReveal(s.fog.Reveal(positions))
}

func (s *Server) persistFog(ctx context.Context) {
	wrote, err := s.fog.Persist(ctx, s.reporter.Tracked())
	if wrote || err != nil {
		s.counters.RecordSave("fog", err)
	}
}

func (s *Server) persistPins(ctx context.Context) {
	wrote, err := s.pins.SaveIfDirty(ctx)
	if err != nil {
		s.logger.Printf("failed to save pins: %v", err)
	}
	if wrote || err != nil {
		s.counters.RecordSave("pins", err)
	}
}

func (s *Server) broadcastPlayers() {
	started := time.Now()
	report := s.reporter.Tick()
	msgs := report.Messages()
	total := 0
	for _, msg := range msgs {
		frame := msg.Encode()
		total += s.hub.BroadcastFrame(frame) * len(frame)
	}
	s.hub.SetGreeting(msgs...)
	players := 0
	if report.Players != nil {
		players = len(report.Players.Entries)
	}
	s.counters.RecordBroadcast(total, players)
	s.counters.RecordTickDuration(time.Since(started))
}

// Shutdown waits for a running bake, flushes dirty fog and pins and closes
// every viewer.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	s.shutdown.Do(func() {
		waited := make(chan struct{})
		go func() {
			s.bakeWG.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("wait for bake: %w", ctx.Err()))
		}

		// A dirty raster implies an entity was tracked at some point.
		if _, err := s.fog.Persist(ctx, 1); err != nil {
			errs = append(errs, err)
		}
		if _, err := s.pins.SaveIfDirty(ctx); err != nil {
			errs = append(errs, fmt.Errorf("save pins: %w", err))
		}
		s.hub.Close()
	})
	return errors.Join(errs...)
}

// Diagnostics is a point-in-time view of the server for operators.
type Diagnostics struct {
	Uptime      time.Duration     `json:"-"`
	Viewers     int               `json:"viewers"`
	Pins        int               `json:"pins"`
	PinsDirty   bool              `json:"pinsDirty"`
	FogDirty    bool              `json:"fogDirty"`
	FogRevision uint64            `json:"fogRevision"`
	MapReady    bool              `json:"mapReady"`
	Tracked     int               `json:"tracked"`
	Telemetry   telemetrySnapshot `json:"telemetry"`
	Counters    map[string]uint64 `json:"counters"`
}

// Diagnostics snapshots the server state.
func (s *Server) Diagnostics() Diagnostics {
	return Diagnostics{
		Uptime:      time.Since(s.started),
		Viewers:     s.hub.Count(),
		Pins:        s.pins.Len(),
		PinsDirty:   s.pins.Dirty(),
		FogDirty:    s.fog.Dirty(),
		FogRevision: s.fog.Revision(),
		MapReady:    s.baker.Ready(),
		Tracked:     s.reporter.Tracked(),
		Telemetry:   s.counters.Snapshot(),
		Counters:    s.metrics.Snapshot(),
	}
}
