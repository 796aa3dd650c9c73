package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"webmap/server/internal/net/proto"
	"webmap/server/internal/pins"
	"webmap/server/internal/telemetry"
	"webmap/server/internal/world"
	"webmap/server/logging"
	ingestlog "webmap/server/logging/ingest"
)

const (
	// DefaultPingType is the chat message type the host uses for map pings.
	DefaultPingType = 3

	defaultCommandInterval = time.Second
	defaultCommandBurst    = 5
	maxLimiters            = 4096
)

// Metric keys recorded by the ingestor.
const (
	MetricEventsHandled = "ingest_events_handled"
	MetricEventsDropped = "ingest_events_dropped"
)

// PinStore is the pin mutation surface used by chat commands.
type PinStore interface {
	Add(owner string, kind pins.Kind, creator string, pos world.Position, label string) (pins.Pin, []pins.Pin)
	Undo(owner string) (pins.Pin, error)
	DeleteByLabel(owner, label string) (pins.Pin, error)
}

// Broadcaster fans a message out to viewers.
type Broadcaster interface {
	Broadcast(msg proto.Message) int
}

// Config wires the ingestor to its collaborators.
type Config struct {
	Pins   PinStore
	Hub    Broadcaster
	Lookup world.PositionLookup

	PingType int
	// CommandInterval is the sustained spacing allowed between pin commands
	// from one owner; CommandBurst is the bucket size.
	CommandInterval time.Duration
	CommandBurst    int

	Logger    telemetry.Logger
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
}

// Ingestor routes decoded host events to the pin store and the hub. No
// failure escapes Handle.
type Ingestor struct {
	pins   PinStore
	hub    Broadcaster
	lookup world.PositionLookup

	pingType int
	limit    rate.Limit
	burst    int

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter

	logger    telemetry.Logger
	publisher logging.Publisher
	metrics   telemetry.Metrics
}

// New builds an ingestor.
func New(cfg Config) *Ingestor {
	interval := cfg.CommandInterval
	if interval <= 0 {
		interval = defaultCommandInterval
	}
	burst := cfg.CommandBurst
	if burst <= 0 {
		burst = defaultCommandBurst
	}
	pingType := cfg.PingType
	if pingType == 0 {
		pingType = DefaultPingType
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Nop()
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &Ingestor{
		pins:      cfg.Pins,
		hub:       cfg.Hub,
		lookup:    cfg.Lookup,
		pingType:  pingType,
		limit:     rate.Every(interval),
		burst:     burst,
		limiters:  make(map[string]*rate.Limiter),
		logger:    logger,
		publisher: publisher,
		metrics:   cfg.Metrics,
	}
}

// Handle decodes and routes one event. Decode errors, failed lookups and
// panics are logged and the event is dropped.
func (in *Ingestor) Handle(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			in.logger.Printf("recovered panic handling %s from %s: %v", ev.Method, ev.Sender, r)
			ingestlog.HandlerPanic(ctx, in.publisher, ev.Sender, ingestlog.FailurePayload{Method: ev.Method, Error: fmt.Sprint(r)})
			in.count(MetricEventsDropped)
		}
	}()

	decoded, err := Decode(ev)
	if err != nil {
		in.logger.Printf("dropping %s event from %s: %v", ev.Method, ev.Sender, err)
		ingestlog.DecodeFailed(ctx, in.publisher, ev.Sender, ingestlog.FailurePayload{Method: ev.Method, Error: err.Error()})
		in.count(MetricEventsDropped)
		return
	}
	if err := in.route(ctx, decoded); err != nil {
		in.logger.Printf("dropping %s event from %s: %v", ev.Method, ev.Sender, err)
		in.count(MetricEventsDropped)
		return
	}
	in.count(MetricEventsHandled)
}

func (in *Ingestor) route(ctx context.Context, ev Decoded) error {
	switch ev.Kind {
	case KindSay:
		cmd := ParseCommand(ev.Text)
		if cmd.Kind == CommandNone {
			in.broadcast(proto.Say{Type: ev.Type, Name: ev.Name, Text: ev.Text})
			return nil
		}
		return in.command(ctx, ev, cmd)
	case KindChat:
		if ev.Type == in.pingType {
			in.broadcast(proto.Ping{Name: ev.Name, Position: ev.Position})
			return nil
		}
		in.broadcast(proto.Chat{Type: ev.Type, Name: ev.Name, Position: ev.Position, Text: ev.Text})
	case KindLogin:
		in.broadcast(proto.Login{Name: ev.Name})
	case KindLogout:
		in.broadcast(proto.Logout{Name: ev.Name})
	case KindDeath:
		in.broadcast(proto.Death{Name: ev.Name})
	case KindMessage:
		in.broadcast(proto.Status{Name: ev.Name, Type: ev.Type, Text: ev.Text, Amount: ev.Amount})
	default:
		return errors.New("unknown method")
	}
	return nil
}

func (in *Ingestor) command(ctx context.Context, ev Decoded, cmd Command) error {
	switch cmd.Kind {
	case CommandPin, CommandUndoPin, CommandDeletePin:
	default:
		return nil
	}
	if in.pins == nil {
		return errors.New("pin store unavailable")
	}
	if ev.Sender == "" {
		return fmt.Errorf("%w: %s without sender", ErrMalformed, cmd.Name)
	}
	if !in.allow(ev.Sender) {
		ingestlog.CommandThrottled(ctx, in.publisher, ev.Sender, ingestlog.CommandPayload{Command: cmd.Name})
		return fmt.Errorf("%s rate limited", cmd.Name)
	}

	switch cmd.Kind {
	case CommandPin:
		if in.lookup == nil {
			return errors.New("position lookup unavailable")
		}
		vitals, err := in.lookup.Lookup(ev.Sender)
		if err != nil {
			ingestlog.LookupFailed(ctx, in.publisher, ev.Sender, ingestlog.FailurePayload{Method: cmd.Name, Error: err.Error()})
			return fmt.Errorf("lookup sender: %w", err)
		}
		pin, evicted := in.pins.Add(ev.Sender, cmd.PinKind, ev.Name, vitals.Position, cmd.Label)
		for _, old := range evicted {
			in.broadcast(proto.PinRemoved{ID: old.ID})
		}
		in.broadcast(proto.PinAdded{
			OwnerID:  pin.OwnerID,
			ID:       pin.ID,
			Kind:     string(pin.Kind),
			Name:     pin.CreatorName,
			Position: pin.Position,
			Label:    pin.Label,
		})
	case CommandUndoPin:
		removed, err := in.pins.Undo(ev.Sender)
		if err != nil {
			return fmt.Errorf("undo pin: %w", err)
		}
		in.broadcast(proto.PinRemoved{ID: removed.ID})
	case CommandDeletePin:
		removed, err := in.pins.DeleteByLabel(ev.Sender, pins.SanitizeLabel(cmd.Label))
		if err != nil {
			return fmt.Errorf("delete pin %q: %w", cmd.Label, err)
		}
		in.broadcast(proto.PinRemoved{ID: removed.ID})
	}
	return nil
}

func (in *Ingestor) allow(owner string) bool {
	in.limitersMu.Lock()
	defer in.limitersMu.Unlock()
	limiter, ok := in.limiters[owner]
	if !ok {
		if len(in.limiters) >= maxLimiters {
			in.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(in.limit, in.burst)
		in.limiters[owner] = limiter
	}
	return limiter.Allow()
}

func (in *Ingestor) broadcast(msg proto.Message) {
	if in.hub == nil {
		return
	}
	in.hub.Broadcast(msg)
}

func (in *Ingestor) count(key string) {
	if in.metrics == nil {
		return
	}
	in.metrics.Add(key, 1)
}
