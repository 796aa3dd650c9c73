package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/remeh/sizedwaitgroup"

	"webmap/server/internal/net/proto"
	"webmap/server/internal/telemetry"
	"webmap/server/logging"
	"webmap/server/logging/network"
)

var (
	// ErrHubFull is returned by Add when MaxViewers connections are open.
	ErrHubFull = errors.New("ws: hub full")
	// ErrHubClosed is returned by Add after Close.
	ErrHubClosed = errors.New("ws: hub closed")
)

const (
	defaultWriteWait    = 5 * time.Second
	defaultPingInterval = 20 * time.Second
	defaultIdleTimeout  = 60 * time.Second
	defaultFanOut       = 16
)

// Metric keys recorded by the hub.
const (
	MetricFramesSent    = "ws_frames_sent"
	MetricBytesSent     = "ws_bytes_sent"
	MetricWriteFailures = "ws_write_failures"
	MetricViewersPeak   = "ws_viewers_peak"
)

// Conn is the subset of *websocket.Conn the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// HubConfig bounds viewer membership and write behaviour.
type HubConfig struct {
	MaxViewers   int
	WriteWait    time.Duration
	PingInterval time.Duration
	IdleTimeout  time.Duration
	FanOut       int
	Logger       telemetry.Logger
	Publisher    logging.Publisher
	Metrics      telemetry.Metrics
}

type viewer struct {
	id     string
	remote string
	conn   Conn

	mu       sync.Mutex
	lastSeen atomic.Int64
}

func (v *viewer) write(data []byte, wait time.Duration) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.conn.SetWriteDeadline(time.Now().Add(wait)); err != nil {
		return err
	}
	return v.conn.WriteMessage(websocket.TextMessage, data)
}

func (v *viewer) ping(wait time.Duration) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wait))
}

// Hub fans broadcast frames out to every connected viewer.
type Hub struct {
	// sendMu serialises sends so every viewer observes the same order.
	sendMu sync.Mutex

	mu       sync.Mutex
	viewers  map[string]*viewer
	greeting [][]byte
	closed   bool
	peak     int

	nextID atomic.Uint64

	maxViewers   int
	writeWait    time.Duration
	pingInterval time.Duration
	idleTimeout  time.Duration
	fanOut       int
	logger       telemetry.Logger
	publisher    logging.Publisher
	metrics      telemetry.Metrics
}

// NewHub returns an empty hub. Zero config values take defaults; a
// MaxViewers of zero means unlimited.
func NewHub(cfg HubConfig) *Hub {
	h := &Hub{
		viewers:      make(map[string]*viewer),
		maxViewers:   cfg.MaxViewers,
		writeWait:    cfg.WriteWait,
		pingInterval: cfg.PingInterval,
		idleTimeout:  cfg.IdleTimeout,
		fanOut:       cfg.FanOut,
		logger:       cfg.Logger,
		publisher:    cfg.Publisher,
		metrics:      cfg.Metrics,
	}
	if h.writeWait <= 0 {
		h.writeWait = defaultWriteWait
	}
	if h.pingInterval <= 0 {
		h.pingInterval = defaultPingInterval
	}
	if h.idleTimeout <= 0 {
		h.idleTimeout = defaultIdleTimeout
	}
	if h.fanOut <= 0 {
		h.fanOut = defaultFanOut
	}
	if h.logger == nil {
		h.logger = telemetry.Nop()
	}
	if h.publisher == nil {
		h.publisher = logging.NopPublisher()
	}
	return h
}

// SetGreeting replaces the frames sent to every newly added viewer.
func (h *Hub) SetGreeting(msgs ...proto.Message) {
	frames := make([][]byte, 0, len(msgs))
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		frames = append(frames, msg.Encode())
	}
	h.mu.Lock()
	h.greeting = frames
	h.mu.Unlock()
}

// Add registers a connection and sends it the current greeting. The
// returned id is used with Touch and Remove.
func (h *Hub) Add(conn Conn, remote string) (string, error) {
	if conn == nil {
		return "", errors.New("ws: nil connection")
	}
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return "", ErrHubClosed
	}
	if h.maxViewers > 0 && len(h.viewers) >= h.maxViewers {
		count := len(h.viewers)
		h.mu.Unlock()
		network.ViewerRejected(context.Background(), h.publisher, network.ViewerPayload{Viewers: count, Remote: remote, Reason: "full"})
		return "", ErrHubFull
	}
	v := &viewer{
		id:     fmt.Sprintf("viewer-%d", h.nextID.Add(1)),
		remote: remote,
		conn:   conn,
	}
	v.lastSeen.Store(time.Now().UnixNano())
	h.viewers[v.id] = v
	count := len(h.viewers)
	if count > h.peak {
		h.peak = count
		h.storeMetric(MetricViewersPeak, uint64(count))
	}
	greeting := h.greeting
	h.mu.Unlock()

	network.ViewerJoined(context.Background(), h.publisher, v.id, network.ViewerPayload{Viewers: count, Remote: remote})

	for _, frame := range greeting {
		if err := v.write(frame, h.writeWait); err != nil {
			h.drop(v, "greeting: "+err.Error())
			return "", fmt.Errorf("send greeting: %w", err)
		}
		h.recordSent(len(frame))
	}
	return v.id, nil
}

// Touch records activity from a viewer so it is not evicted as idle.
func (h *Hub) Touch(id string) {
	h.mu.Lock()
	v, ok := h.viewers[id]
	h.mu.Unlock()
	if ok {
		v.lastSeen.Store(time.Now().UnixNano())
	}
}

// Remove closes and forgets a viewer. It reports whether the viewer was
// still registered.
func (h *Hub) Remove(id string) bool {
	v, count, ok := h.detach(id)
	if !ok {
		return false
	}
	v.conn.Close()
	network.ViewerLeft(context.Background(), h.publisher, id, network.ViewerPayload{Viewers: count, Remote: v.remote})
	return true
}

// Count returns the number of registered viewers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

// Broadcast encodes msg once and writes it to every viewer. Viewers whose
// write fails are removed; the error never reaches the caller. It returns
// the number of viewers the frame was delivered to.
func (h *Hub) Broadcast(msg proto.Message) int {
	if msg == nil {
		return 0
	}
	return h.BroadcastFrame(msg.Encode())
}

// BroadcastFrame writes an already encoded frame to every viewer.
func (h *Hub) BroadcastFrame(data []byte) int {
	h.sendMu.Lock()
	targets := h.snapshot()
	if len(targets) == 0 {
		h.sendMu.Unlock()
		return 0
	}

	var (
		failedMu sync.Mutex
		failed   []failure
	)
	swg := sizedwaitgroup.New(h.fanOut)
	for _, v := range targets {
		swg.Add()
		go func(v *viewer) {
			defer swg.Done()
			if err := v.write(data, h.writeWait); err != nil {
				failedMu.Lock()
				failed = append(failed, failure{viewer: v, err: err})
				failedMu.Unlock()
			}
		}(v)
	}
	swg.Wait()
	h.sendMu.Unlock()

	delivered := len(targets) - len(failed)
	h.addMetric(MetricFramesSent, uint64(delivered))
	h.addMetric(MetricBytesSent, uint64(delivered*len(data)))
	for _, f := range failed {
		h.addMetric(MetricWriteFailures, 1)
		h.logger.Printf("failed to send update to %s: %v", f.viewer.id, f.err)
		h.drop(f.viewer, f.err.Error())
	}
	return delivered
}

type failure struct {
	viewer *viewer
	err    error
}

// Run pings viewers every PingInterval and evicts those idle for longer
// than IdleTimeout, until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.sweep(now)
		}
	}
}

// sweep evicts idle viewers and pings the rest.
func (h *Hub) sweep(now time.Time) {
	for _, v := range h.snapshot() {
		idle := now.Sub(time.Unix(0, v.lastSeen.Load()))
		if idle > h.idleTimeout {
			h.logger.Printf("disconnecting %s after %s without activity", v.id, idle.Round(time.Second))
			h.drop(v, "idle")
			continue
		}
		if err := v.ping(h.writeWait); err != nil {
			h.drop(v, "ping: "+err.Error())
		}
	}
}

// Close sends a going-away close frame to every viewer and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	viewers := h.viewers
	h.viewers = make(map[string]*viewer)
	h.mu.Unlock()

	message := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, v := range viewers {
		v.mu.Lock()
		v.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(h.writeWait))
		v.mu.Unlock()
		v.conn.Close()
	}
}

func (h *Hub) snapshot() []*viewer {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*viewer, 0, len(h.viewers))
	for _, v := range h.viewers {
		out = append(out, v)
	}
	return out
}

func (h *Hub) detach(id string) (*viewer, int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.viewers[id]
	if !ok {
		return nil, len(h.viewers), false
	}
	delete(h.viewers, id)
	return v, len(h.viewers), true
}

func (h *Hub) drop(v *viewer, reason string) {
	current, count, ok := h.detach(v.id)
	if !ok || current != v {
		return
	}
	v.conn.Close()
	network.ViewerDropped(context.Background(), h.publisher, v.id, network.ViewerPayload{Viewers: count, Remote: v.remote, Reason: reason})
}

func (h *Hub) recordSent(n int) {
	h.addMetric(MetricFramesSent, 1)
	h.addMetric(MetricBytesSent, uint64(n))
}

func (h *Hub) addMetric(key string, delta uint64) {
	if h.metrics == nil || delta == 0 {
		return
	}
	h.metrics.Add(key, delta)
}

func (h *Hub) storeMetric(key string, value uint64) {
	if h.metrics == nil {
		return
	}
	h.metrics.Store(key, value)
}
