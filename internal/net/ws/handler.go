package ws

import (
	"errors"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"webmap/server/internal/telemetry"
)

const defaultReadLimit = 4096

// HandlerConfig controls the upgrade of viewer connections.
type HandlerConfig struct {
	// AllowedOrigins lists the Origin headers accepted on upgrade. Empty or
	// "*" accepts every origin.
	AllowedOrigins []string
	ReadLimit      int64
	Logger         telemetry.Logger
}

// Handler upgrades HTTP requests into hub viewers.
type Handler struct {
	hub       *Hub
	logger    telemetry.Logger
	readLimit int64
	upgrader  websocket.Upgrader
}

// NewHandler constructs a websocket handler for the given hub.
func NewHandler(hub *Hub, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Nop()
	}
	readLimit := cfg.ReadLimit
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	allowAll := len(cfg.AllowedOrigins) == 0
	for _, origin := range cfg.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			allowAll = true
		}
		allowed[strings.ToLower(origin)] = struct{}{}
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[strings.ToLower(origin)]
			return ok
		},
	}

	return &Handler{
		hub:       hub,
		logger:    logger,
		readLimit: readLimit,
		upgrader:  upgrader,
	}
}

// ServeHTTP upgrades the request, registers the viewer and reads until the
// connection fails. Viewer text is discarded; reads only keep the viewer
// alive and process control frames.
func (h *Handler) ServeHTTP(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	id, err := h.hub.Add(conn, r.RemoteAddr)
	if err != nil {
		code := websocket.CloseInternalServerErr
		reason := "unavailable"
		switch {
		case errors.Is(err, ErrHubFull):
			code, reason = websocket.CloseTryAgainLater, "too many viewers"
		case errors.Is(err, ErrHubClosed):
			code, reason = websocket.CloseGoingAway, "shutting down"
		}
		h.logger.Printf("rejected viewer %s: %v", r.RemoteAddr, err)
		message := websocket.FormatCloseMessage(code, reason)
		conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
		conn.Close()
		return
	}

	conn.SetReadLimit(h.readLimit)
	conn.SetPongHandler(func(string) error {
		h.hub.Touch(id)
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.hub.Remove(id)
			return
		}
		h.hub.Touch(id)
	}
}
