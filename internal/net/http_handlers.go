package net

import (
	"context"
	"crypto/subtle"
	nethttp "net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/dustin/go-humanize"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hako/durafmt"

	"webmap/server"
	"webmap/server/internal/hostbridge"
	"webmap/server/internal/ingest"
	"webmap/server/internal/net/ws"
	"webmap/server/internal/pins"
	"webmap/server/internal/telemetry"
)

const (
	hostTokenHeader = "X-Host-Token"
	maxEventBatch   = 256
)

var shortUnits, _ = durafmt.DefaultUnitsCoder.Decode("y:yrs,wk:wks,d:d,h:h,m:m,s:s,ms:ms,us:us")

// HTTPHandlerConfig wires the HTTP surface to its collaborators.
type HTTPHandlerConfig struct {
	ClientDir   string
	CORSOrigins []string
	// HostToken guards the /host routes. Empty disables them.
	HostToken   string
	EnablePprof bool
	Bridge      *hostbridge.Bridge
	WS          ws.HandlerConfig
	// BakeContext bounds bakes started over /host/world-ready. It defaults
	// to context.Background.
	BakeContext context.Context
	Logger      telemetry.Logger
}

type handlers struct {
	srv      *server.Server
	bridge   *hostbridge.Bridge
	bakeCtx  context.Context
	fogCache *ristretto.Cache[uint64, []byte]
	logger   telemetry.Logger
}

// NewHTTPHandler builds the gin engine serving the map artifacts, the
// viewer socket, the host bridge and the static viewer.
func NewHTTPHandler(srv *server.Server, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Nop()
	}

	bakeCtx := cfg.BakeContext
	if bakeCtx == nil {
		bakeCtx = context.Background()
	}
	h := &handlers{srv: srv, bridge: cfg.Bridge, bakeCtx: bakeCtx, logger: logger}
	cache, err := ristretto.NewCache(&ristretto.Config[uint64, []byte]{
		NumCounters: 64,
		MaxCost:     16 << 20,
		BufferItems: 64,
	})
	if err != nil {
		logger.Printf("fog cache disabled: %v", err)
	} else {
		h.fogCache = cache
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	router.GET("/health", func(c *gin.Context) {
		c.String(nethttp.StatusOK, "ok")
	})
	router.GET("/diagnostics", h.diagnostics)
	router.GET("/map", h.baseMap)
	router.GET("/fog", h.fog)
	router.GET("/pins", h.pins)
	router.GET("/ws", gin.WrapH(ws.NewHandler(srv.Hub(), withLogger(cfg.WS, logger))))

	if cfg.HostToken != "" && cfg.Bridge != nil {
		host := router.Group("/host", hostAuth(cfg.HostToken))
		host.POST("/roster", h.hostRoster)
		host.POST("/clock", h.hostClock)
		host.POST("/events", h.hostEvents)
		host.POST("/world-ready", h.hostWorldReady)
	} else {
		logger.Printf("host bridge routes disabled: no host token configured")
	}

	if cfg.EnablePprof {
		router.GET("/debug/pprof/*name", pprofHandler)
	}

	if cfg.ClientDir != "" {
		files := nethttp.FileServer(nethttp.Dir(cfg.ClientDir))
		router.NoRoute(func(c *gin.Context) {
			if c.Request.Method != nethttp.MethodGet && c.Request.Method != nethttp.MethodHead {
				c.String(nethttp.StatusNotFound, "not found")
				return
			}
			files.ServeHTTP(c.Writer, c.Request)
		})
	}

	return router
}

func withLogger(cfg ws.HandlerConfig, logger telemetry.Logger) ws.HandlerConfig {
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	return cfg
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{nethttp.MethodGet, nethttp.MethodHead, nethttp.MethodPost, nethttp.MethodOptions}
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", hostTokenHeader)
	cfg.MaxAge = 12 * time.Hour
	allowed := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
		if origin != "" {
			allowed = append(allowed, origin)
		}
	}
	if len(allowed) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = allowed
	return cfg
}

func (h *handlers) diagnostics(c *gin.Context) {
	diag := h.srv.Diagnostics()
	mapBytes := h.srv.Baker().Size()
	c.JSON(nethttp.StatusOK, gin.H{
		"status":      "ok",
		"serverTime":  time.Now().UnixMilli(),
		"uptime":      durafmt.Parse(diag.Uptime.Truncate(time.Second)).LimitFirstN(2).Format(shortUnits),
		"mapSize":     humanize.Bytes(uint64(mapBytes)),
		"bytesSent":   humanize.Bytes(diag.Telemetry.BytesSent),
		"diagnostics": diag,
	})
}

func (h *handlers) baseMap(c *gin.Context) {
	data := h.srv.Baker().Bytes()
	if data == nil {
		c.String(nethttp.StatusNotFound, "map not ready")
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(nethttp.StatusOK, "image/png", data)
}

func (h *handlers) fog(c *gin.Context) {
	engine := h.srv.Fog()
	if h.fogCache != nil {
		if data, ok := h.fogCache.Get(engine.Revision()); ok {
			h.writeFog(c, data)
			return
		}
	}
	data, rev, err := engine.EncodePNG()
	if err != nil {
		h.logger.Printf("failed to encode fog: %v", err)
		c.String(nethttp.StatusInternalServerError, "failed to encode")
		return
	}
	if h.fogCache != nil {
		h.fogCache.Set(rev, data, int64(len(data)))
	}
	h.writeFog(c, data)
}

func (h *handlers) writeFog(c *gin.Context, data []byte) {
	c.Header("Cache-Control", "no-cache")
	c.Data(nethttp.StatusOK, "image/png", data)
}

func (h *handlers) pins(c *gin.Context) {
	data, err := pins.Marshal(h.srv.Pins().Snapshot())
	if err != nil {
		h.logger.Printf("failed to encode pins: %v", err)
		c.String(nethttp.StatusInternalServerError, "failed to encode")
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(nethttp.StatusOK, "text/csv; charset=utf-8", data)
}

func hostAuth(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		got := c.GetHeader(hostTokenHeader)
		if got == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				got = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			}
		}
		if got == "" {
			c.AbortWithStatusJSON(nethttp.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			c.AbortWithStatusJSON(nethttp.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}
		c.Next()
	}
}

func (h *handlers) hostRoster(c *gin.Context) {
	var update hostbridge.RosterUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.AbortWithStatusJSON(nethttp.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}
	if err := h.bridge.UpdateRoster(update); err != nil {
		c.AbortWithStatusJSON(nethttp.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(nethttp.StatusOK, gin.H{"peers": len(update.Peers)})
}

func (h *handlers) hostClock(c *gin.Context) {
	var update hostbridge.ClockUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.AbortWithStatusJSON(nethttp.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}
	if err := h.bridge.UpdateClock(update); err != nil {
		c.AbortWithStatusJSON(nethttp.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(nethttp.StatusOK, gin.H{"day": update.Day})
}

type eventBatch struct {
	Events []ingest.Event `json:"events"`
}

func (h *handlers) hostEvents(c *gin.Context) {
	var batch eventBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.AbortWithStatusJSON(nethttp.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}
	if len(batch.Events) > maxEventBatch {
		c.AbortWithStatusJSON(nethttp.StatusRequestEntityTooLarge, gin.H{"error": "batch_too_large"})
		return
	}
	// Handling must not be tied to the request lifetime.
	ctx := context.WithoutCancel(c.Request.Context())
	for _, ev := range batch.Events {
		h.srv.HandleEvent(ctx, ev)
	}
	c.JSON(nethttp.StatusAccepted, gin.H{"accepted": len(batch.Events)})
}

func (h *handlers) hostWorldReady(c *gin.Context) {
	if h.srv.Baker().Ready() {
		c.JSON(nethttp.StatusOK, gin.H{"ready": true, "baking": false})
		return
	}
	var ready hostbridge.WorldReady
	if err := c.ShouldBindJSON(&ready); err != nil {
		c.AbortWithStatusJSON(nethttp.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}
	sampler, err := ready.BiomeSampler()
	if err != nil {
		c.AbortWithStatusJSON(nethttp.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	done := h.srv.OnWorldReady(h.bakeCtx, sampler)
	go func() {
		if err := <-done; err != nil {
			h.logger.Printf("host bake failed: %v", err)
		}
	}()
	c.JSON(nethttp.StatusAccepted, gin.H{"ready": false, "baking": true})
}

func pprofHandler(c *gin.Context) {
	switch name := strings.TrimPrefix(c.Param("name"), "/"); name {
	case "":
		pprof.Index(c.Writer, c.Request)
	case "cmdline":
		pprof.Cmdline(c.Writer, c.Request)
	case "profile":
		pprof.Profile(c.Writer, c.Request)
	case "symbol":
		pprof.Symbol(c.Writer, c.Request)
	case "trace":
		pprof.Trace(c.Writer, c.Request)
	default:
		pprof.Handler(name).ServeHTTP(c.Writer, c.Request)
	}
}
