package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	server "webmap/server"
	"webmap/server/internal/config"
	"webmap/server/internal/hostbridge"
	servernet "webmap/server/internal/net"
	"webmap/server/internal/net/ws"
	"webmap/server/internal/telemetry"
	"webmap/server/logging"
	loggingSinks "webmap/server/logging/sinks"
)

// Config selects where settings are read from.
type Config struct {
	ConfigFile string
	EnvFile    string
}

// Run loads the configuration, assembles the map server and serves it until
// ctx is cancelled. Dirty state is flushed before returning.
func Run(ctx context.Context, cfg Config) error {
	base := logrus.New()
	base.SetOutput(os.Stdout)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	bootLogger := telemetry.WrapLogrus(base)

	settings, err := config.Load(config.Options{File: cfg.ConfigFile, EnvFile: cfg.EnvFile, Logger: bootLogger})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   settings.Log.Color,
		DisableColors: !settings.Log.Color,
	})
	if level, err := logrus.ParseLevel(settings.Log.Level); err == nil {
		base.SetLevel(level)
	} else {
		base.Warnf("invalid log level %q, using info", settings.Log.Level)
	}
	telemetryLogger := telemetry.WrapLogrus(base.WithField("world", settings.WorldName))

	fallbackLogger := log.Default()
	if provider, ok := telemetryLogger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallbackLogger = candidate
		}
	}

	router, closeFile, err := newEventRouter(base, fallbackLogger, settings.Log)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
		if closeFile != nil {
			if cerr := closeFile.Close(); cerr != nil {
				telemetryLogger.Printf("failed to close event log: %v", cerr)
			}
		}
	}()

	if err := os.MkdirAll(settings.WorldDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create world dir: %w", err)
	}

	bridge := hostbridge.New(hostbridge.Config{
		StaleAfter: settings.HostStaleAfter,
		DayLength:  settings.DayLength,
	})

	metrics := &logging.Metrics{}
	srv, err := server.New(server.Config{
		MapPath:              settings.MapPath(),
		FogPath:              settings.FogPath(),
		PinsPath:             settings.PinsPath(),
		ExploreRadius:        settings.ExploreRadius,
		FogUpdateInterval:    settings.FogUpdateInterval,
		SaveInterval:         settings.SaveInterval,
		PlayerUpdateInterval: settings.PlayerUpdateInterval,
		MaxPinsPerUser:       settings.MaxPinsPerUser,
		EvictOverQuota:       settings.EvictOverQuota,
		PingType:             settings.PingType,
		CommandInterval:      settings.CommandInterval,
		CommandBurst:         settings.CommandBurst,
		Hub: ws.HubConfig{
			MaxViewers:   settings.MaxViewers,
			WriteWait:    settings.WriteWait,
			PingInterval: settings.PingInterval,
			IdleTimeout:  settings.IdleTimeout,
			FanOut:       settings.FanOut,
		},
		Roster:    bridge,
		Lookup:    bridge,
		Clock:     bridge,
		Logger:    telemetryLogger,
		Publisher: logging.WithFields(router, map[string]any{"world": settings.WorldName}),
		Metrics:   metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to construct map server: %w", err)
	}

	clientDir, err := resolveClientAssetsDir(settings.ClientDir)
	if err != nil {
		telemetryLogger.Printf("serving without viewer assets: %v", err)
		clientDir = ""
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	handler := servernet.NewHTTPHandler(srv, servernet.HTTPHandlerConfig{
		ClientDir:   clientDir,
		CORSOrigins: settings.CORSOrigins,
		HostToken:   settings.HostToken,
		EnablePprof: settings.EnablePprof,
		Bridge:      bridge,
		WS:          ws.HandlerConfig{AllowedOrigins: settings.CORSOrigins},
		BakeContext: runCtx,
		Logger:      telemetryLogger,
	})

	runDone := make(chan error, 1)
	go func() { runDone <- srv.Run(runCtx) }()

	if settings.DemoWorld {
		telemetryLogger.Printf("demo world enabled, seed %d", settings.DemoSeed)
		baked := srv.OnWorldReady(runCtx, hostbridge.NewNoiseSampler(settings.DemoSeed))
		go func() {
			if err := <-baked; err != nil {
				telemetryLogger.Printf("demo bake failed: %v", err)
			}
		}()
	}

	httpSrv := &http.Server{
		Addr:              settings.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveDone := make(chan error, 1)
	go func() {
		telemetryLogger.Printf("server listening on %s", httpSrv.Addr)
		serveDone <- httpSrv.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-serveDone:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server failed: %w", err)
		}
	}

	telemetryLogger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.ShutdownTimeout)
	defer cancel()

	var errs []error
	if serveErr != nil {
		errs = append(errs, serveErr)
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	stop()
	<-runDone
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// newEventRouter builds the structured event router: a console sink through
// logrus, and a JSON sink on a rotating file when one is configured. With a
// file, network events go to the file only.
func newEventRouter(base *logrus.Logger, fallback *log.Logger, cfg config.LogConfig) (*logging.Router, io.Closer, error) {
	logConfig := logging.DefaultConfig()
	if severity, ok := logging.ParseSeverity(strings.ToLower(cfg.EventLevel)); ok {
		logConfig.MinimumSeverity = severity
	}
	logConfig.Console.UseColor = cfg.Color

	named := []logging.NamedSink{
		{Name: "console", Sink: loggingSinks.NewConsoleSink(base, nil, logConfig.Console)},
	}

	var file *lumberjack.Logger
	if cfg.File != "" {
		logConfig.JSON.FilePath = cfg.File
		if cfg.MaxSizeMB > 0 {
			logConfig.JSON.MaxSizeMB = cfg.MaxSizeMB
		}
		if cfg.MaxBackups > 0 {
			logConfig.JSON.MaxBackups = cfg.MaxBackups
		}
		if cfg.MaxAgeDays > 0 {
			logConfig.JSON.MaxAgeDays = cfg.MaxAgeDays
		}
		file = &lumberjack.Logger{
			Filename:   logConfig.JSON.FilePath,
			MaxSize:    logConfig.JSON.MaxSizeMB,
			MaxBackups: logConfig.JSON.MaxBackups,
			MaxAge:     logConfig.JSON.MaxAgeDays,
			Compress:   true,
		}
		logConfig.EnabledSinks = append(logConfig.EnabledSinks, "json")
		// Viewer churn is audit material; keep it off the console.
		logConfig.Routes = map[string][]string{logging.CategoryNetwork: {"json"}}
		named = append(named, logging.NamedSink{Name: "json", Sink: loggingSinks.NewJSON(file, logConfig.JSON.FlushInterval)})
	}

	router, err := logging.NewRouter(logging.SystemClock{}, logConfig, fallback, named)
	if err != nil {
		if file != nil {
			_ = file.Close()
		}
		return nil, nil, err
	}
	if file == nil {
		return router, nil, nil
	}
	return router, file, nil
}
