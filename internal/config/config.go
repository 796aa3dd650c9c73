package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"webmap/server/internal/telemetry"
	"webmap/server/logging"
)

// EnvPrefix prefixes every environment override, e.g. WEBMAP_HTTP_ADDR.
const EnvPrefix = "WEBMAP"

// Artifact file names inside the world directory.
const (
	MapFile  = "map"
	FogFile  = "fog.png"
	PinsFile = "pins.csv"
)

// Config is the resolved server configuration.
type Config struct {
	DataDir   string
	WorldName string

	HTTPAddr        string
	ClientDir       string
	CORSOrigins     []string
	HostToken       string
	EnablePprof     bool
	ShutdownTimeout time.Duration

	DemoWorld bool
	DemoSeed  int64

	FogUpdateInterval    time.Duration
	SaveInterval         time.Duration
	PlayerUpdateInterval time.Duration
	ExploreRadius        float64

	MaxPinsPerUser  int
	EvictOverQuota  bool
	PingType        int
	CommandInterval time.Duration
	CommandBurst    int

	MaxViewers   int
	PingInterval time.Duration
	IdleTimeout  time.Duration
	WriteWait    time.Duration
	FanOut       int

	HostStaleAfter time.Duration
	DayLength      time.Duration

	Log LogConfig
}

// LogConfig selects process log level and structured event sinks.
type LogConfig struct {
	Level      string
	EventLevel string
	Color      bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// WorldDir is the directory holding the world's map artifacts.
func (c Config) WorldDir() string {
	return filepath.Join(c.DataDir, c.WorldName)
}

// MapPath is the location of the baked base map.
func (c Config) MapPath() string { return filepath.Join(c.WorldDir(), MapFile) }

// FogPath is the location of the fog raster.
func (c Config) FogPath() string { return filepath.Join(c.WorldDir(), FogFile) }

// PinsPath is the location of the pin list.
func (c Config) PinsPath() string { return filepath.Join(c.WorldDir(), PinsFile) }

// Options selects the optional sources Load reads.
type Options struct {
	// File is an optional YAML/JSON/TOML config file.
	File string
	// EnvFile is an optional dotenv file; missing files are ignored.
	EnvFile string
	Logger  telemetry.Logger
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("world", "world")

	v.SetDefault("http.addr", ":3000")
	v.SetDefault("http.client_dir", "")
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("http.host_token", "")
	v.SetDefault("http.pprof", false)
	v.SetDefault("http.shutdown_timeout", "10s")

	v.SetDefault("demo.enabled", false)
	v.SetDefault("demo.seed", 1)

	v.SetDefault("fog.update_interval", "1s")
	v.SetDefault("fog.save_interval", "30s")
	v.SetDefault("fog.explore_radius", 100.0)
	v.SetDefault("players.update_interval", "1s")

	v.SetDefault("pins.max_per_user", 50)
	v.SetDefault("pins.evict_over_quota", true)
	v.SetDefault("pins.command_interval", "1s")
	v.SetDefault("pins.command_burst", 5)
	v.SetDefault("chat.ping_type", 3)

	v.SetDefault("hub.max_viewers", 256)
	v.SetDefault("hub.ping_interval", "20s")
	v.SetDefault("hub.idle_timeout", "60s")
	v.SetDefault("hub.write_wait", "5s")
	v.SetDefault("hub.fan_out", 16)

	v.SetDefault("host.stale_after", "10s")
	v.SetDefault("host.day_length", "30m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.event_level", "info")
	v.SetDefault("log.color", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)
}

// Load resolves configuration from defaults, the optional config file, the
// optional dotenv file and WEBMAP_* environment variables, in increasing
// precedence. Out-of-range values fall back to defaults with a warning.
func Load(opts Options) (Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.Nop()
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", opts.File, err)
		}
	}

	cfg := Config{
		DataDir:   v.GetString("data_dir"),
		WorldName: v.GetString("world"),

		HTTPAddr:        v.GetString("http.addr"),
		ClientDir:       v.GetString("http.client_dir"),
		CORSOrigins:     stringList(v.Get("http.cors_origins")),
		HostToken:       v.GetString("http.host_token"),
		EnablePprof:     v.GetBool("http.pprof"),
		ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),

		DemoWorld: v.GetBool("demo.enabled"),
		DemoSeed:  v.GetInt64("demo.seed"),

		FogUpdateInterval:    v.GetDuration("fog.update_interval"),
		SaveInterval:         v.GetDuration("fog.save_interval"),
		PlayerUpdateInterval: v.GetDuration("players.update_interval"),
		ExploreRadius:        v.GetFloat64("fog.explore_radius"),

		MaxPinsPerUser:  v.GetInt("pins.max_per_user"),
		EvictOverQuota:  v.GetBool("pins.evict_over_quota"),
		PingType:        v.GetInt("chat.ping_type"),
		CommandInterval: v.GetDuration("pins.command_interval"),
		CommandBurst:    v.GetInt("pins.command_burst"),

		MaxViewers:   v.GetInt("hub.max_viewers"),
		PingInterval: v.GetDuration("hub.ping_interval"),
		IdleTimeout:  v.GetDuration("hub.idle_timeout"),
		WriteWait:    v.GetDuration("hub.write_wait"),
		FanOut:       v.GetInt("hub.fan_out"),

		HostStaleAfter: v.GetDuration("host.stale_after"),
		DayLength:      v.GetDuration("host.day_length"),

		Log: LogConfig{
			Level:      strings.ToLower(v.GetString("log.level")),
			EventLevel: strings.ToLower(v.GetString("log.event_level")),
			Color:      v.GetBool("log.color"),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
	}
	cfg.normalize(logger)
	return cfg, nil
}

func (c *Config) normalize(logger telemetry.Logger) {
	d := Default()
	durations := []struct {
		name  string
		value *time.Duration
		def   time.Duration
	}{
		{"http.shutdown_timeout", &c.ShutdownTimeout, d.ShutdownTimeout},
		{"fog.update_interval", &c.FogUpdateInterval, d.FogUpdateInterval},
		{"fog.save_interval", &c.SaveInterval, d.SaveInterval},
		{"players.update_interval", &c.PlayerUpdateInterval, d.PlayerUpdateInterval},
		{"pins.command_interval", &c.CommandInterval, d.CommandInterval},
		{"hub.ping_interval", &c.PingInterval, d.PingInterval},
		{"hub.idle_timeout", &c.IdleTimeout, d.IdleTimeout},
		{"hub.write_wait", &c.WriteWait, d.WriteWait},
		{"host.stale_after", &c.HostStaleAfter, d.HostStaleAfter},
	}
	for _, entry := range durations {
		if *entry.value <= 0 {
			logger.Printf("config: %s=%s is not positive, using %s", entry.name, *entry.value, entry.def)
			*entry.value = entry.def
		}
	}
	if c.DayLength < 0 {
		logger.Printf("config: host.day_length=%s is negative, freezing the clock between pushes", c.DayLength)
		c.DayLength = 0
	}

	ints := []struct {
		name  string
		value *int
		def   int
	}{
		{"pins.max_per_user", &c.MaxPinsPerUser, d.MaxPinsPerUser},
		{"pins.command_burst", &c.CommandBurst, d.CommandBurst},
		{"hub.fan_out", &c.FanOut, d.FanOut},
	}
	for _, entry := range ints {
		if *entry.value <= 0 {
			logger.Printf("config: %s=%d is not positive, using %d", entry.name, *entry.value, entry.def)
			*entry.value = entry.def
		}
	}
	if c.MaxViewers < 0 {
		logger.Printf("config: hub.max_viewers=%d is negative, using %d", c.MaxViewers, d.MaxViewers)
		c.MaxViewers = d.MaxViewers
	}
	if c.ExploreRadius <= 0 {
		logger.Printf("config: fog.explore_radius=%v is not positive, using %v", c.ExploreRadius, d.ExploreRadius)
		c.ExploreRadius = d.ExploreRadius
	}
	if c.IdleTimeout <= c.PingInterval {
		logger.Printf("config: hub.idle_timeout=%s must exceed hub.ping_interval=%s, using %s", c.IdleTimeout, c.PingInterval, 3*c.PingInterval)
		c.IdleTimeout = 3 * c.PingInterval
	}
	if c.WorldName == "" || strings.ContainsAny(c.WorldName, `/\`) || c.WorldName == ".." {
		logger.Printf("config: world=%q is not a plain directory name, using %q", c.WorldName, d.WorldName)
		c.WorldName = d.WorldName
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = d.HTTPAddr
	}
	if _, ok := logging.ParseSeverity(c.Log.EventLevel); !ok {
		logger.Printf("config: log.event_level=%q is unknown, using %q", c.Log.EventLevel, d.Log.EventLevel)
		c.Log.EventLevel = d.Log.EventLevel
	}
}

// Default returns the configuration used when no source overrides a key.
func Default() Config {
	return Config{
		DataDir:              "data",
		WorldName:            "world",
		HTTPAddr:             ":3000",
		CORSOrigins:          []string{"*"},
		ShutdownTimeout:      10 * time.Second,
		DemoSeed:             1,
		FogUpdateInterval:    time.Second,
		SaveInterval:         30 * time.Second,
		PlayerUpdateInterval: time.Second,
		ExploreRadius:        100,
		MaxPinsPerUser:       50,
		EvictOverQuota:       true,
		PingType:             3,
		CommandInterval:      time.Second,
		CommandBurst:         5,
		MaxViewers:           256,
		PingInterval:         20 * time.Second,
		IdleTimeout:          60 * time.Second,
		WriteWait:            5 * time.Second,
		FanOut:               16,
		HostStaleAfter:       10 * time.Second,
		DayLength:            30 * time.Minute,
		Log: LogConfig{
			Level:      "info",
			EventLevel: "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// stringList accepts a YAML list or a comma separated string.
func stringList(raw any) []string {
	var parts []string
	switch value := raw.(type) {
	case []string:
		parts = value
	case []any:
		for _, item := range value {
			parts = append(parts, fmt.Sprint(item))
		}
	case string:
		parts = strings.Split(value, ",")
	}
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
