// Package config loads and hot-reloads the kernel's YAML configuration,
// following the teacher's pattern: a defaulted struct, environment
// overrides, and an fsnotify watcher that reloads the mutable subset
// without a restart.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EventBusConfig controls the typed event buses' backpressure policy.
type EventBusConfig struct {
	Capacity int    `yaml:"capacity"`
	FullMode string `yaml:"full_mode"` // Wait | DropOldest | DropNewest | DropWrite
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Exporter   string  `yaml:"exporter"` // stdout | otlp-http | none
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sample_rate"`
}

// AlertConfig controls the optional Telegram AlertChannel.
type AlertConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// Config is the full set of options recognized under .aiswarm/config.yaml.
type Config struct {
	HomeDir string `yaml:"-"`

	// Immutable: changing these requires a process restart.
	WorkingDirectory string `yaml:"working_directory"`
	DBPath           string `yaml:"db_path"`
	HTTPPortStart    int    `yaml:"http_port_start"`
	HTTPPortEnd      int    `yaml:"http_port_end"`
	LogLevel         string `yaml:"log_level"`

	// Mutable: the fsnotify watcher reloads these in place.
	HeartbeatTimeout       time.Duration  `yaml:"heartbeat_timeout"`
	HeartbeatSweepInterval time.Duration  `yaml:"heartbeat_sweep_interval"`
	DefaultPollingInterval time.Duration  `yaml:"default_polling_interval"`
	DefaultTaskWait        time.Duration  `yaml:"default_task_wait"`
	DefaultMemoryWait      time.Duration  `yaml:"default_memory_wait"`
	EventBus               EventBusConfig `yaml:"event_bus"`
	Telemetry              TelemetryConfig `yaml:"telemetry"`
	Alert                  AlertConfig     `yaml:"alert"`

	NeedsGenesis bool `yaml:"-"`
}

func defaultConfig() Config {
	return Config{
		HTTPPortStart:          8081,
		HTTPPortEnd:            9000,
		LogLevel:               "info",
		HeartbeatTimeout:       90 * time.Second,
		HeartbeatSweepInterval: 15 * time.Second,
		DefaultPollingInterval: 2 * time.Second,
		DefaultTaskWait:        30 * time.Second,
		DefaultMemoryWait:      30 * time.Second,
		EventBus: EventBusConfig{
			Capacity: 1024,
			FullMode: "Wait",
		},
	}
}

// HomeDir returns the directory .aiswarm/config.yaml lives under:
// workingDir unless AISWARM_HOME overrides it.
func HomeDir(workingDir string) string {
	if override := os.Getenv("AISWARM_HOME"); override != "" {
		return override
	}
	return filepath.Join(workingDir, ".aiswarm")
}

// ConfigPath returns the path to config.yaml within homeDir.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// Load reads config.yaml under workingDir, filling in defaults for
// anything absent. A missing file sets NeedsGenesis and is not an error.
func Load(workingDir string) (Config, error) {
	cfg := defaultConfig()
	cfg.WorkingDirectory = workingDir
	cfg.HomeDir = HomeDir(workingDir)

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create aiswarm home: %w", err)
	}

	configPath := ConfigPath(cfg.HomeDir)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.NeedsGenesis = true
		} else {
			return cfg, fmt.Errorf("read config.yaml: %w", err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.HTTPPortStart <= 0 {
		cfg.HTTPPortStart = 8081
	}
	if cfg.HTTPPortEnd < cfg.HTTPPortStart {
		cfg.HTTPPortEnd = 9000
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 90 * time.Second
	}
	if cfg.HeartbeatSweepInterval <= 0 {
		cfg.HeartbeatSweepInterval = 15 * time.Second
	}
	if cfg.DefaultPollingInterval <= 0 {
		cfg.DefaultPollingInterval = 2 * time.Second
	}
	if cfg.DefaultTaskWait <= 0 {
		cfg.DefaultTaskWait = 30 * time.Second
	}
	if cfg.DefaultMemoryWait <= 0 {
		cfg.DefaultMemoryWait = 30 * time.Second
	}
	if cfg.EventBus.Capacity <= 0 {
		cfg.EventBus.Capacity = 1024
	}
	if cfg.EventBus.FullMode == "" {
		cfg.EventBus.FullMode = "Wait"
	}
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("AISWARM_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("AISWARM_DB_PATH"); raw != "" {
		cfg.DBPath = raw
	}
	if raw := os.Getenv("AISWARM_HTTP_PORT_START"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.HTTPPortStart = v
		}
	}
	if raw := os.Getenv("AISWARM_HTTP_PORT_END"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.HTTPPortEnd = v
		}
	}
	if raw := os.Getenv("AISWARM_HEARTBEAT_TIMEOUT"); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil {
			cfg.HeartbeatTimeout = v
		}
	}
	if raw := os.Getenv("TELEGRAM_TOKEN"); raw != "" {
		cfg.Alert.BotToken = raw
		cfg.Alert.Enabled = true
	}
}

// applyMutable copies the hot-reloadable fields from next into cfg,
// leaving WorkingDirectory/DBPath/ports/LogLevel untouched.
func applyMutable(cfg *Config, next Config) {
	cfg.HeartbeatTimeout = next.HeartbeatTimeout
	cfg.HeartbeatSweepInterval = next.HeartbeatSweepInterval
	cfg.DefaultPollingInterval = next.DefaultPollingInterval
	cfg.DefaultTaskWait = next.DefaultTaskWait
	cfg.DefaultMemoryWait = next.DefaultMemoryWait
	cfg.EventBus = next.EventBus
	cfg.Telemetry = next.Telemetry
	cfg.Alert = next.Alert
}

// ImmutableChanged reports which immutable fields differ between cfg and
// next, so the watcher can log "ignored, restart required" on reload.
func ImmutableChanged(cfg, next Config) []string {
	var changed []string
	if cfg.WorkingDirectory != next.WorkingDirectory {
		changed = append(changed, "working_directory")
	}
	if cfg.DBPath != next.DBPath {
		changed = append(changed, "db_path")
	}
	if cfg.HTTPPortStart != next.HTTPPortStart {
		changed = append(changed, "http_port_start")
	}
	if cfg.HTTPPortEnd != next.HTTPPortEnd {
		changed = append(changed, "http_port_end")
	}
	return changed
}
