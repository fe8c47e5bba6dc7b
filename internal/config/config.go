// Package config loads relay runtime tunables from an optional YAML file
// with RELAY_* environment overrides layered on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	// DefaultAddr is the default TCP address the relay listens on.
	DefaultAddr = ":26676"
	// DefaultServerName is announced to clients in the login handshake.
	DefaultServerName = "BallanceMMO Relay"
	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 5 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 1 << 20
	// DefaultMaxClients bounds concurrent connections. Zero disables the limit.
	DefaultMaxClients = 256

	// DefaultTickInterval is the position broadcast cadence.
	DefaultTickInterval = 15 * time.Millisecond
	// DefaultResyncInterval is the latency/timestamp resync broadcast cadence.
	DefaultResyncInterval = 10 * time.Second

	// DefaultMinNameLength and DefaultMaxNameLength bound login nicknames.
	DefaultMinNameLength = 3
	DefaultMaxNameLength = 20

	// DefaultModerationDBPath stores ban/op/mute lists and the login audit.
	DefaultModerationDBPath = "moderation.db"

	// DefaultLogLevel controls verbosity for relay logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "relay.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7

	// DefaultRecorderDir is where flight recordings are written.
	DefaultRecorderDir = "recordings"
	// DefaultRecorderSweepInterval is the archival sweep cadence.
	DefaultRecorderSweepInterval = time.Hour
	// DefaultRecorderMaxAgeDays expires archived recordings.
	DefaultRecorderMaxAgeDays = 14
)

// Config captures all runtime tunables for the relay service.
type Config struct {
	Address         string        `yaml:"address"`
	ServerName      string        `yaml:"server_name"`
	MaxPayloadBytes int64         `yaml:"max_payload_bytes"`
	PingInterval    time.Duration `yaml:"-"`
	MaxClients      int           `yaml:"max_clients"`

	TickInterval   time.Duration `yaml:"-"`
	ResyncInterval time.Duration `yaml:"-"`

	MinNameLength int `yaml:"min_name_length"`
	MaxNameLength int `yaml:"max_name_length"`

	// OpMode gates restricted actions behind operator privilege while an
	// operator is online.
	OpMode bool `yaml:"op_mode"`
	// RestartLevel relays restart requests to the requesting player's map.
	RestartLevel bool `yaml:"restart_level"`
	// ForceRestart re-arms every known map when a restart countdown fires.
	ForceRestart bool `yaml:"force_restart"`

	ModerationDBPath string `yaml:"moderation_db_path"`

	Recorder RecorderConfig `yaml:"recorder"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// RecorderConfig captures flight recorder configuration options.
type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Dir           string        `yaml:"dir"`
	Snappy        bool          `yaml:"snappy"`
	SweepInterval time.Duration `yaml:"-"`
	MaxArchives   int           `yaml:"max_archives"`
	MaxAgeDays    int           `yaml:"max_age_days"`
}

// UnmarshalYAML decodes the section, accepting durations in the usual
// "10s" / "15ms" notation.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain Config
	aux := struct {
		plain          `yaml:",inline"`
		PingInterval   string `yaml:"ping_interval"`
		TickInterval   string `yaml:"tick_interval"`
		ResyncInterval string `yaml:"resync_interval"`
	}{plain: plain(*c)}
	if err := unmarshal(&aux); err != nil {
		return err
	}
	*c = Config(aux.plain)
	for _, field := range []struct {
		raw string
		dst *time.Duration
	}{
		{aux.PingInterval, &c.PingInterval},
		{aux.TickInterval, &c.TickInterval},
		{aux.ResyncInterval, &c.ResyncInterval},
	} {
		if field.raw == "" {
			continue
		}
		value, err := time.ParseDuration(field.raw)
		if err != nil {
			return err
		}
		*field.dst = value
	}
	return nil
}

// UnmarshalYAML decodes the recorder section with duration support.
func (r *RecorderConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain RecorderConfig
	aux := struct {
		plain         `yaml:",inline"`
		SweepInterval string `yaml:"sweep_interval"`
	}{plain: plain(*r)}
	if err := unmarshal(&aux); err != nil {
		return err
	}
	*r = RecorderConfig(aux.plain)
	if aux.SweepInterval != "" {
		value, err := time.ParseDuration(aux.SweepInterval)
		if err != nil {
			return err
		}
		r.SweepInterval = value
	}
	return nil
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Console    bool   `yaml:"console"`
}

// Default returns a configuration populated with every default value.
func Default() *Config {
	return &Config{
		Address:          DefaultAddr,
		ServerName:       DefaultServerName,
		MaxPayloadBytes:  DefaultMaxPayloadBytes,
		PingInterval:     DefaultPingInterval,
		MaxClients:       DefaultMaxClients,
		TickInterval:     DefaultTickInterval,
		ResyncInterval:   DefaultResyncInterval,
		MinNameLength:    DefaultMinNameLength,
		MaxNameLength:    DefaultMaxNameLength,
		ModerationDBPath: DefaultModerationDBPath,
		Recorder: RecorderConfig{
			Dir:           DefaultRecorderDir,
			SweepInterval: DefaultRecorderSweepInterval,
			MaxAgeDays:    DefaultRecorderMaxAgeDays,
		},
		Logging: LoggingConfig{
			Level:      DefaultLogLevel,
			Path:       DefaultLogPath,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
		},
	}
}

// Load reads the relay configuration: defaults, then the YAML file at path
// (skipped when path is empty or missing), then RELAY_* environment
// overrides. Every problem is collected before failing.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			//1.- A missing file is fine; defaults plus env cover first runs.
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	var problems []string

	if value := getString("RELAY_ADDR", ""); value != "" {
		cfg.Address = value
	}
	if value := getString("RELAY_SERVER_NAME", ""); value != "" {
		cfg.ServerName = value
	}
	if value := getString("RELAY_MODERATION_DB", ""); value != "" {
		cfg.ModerationDBPath = value
	}
	if value := getString("RELAY_LOG_LEVEL", ""); value != "" {
		cfg.Logging.Level = value
	}
	if value := getString("RELAY_LOG_PATH", ""); value != "" {
		cfg.Logging.Path = value
	}
	if value := getString("RELAY_RECORDER_DIR", ""); value != "" {
		cfg.Recorder.Dir = value
	}

	parseInt64(&problems, "RELAY_MAX_PAYLOAD_BYTES", &cfg.MaxPayloadBytes, true)
	parseInt(&problems, "RELAY_MAX_CLIENTS", &cfg.MaxClients, false)
	parseInt(&problems, "RELAY_MIN_NAME_LENGTH", &cfg.MinNameLength, true)
	parseInt(&problems, "RELAY_MAX_NAME_LENGTH", &cfg.MaxNameLength, true)
	parseInt(&problems, "RELAY_LOG_MAX_SIZE_MB", &cfg.Logging.MaxSizeMB, true)
	parseInt(&problems, "RELAY_LOG_MAX_BACKUPS", &cfg.Logging.MaxBackups, false)
	parseInt(&problems, "RELAY_LOG_MAX_AGE_DAYS", &cfg.Logging.MaxAgeDays, false)
	parseInt(&problems, "RELAY_RECORDER_MAX_ARCHIVES", &cfg.Recorder.MaxArchives, false)
	parseInt(&problems, "RELAY_RECORDER_MAX_AGE_DAYS", &cfg.Recorder.MaxAgeDays, false)
	parseDuration(&problems, "RELAY_PING_INTERVAL", &cfg.PingInterval)
	parseDuration(&problems, "RELAY_TICK_INTERVAL", &cfg.TickInterval)
	parseDuration(&problems, "RELAY_RESYNC_INTERVAL", &cfg.ResyncInterval)
	parseDuration(&problems, "RELAY_RECORDER_SWEEP_INTERVAL", &cfg.Recorder.SweepInterval)
	parseBool(&problems, "RELAY_OP_MODE", &cfg.OpMode)
	parseBool(&problems, "RELAY_RESTART_LEVEL", &cfg.RestartLevel)
	parseBool(&problems, "RELAY_FORCE_RESTART", &cfg.ForceRestart)
	parseBool(&problems, "RELAY_RECORDER_ENABLED", &cfg.Recorder.Enabled)
	parseBool(&problems, "RELAY_RECORDER_SNAPPY", &cfg.Recorder.Snappy)
	parseBool(&problems, "RELAY_LOG_CONSOLE", &cfg.Logging.Console)

	//2.- Cross-field checks run after overrides so file and env mix correctly.
	if cfg.MinNameLength <= 0 || cfg.MaxNameLength < cfg.MinNameLength {
		problems = append(problems, fmt.Sprintf(
			"name length bounds must satisfy 0 < min <= max, got %d..%d",
			cfg.MinNameLength, cfg.MaxNameLength))
	}
	if cfg.TickInterval <= 0 {
		problems = append(problems, fmt.Sprintf("tick interval must be positive, got %v", cfg.TickInterval))
	}
	if cfg.ResyncInterval <= 0 {
		problems = append(problems, fmt.Sprintf("resync interval must be positive, got %v", cfg.ResyncInterval))
	}
	if cfg.Recorder.Enabled && strings.TrimSpace(cfg.Recorder.Dir) == "" {
		problems = append(problems, "recorder directory must be set when the recorder is enabled")
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseInt(problems *[]string, key string, dst *int, positive bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := strconv.Atoi(raw)
	if err != nil || (positive && value <= 0) || (!positive && value < 0) {
		*problems = append(*problems, fmt.Sprintf("%s must be a %s integer, got %q", key, polarity(positive), raw))
		return
	}
	*dst = value
}

func parseInt64(problems *[]string, key string, dst *int64, positive bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || (positive && value <= 0) || (!positive && value < 0) {
		*problems = append(*problems, fmt.Sprintf("%s must be a %s integer, got %q", key, polarity(positive), raw))
		return
	}
	*dst = value
}

func parseDuration(problems *[]string, key string, dst *time.Duration) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		*problems = append(*problems, fmt.Sprintf("%s must be a positive duration, got %q", key, raw))
		return
	}
	*dst = value
}

func parseBool(problems *[]string, key string, dst *bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		*problems = append(*problems, fmt.Sprintf("%s must be a boolean value, got %q", key, raw))
		return
	}
	*dst = value
}

func polarity(positive bool) string {
	if positive {
		return "positive"
	}
	return "non-negative"
}
