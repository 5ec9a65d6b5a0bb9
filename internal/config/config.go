package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings
// coordinator, sampling policy is injected here and never hardcoded downstream
type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Database   DatabaseConfig   `mapstructure:"database"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
	Proctoring ProctoringConfig `mapstructure:"proctoring"`
	Reaper     ReaperConfig     `mapstructure:"reaper"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// FUNCTIONAL DISCOVERY: Database configuration supports SQLite optimizations
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxConnections  int           `mapstructure:"max_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type WebSocketConfig struct {
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	IdentifyTimeout time.Duration `mapstructure:"identify_timeout"`
}

// ProctoringConfig is the sampling policy for observed-set selection
// FUNCTIONAL DISCOVERY: SampleRate of 0.15 with min 5 / max 60 bounds
// operator and bandwidth load independent of cohort size
type ProctoringConfig struct {
	SampleRate       float64       `mapstructure:"sample_rate"`
	MinObserved      int           `mapstructure:"min_observed"`
	MaxObserved      int           `mapstructure:"max_observed"`
	RotationInterval time.Duration `mapstructure:"rotation_interval"`
	FrameRate        int           `mapstructure:"frame_rate"`
}

// ReaperConfig drives the stale-session sweep
type ReaperConfig struct {
	CheckInterval  time.Duration `mapstructure:"check_interval"`
	StaleThreshold time.Duration `mapstructure:"stale_threshold"`
	GracePeriod    time.Duration `mapstructure:"grace_period"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Default returns production-ready defaults matching the deployed portal
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:            "./proctorhub.db",
			MaxConnections:  10,
			ConnMaxLifetime: 30 * time.Minute,
		},
		WebSocket: WebSocketConfig{
			PingInterval:    30 * time.Second,
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Second,
			SendBuffer:      100,
			IdentifyTimeout: 30 * time.Second,
		},
		Proctoring: ProctoringConfig{
			SampleRate:       0.15,
			MinObserved:      5,
			MaxObserved:      60,
			RotationInterval: 5 * time.Minute,
			FrameRate:        2,
		},
		Reaper: ReaperConfig{
			CheckInterval:  30 * time.Second,
			StaleThreshold: 60 * time.Second,
			GracePeriod:    10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load builds configuration with precedence: file > environment > defaults.
// An empty path skips the file layer; a named file that is missing is an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PROCTORHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	// ARCHITECTURAL DISCOVERY: Validate after loading so invalid sampling
	// bounds fail at startup, never at rotation time
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("http.host", d.HTTP.Host)
	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)

	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.max_connections", d.Database.MaxConnections)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)

	v.SetDefault("websocket.ping_interval", d.WebSocket.PingInterval)
	v.SetDefault("websocket.read_timeout", d.WebSocket.ReadTimeout)
	v.SetDefault("websocket.write_timeout", d.WebSocket.WriteTimeout)
	v.SetDefault("websocket.send_buffer", d.WebSocket.SendBuffer)
	v.SetDefault("websocket.identify_timeout", d.WebSocket.IdentifyTimeout)

	v.SetDefault("proctoring.sample_rate", d.Proctoring.SampleRate)
	v.SetDefault("proctoring.min_observed", d.Proctoring.MinObserved)
	v.SetDefault("proctoring.max_observed", d.Proctoring.MaxObserved)
	v.SetDefault("proctoring.rotation_interval", d.Proctoring.RotationInterval)
	v.SetDefault("proctoring.frame_rate", d.Proctoring.FrameRate)

	v.SetDefault("reaper.check_interval", d.Reaper.CheckInterval)
	v.SetDefault("reaper.stale_threshold", d.Reaper.StaleThreshold)
	v.SetDefault("reaper.grace_period", d.Reaper.GracePeriod)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
}

// Validate fails fast on configurations that would misbehave at runtime
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("http host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("http timeouts must be positive")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.MaxConnections <= 0 {
		return fmt.Errorf("database max connections must be positive")
	}

	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("websocket timeouts must be positive")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("websocket send buffer must be positive")
	}
	if c.WebSocket.IdentifyTimeout <= 0 {
		return fmt.Errorf("websocket identify timeout must be positive")
	}

	if c.Proctoring.SampleRate <= 0 || c.Proctoring.SampleRate > 1 {
		return fmt.Errorf("proctoring sample rate must be in (0, 1]")
	}
	if c.Proctoring.MinObserved < 0 {
		return fmt.Errorf("proctoring min observed cannot be negative")
	}
	if c.Proctoring.MaxObserved < c.Proctoring.MinObserved {
		return fmt.Errorf("proctoring max observed must be >= min observed")
	}
	if c.Proctoring.RotationInterval <= 0 {
		return fmt.Errorf("proctoring rotation interval must be positive")
	}
	if c.Proctoring.FrameRate <= 0 {
		return fmt.Errorf("proctoring frame rate must be positive")
	}

	if c.Reaper.CheckInterval <= 0 || c.Reaper.StaleThreshold <= 0 || c.Reaper.GracePeriod <= 0 {
		return fmt.Errorf("reaper intervals must be positive")
	}

	if c.Metrics.Enabled && c.Metrics.Path == "" {
		return fmt.Errorf("metrics path cannot be empty when metrics are enabled")
	}

	return nil
}
