package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic Panel.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	Sync      SyncConfig      `yaml:"sync"`
	Session   SessionConfig   `yaml:"session"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Commands  CommandsConfig  `yaml:"commands"`
	Cache     CacheConfig     `yaml:"cache"`
	Audit     AuditConfig     `yaml:"audit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BackendConfig describes the remote smart-home backend the panel is a client of.
type BackendConfig struct {
	// BaseURL is the REST root, e.g. "https://api.example.com/v1".
	BaseURL string `yaml:"base_url"`

	// PushURL is the WebSocket endpoint of the push channel, e.g. "wss://api.example.com/ws".
	PushURL string `yaml:"push_url"`

	// Timeout bounds every REST request (seconds).
	Timeout int `yaml:"timeout"`
}

// SyncConfig tunes the live sync engine. Durations are in milliseconds.
type SyncConfig struct {
	ReconnectDelay       int `yaml:"reconnect_delay_ms"`
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`
	PollInterval         int `yaml:"poll_interval_ms"`
	DebounceWindow       int `yaml:"debounce_window_ms"`
}

// SessionConfig contains credential storage settings.
type SessionConfig struct {
	// TokenKey is the settings key the access token is persisted under.
	TokenKey string `yaml:"token_key"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains the local panel HTTP server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	PanelDir string           `yaml:"panel_dir"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket keepalive settings, shared by the browser hub
// and the push-channel client.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// MQTTConfig contains settings for the optional state mirror broker.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`

	// AcceptCommands lets local controllers switch devices by publishing to
	// <topic_prefix>/command/<device_id>.
	AcceptCommands bool `yaml:"accept_commands"`
}

// MQTTReconnectConfig contains broker reconnection backoff settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InfluxDBConfig contains InfluxDB connection settings for the reading recorder.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// CommandsConfig throttles device commands sent to the backend.
type CommandsConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// CacheConfig controls the hub/area reference cache (seconds).
type CacheConfig struct {
	DirectoryTTL int `yaml:"directory_ttl"`
}

// AuditConfig controls the local activity log of forwarded mutations.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`

	// RetentionDays is how long entries are kept. Zero keeps them forever.
	RetentionDays int `yaml:"retention_days"`
}

// Retention returns RetentionDays as a duration.
func (a AuditConfig) Retention() time.Duration {
	return time.Duration(a.RetentionDays) * 24 * time.Hour
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_PANEL_SECTION_KEY
// For example: GRAYLOGIC_PANEL_BACKEND_URL, GRAYLOGIC_PANEL_DATABASE_PATH
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Timeout: 15,
		},
		Sync: SyncConfig{
			ReconnectDelay:       5000,
			MaxReconnectAttempts: 3,
			PollInterval:         5000,
			DebounceWindow:       200,
		},
		Session: SessionConfig{
			TokenKey: "access_token",
		},
		Database: DatabaseConfig{
			Path:        "./data/panel.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-panel",
			},
			QoS:         1,
			TopicPrefix: "graylogic/panel",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Commands: CommandsConfig{
			RatePerSecond: 5,
			Burst:         10,
		},
		Cache: CacheConfig{
			DirectoryTTL: 30,
		},
		Audit: AuditConfig{
			Enabled:       true,
			RetentionDays: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_PANEL_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("GRAYLOGIC_PANEL_PUSH_URL"); v != "" {
		cfg.Backend.PushURL = v
	}
	if v := os.Getenv("GRAYLOGIC_PANEL_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("GRAYLOGIC_PANEL_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_PANEL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_PANEL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("GRAYLOGIC_PANEL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Backend.BaseURL == "" {
		errs = append(errs, "backend.base_url is required (set GRAYLOGIC_PANEL_BACKEND_URL)")
	} else if _, err := url.ParseRequestURI(c.Backend.BaseURL); err != nil {
		errs = append(errs, "backend.base_url is not a valid URL")
	}
	if c.Backend.PushURL != "" {
		u, err := url.Parse(c.Backend.PushURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, "backend.push_url must be a ws:// or wss:// URL")
		}
	}

	if c.Sync.ReconnectDelay <= 0 {
		errs = append(errs, "sync.reconnect_delay_ms must be positive")
	}
	if c.Sync.MaxReconnectAttempts < 0 {
		errs = append(errs, "sync.max_reconnect_attempts must not be negative")
	}
	if c.Sync.PollInterval <= 0 {
		errs = append(errs, "sync.poll_interval_ms must be positive")
	}
	if c.Sync.DebounceWindow < 0 {
		errs = append(errs, "sync.debounce_window_ms must not be negative")
	}

	if c.Session.TokenKey == "" {
		errs = append(errs, "session.token_key is required")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && (c.MQTT.TopicPrefix == "" || strings.ContainsAny(c.MQTT.TopicPrefix, "+#")) {
		errs = append(errs, "mqtt.topic_prefix must be set and must not contain wildcards")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Audit.RetentionDays < 0 {
		errs = append(errs, "audit.retention_days must not be negative")
	}

	if c.Commands.RatePerSecond < 0 || c.Commands.Burst < 0 {
		errs = append(errs, "commands.rate_per_second and commands.burst must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// BackendTimeout returns the REST request timeout as a Duration.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.Timeout) * time.Second
}

// Durations converts the sync settings to time.Duration values.
func (s SyncConfig) Durations() (reconnect, poll, debounce time.Duration) {
	return time.Duration(s.ReconnectDelay) * time.Millisecond,
		time.Duration(s.PollInterval) * time.Millisecond,
		time.Duration(s.DebounceWindow) * time.Millisecond
}
