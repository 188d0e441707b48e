package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the cloud bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Cloud     CloudConfig     `yaml:"cloud"`
	Polling   PollingConfig   `yaml:"polling"`
	Budget    BudgetConfig    `yaml:"budget"`
	Sensors   SensorsConfig   `yaml:"sensors"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// CloudConfig contains the vendor cloud API endpoint and credentials.
type CloudConfig struct {
	// BaseURL is the API root, without the version segment.
	// Default: "https://api.switch-bot.com"
	BaseURL string `yaml:"base_url"`

	// Token and Secret are issued by the vendor app.
	// Set them via CLOUDBRIDGE_CLOUD_TOKEN / CLOUDBRIDGE_CLOUD_SECRET.
	Token  string `yaml:"token"`
	Secret string `yaml:"secret"`

	// RequestTimeout bounds a single HTTP round trip.
	// Default: 10s
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// PollingConfig controls each device coordinator's schedule.
type PollingConfig struct {
	// Interval is the base polling interval used while polls succeed.
	// Default: 600s (the vendor allows 10,000 requests per day per account).
	Interval time.Duration `yaml:"interval"`

	// MaxInterval, if set, is a hard ceiling on the backed-off interval and
	// must be >= Interval. Default: unset, which means Interval ×
	// BackoffFactor^BackoffCap.
	MaxInterval time.Duration `yaml:"max_interval"`

	// BackoffFactor multiplies the interval for each consecutive failure.
	// Default: 2
	BackoffFactor float64 `yaml:"backoff_factor"`

	// BackoffCap is the maximum exponent applied to BackoffFactor; at least 1.
	// Default: 5
	BackoffCap int `yaml:"backoff_cap"`

	// AlwaysUpdate notifies subscribers even when a poll returns unchanged data.
	AlwaysUpdate bool `yaml:"always_update"`
}

// BudgetConfig bounds the request load all coordinators share.
type BudgetConfig struct {
	// MaxConcurrent is the maximum number of in-flight cloud requests.
	// Default: 4
	MaxConcurrent int `yaml:"max_concurrent"`

	// RequestsPerSecond limits the sustained request rate. 0 disables the limiter.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the token bucket size for RequestsPerSecond.
	// Default: 1
	Burst int `yaml:"burst"`
}

// SensorsConfig holds per-field transforms applied by sensor entities.
type SensorsConfig struct {
	// Transforms maps a status field name (e.g. "electricCurrent") to the
	// linear transform applied to its raw value.
	Transforms map[string]TransformConfig `yaml:"transforms"`
}

// TransformConfig is a linear transform: value = raw*Scale + Offset.
type TransformConfig struct {
	Scale  float64 `yaml:"scale"`
	Offset float64 `yaml:"offset"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetentionDays is how long entity state history is kept.
	// 0 keeps it forever. Default: 30
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
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
// Environment variables follow the pattern: CLOUDBRIDGE_SECTION_KEY
// For example: CLOUDBRIDGE_CLOUD_TOKEN, CLOUDBRIDGE_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
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
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic Cloud Bridge",
		},
		Cloud: CloudConfig{
			BaseURL:        "https://api.switch-bot.com",
			RequestTimeout: 10 * time.Second,
		},
		Polling: PollingConfig{
			Interval:      600 * time.Second,
			BackoffFactor: 2,
			BackoffCap:    5,
		},
		Budget: BudgetConfig{
			MaxConcurrent: 4,
			Burst:         1,
		},
		Sensors: SensorsConfig{
			Transforms: map[string]TransformConfig{
				// The cloud reports current in tenths of an ampere.
				"electricCurrent": {Scale: 0.1},
			},
		},
		Database: DatabaseConfig{
			Path:                 "./data/cloudbridge.db",
			WALMode:              true,
			BusyTimeout:          5,
			HistoryRetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-cloudbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CLOUDBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Cloud credentials belong in the environment, not the config file
	if v := os.Getenv("CLOUDBRIDGE_CLOUD_TOKEN"); v != "" {
		cfg.Cloud.Token = strings.TrimSpace(v)
	}
	if v := os.Getenv("CLOUDBRIDGE_CLOUD_SECRET"); v != "" {
		cfg.Cloud.Secret = strings.TrimSpace(v)
	}
	if v := os.Getenv("CLOUDBRIDGE_CLOUD_BASE_URL"); v != "" {
		cfg.Cloud.BaseURL = v
	}

	// Polling
	if v := os.Getenv("CLOUDBRIDGE_POLLING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Polling.Interval = d
		}
	}
	if v := os.Getenv("CLOUDBRIDGE_BUDGET_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Budget.MaxConcurrent = n
		}
	}

	// Database
	if v := os.Getenv("CLOUDBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("CLOUDBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CLOUDBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CLOUDBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("CLOUDBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("CLOUDBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Cloud credentials are REQUIRED: without them every poll fails with an auth error
	if c.Cloud.BaseURL == "" {
		errs = append(errs, "cloud.base_url is required")
	}
	if c.Cloud.Token == "" {
		errs = append(errs, "cloud.token is required (set CLOUDBRIDGE_CLOUD_TOKEN environment variable)")
	}
	if c.Cloud.Secret == "" {
		errs = append(errs, "cloud.secret is required (set CLOUDBRIDGE_CLOUD_SECRET environment variable)")
	}

	// Polling
	if c.Polling.Interval <= 0 {
		errs = append(errs, "polling.interval must be positive")
	}
	if c.Polling.MaxInterval != 0 && c.Polling.MaxInterval < c.Polling.Interval {
		errs = append(errs, "polling.max_interval must be >= polling.interval")
	}
	if c.Polling.BackoffFactor < 1 {
		errs = append(errs, "polling.backoff_factor must be >= 1")
	}
	if c.Polling.BackoffCap < 1 {
		errs = append(errs, "polling.backoff_cap must be at least 1")
	}

	// Budget
	if c.Budget.MaxConcurrent < 1 {
		errs = append(errs, "budget.max_concurrent must be at least 1")
	}
	if c.Budget.RequestsPerSecond < 0 {
		errs = append(errs, "budget.requests_per_second must not be negative")
	}

	for field, tr := range c.Sensors.Transforms {
		if tr.Scale == 0 {
			errs = append(errs, fmt.Sprintf("sensors.transforms.%s.scale must not be zero", field))
		}
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.HistoryRetentionDays < 0 {
		errs = append(errs, "database.history_retention_days must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// HistoryRetention returns the state history retention period, 0 if history
// is kept forever.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.Database.HistoryRetentionDays) * 24 * time.Hour
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
