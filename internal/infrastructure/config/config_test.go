package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: "test-site"
cloud:
  token: "tok"
  secret: "sec"
polling:
  interval: 30s
  max_interval: 10m
  backoff_factor: 3
  backoff_cap: 4
budget:
  max_concurrent: 2
  requests_per_second: 0.5
sensors:
  transforms:
    voltage:
      scale: 1
      offset: -0.5
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Polling.Interval != 30*time.Second {
		t.Errorf("Polling.Interval = %v, want 30s", cfg.Polling.Interval)
	}
	if cfg.Polling.MaxInterval != 10*time.Minute {
		t.Errorf("Polling.MaxInterval = %v, want 10m", cfg.Polling.MaxInterval)
	}
	if cfg.Polling.BackoffFactor != 3 {
		t.Errorf("Polling.BackoffFactor = %v, want 3", cfg.Polling.BackoffFactor)
	}
	if cfg.Budget.MaxConcurrent != 2 {
		t.Errorf("Budget.MaxConcurrent = %d, want 2", cfg.Budget.MaxConcurrent)
	}
	if cfg.Cloud.BaseURL != "https://api.switch-bot.com" {
		t.Errorf("Cloud.BaseURL = %q, want default", cfg.Cloud.BaseURL)
	}

	// File transforms merge with the built-in current descaling
	if got := cfg.Sensors.Transforms["voltage"]; got.Scale != 1 || got.Offset != -0.5 {
		t.Errorf("voltage transform = %+v, want scale 1 offset -0.5", got)
	}
	if got := cfg.Sensors.Transforms["electricCurrent"]; got.Scale != 0.1 {
		t.Errorf("electricCurrent transform = %+v, want scale 0.1", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingCredentials(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: "test-site"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error for missing credentials, got nil")
	}
	if !strings.Contains(err.Error(), "cloud.token") {
		t.Errorf("error = %v, want mention of cloud.token", err)
	}
}

func TestLoad_CredentialsFromEnv(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: "test-site"
`)
	t.Setenv("CLOUDBRIDGE_CLOUD_TOKEN", " env-token \n")
	t.Setenv("CLOUDBRIDGE_CLOUD_SECRET", "env-secret")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Cloud.Token != "env-token" {
		t.Errorf("Cloud.Token = %q, want trimmed env-token", cfg.Cloud.Token)
	}
}

// TestLoad_SampleConfig keeps configs/config.yaml loadable.
func TestLoad_SampleConfig(t *testing.T) {
	t.Setenv("CLOUDBRIDGE_CLOUD_TOKEN", "tok")
	t.Setenv("CLOUDBRIDGE_CLOUD_SECRET", "sec")

	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Polling.Interval != 600*time.Second {
		t.Errorf("Polling.Interval = %v, want 10m", cfg.Polling.Interval)
	}
	if tr := cfg.Sensors.Transforms["electricCurrent"]; tr.Scale != 0.1 {
		t.Errorf("electricCurrent transform = %+v", tr)
	}
	if cfg.InfluxDB.Enabled {
		t.Error("InfluxDB enabled in sample config")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Cloud.Token = "tok"
		cfg.Cloud.Secret = "sec"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: true},
		{name: "missing secret", mutate: func(c *Config) { c.Cloud.Secret = "" }, wantErr: true},
		{name: "zero interval", mutate: func(c *Config) { c.Polling.Interval = 0 }, wantErr: true},
		{name: "max below base", mutate: func(c *Config) { c.Polling.MaxInterval = time.Second }, wantErr: true},
		{name: "factor below one", mutate: func(c *Config) { c.Polling.BackoffFactor = 0.5 }, wantErr: true},
		{name: "negative cap", mutate: func(c *Config) { c.Polling.BackoffCap = -1 }, wantErr: true},
		{name: "zero cap", mutate: func(c *Config) { c.Polling.BackoffCap = 0 }, wantErr: true},
		{name: "unset max interval", mutate: func(c *Config) { c.Polling.MaxInterval = 0 }},
		{name: "negative max interval", mutate: func(c *Config) { c.Polling.MaxInterval = -time.Minute }, wantErr: true},
		{name: "zero budget", mutate: func(c *Config) { c.Budget.MaxConcurrent = 0 }, wantErr: true},
		{name: "negative rate", mutate: func(c *Config) { c.Budget.RequestsPerSecond = -1 }, wantErr: true},
		{
			name: "zero transform scale",
			mutate: func(c *Config) {
				c.Sensors.Transforms["voltage"] = TransformConfig{}
			},
			wantErr: true,
		},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "negative retention", mutate: func(c *Config) { c.Database.HistoryRetentionDays = -1 }, wantErr: true},
		{name: "retention disabled", mutate: func(c *Config) { c.Database.HistoryRetentionDays = 0 }},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "invalid port", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{
			name: "port ignored when API disabled",
			mutate: func(c *Config) {
				c.API.Enabled = false
				c.API.Port = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestConfig_HistoryRetention(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.HistoryRetention(); got != 30*24*time.Hour {
		t.Errorf("HistoryRetention() = %v, want 720h", got)
	}

	cfg.Database.HistoryRetentionDays = 0
	if got := cfg.HistoryRetention(); got != 0 {
		t.Errorf("HistoryRetention() = %v, want 0", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("CLOUDBRIDGE_CLOUD_BASE_URL", "http://127.0.0.1:9999")
	t.Setenv("CLOUDBRIDGE_POLLING_INTERVAL", "45s")
	t.Setenv("CLOUDBRIDGE_BUDGET_MAX_CONCURRENT", "7")
	t.Setenv("CLOUDBRIDGE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("CLOUDBRIDGE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("CLOUDBRIDGE_MQTT_USERNAME", "testuser")
	t.Setenv("CLOUDBRIDGE_MQTT_PASSWORD", "testpass")
	t.Setenv("CLOUDBRIDGE_API_HOST", "192.168.1.1")
	t.Setenv("CLOUDBRIDGE_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.Cloud.BaseURL != "http://127.0.0.1:9999" {
		t.Errorf("Cloud.BaseURL = %q", cfg.Cloud.BaseURL)
	}
	if cfg.Polling.Interval != 45*time.Second {
		t.Errorf("Polling.Interval = %v, want 45s", cfg.Polling.Interval)
	}
	if cfg.Budget.MaxConcurrent != 7 {
		t.Errorf("Budget.MaxConcurrent = %d, want 7", cfg.Budget.MaxConcurrent)
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestApplyEnvOverrides_IgnoresMalformedNumbers(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("CLOUDBRIDGE_POLLING_INTERVAL", "soon")
	t.Setenv("CLOUDBRIDGE_BUDGET_MAX_CONCURRENT", "many")

	applyEnvOverrides(cfg)

	if cfg.Polling.Interval != 600*time.Second {
		t.Errorf("Polling.Interval = %v, want default", cfg.Polling.Interval)
	}
	if cfg.Budget.MaxConcurrent != 4 {
		t.Errorf("Budget.MaxConcurrent = %d, want default", cfg.Budget.MaxConcurrent)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Polling.BackoffFactor != 2 {
		t.Errorf("defaultConfig Polling.BackoffFactor = %v, want 2", cfg.Polling.BackoffFactor)
	}
}
