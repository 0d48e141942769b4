package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// validJWTSecret meets the 32-character minimum.
const validJWTSecret = "test-secret-key-at-least-32-chars!"

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
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
feeding:
  cooldown_minutes: 5
sync:
  timeout_ms: 2500
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if !cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled should be true")
	}
	if cfg.Feeding.CooldownMinutes != 5 {
		t.Errorf("Feeding.CooldownMinutes = %d, want 5", cfg.Feeding.CooldownMinutes)
	}
	// Unset keys keep their defaults.
	if cfg.Feeding.DefaultDurationMs != 5000 {
		t.Errorf("Feeding.DefaultDurationMs = %d, want 5000", cfg.Feeding.DefaultDurationMs)
	}
	if cfg.Sync.Timeout() != 2500*time.Millisecond {
		t.Errorf("Sync.Timeout() = %v, want 2.5s", cfg.Sync.Timeout())
	}
	if cfg.Sync.Path != "/api/sync-schedule" {
		t.Errorf("Sync.Path = %q, want default", cfg.Sync.Path)
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

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "/tmp/test.db"
api:
  port: 8080
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for missing JWT secret, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(_ *Config) {}, wantErr: false},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "missing JWT secret", mutate: func(c *Config) { c.Security.JWT.Secret = "" }, wantErr: true},
		{name: "JWT secret too short", mutate: func(c *Config) { c.Security.JWT.Secret = "short" }, wantErr: true},
		{name: "zero cooldown", mutate: func(c *Config) { c.Feeding.CooldownMinutes = 0 }, wantErr: true},
		{name: "default duration out of range", mutate: func(c *Config) { c.Feeding.DefaultDurationMs = 60000 }, wantErr: true},
		{name: "zero sync timeout", mutate: func(c *Config) { c.Sync.TimeoutMs = 0 }, wantErr: true},
		{name: "relative sync path", mutate: func(c *Config) { c.Sync.Path = "sync" }, wantErr: true},
		{name: "bad fallback port", mutate: func(c *Config) { c.Devices.FallbackPort = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Security.JWT.Secret = validJWTSecret
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

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("FEEDER_DATABASE_PATH", "/custom/path.db")
	t.Setenv("FEEDER_MQTT_HOST", "mqtt.example.com")
	t.Setenv("FEEDER_MQTT_USERNAME", "testuser")
	t.Setenv("FEEDER_MQTT_PASSWORD", "testpass")
	t.Setenv("FEEDER_API_HOST", "192.168.1.1")
	t.Setenv("FEEDER_API_PORT", "9090")
	t.Setenv("FEEDER_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("FEEDER_JWT_SECRET", "jwt-secret")
	t.Setenv("FEEDER_FEED_COOLDOWN_MINUTES", "7")
	t.Setenv("FEEDER_DEVICE_FALLBACK_HOST", "10.0.0.9")

	applyEnvOverrides(cfg)

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
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
	if cfg.Feeding.CooldownMinutes != 7 {
		t.Errorf("Feeding.CooldownMinutes = %d, want 7", cfg.Feeding.CooldownMinutes)
	}
	if cfg.Devices.FallbackHost != "10.0.0.9" {
		t.Errorf("Devices.FallbackHost = %q, want %q", cfg.Devices.FallbackHost, "10.0.0.9")
	}
}

func TestApplyEnvOverrides_IgnoresBadNumbers(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("FEEDER_API_PORT", "not-a-port")
	t.Setenv("FEEDER_FEED_COOLDOWN_MINUTES", "soon")

	applyEnvOverrides(cfg)

	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want default 8080", cfg.API.Port)
	}
	if cfg.Feeding.CooldownMinutes != 2 {
		t.Errorf("Feeding.CooldownMinutes = %d, want default 2", cfg.Feeding.CooldownMinutes)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Feeding.Cooldown() != 2*time.Minute {
		t.Errorf("defaultConfig Feeding.Cooldown() = %v, want 2m", cfg.Feeding.Cooldown())
	}
	if cfg.Sync.Timeout() != 4*time.Second {
		t.Errorf("defaultConfig Sync.Timeout() = %v, want 4s", cfg.Sync.Timeout())
	}
}
