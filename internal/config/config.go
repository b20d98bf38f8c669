package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Stores        StoresConfig        `yaml:"stores"`
	Session       SessionConfig       `yaml:"session"`
	Editor        EditorConfig        `yaml:"editor"`
	Auth          AuthConfig          `yaml:"auth"`
	Worker        WorkerConfig        `yaml:"worker"`
	Log           LogConfig           `yaml:"log"`
	BackupStorage BackupStorageConfig `yaml:"backup_storage"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// StoresConfig contains store instance settings.
type StoresConfig struct {
	RootPath string `yaml:"root_path"`
}

// SessionConfig contains session state settings.
type SessionConfig struct {
	Path string `yaml:"path"`
}

// EditorConfig contains editing behavior settings.
type EditorConfig struct {
	DebounceInterval Duration `yaml:"debounce_interval"`
}

// AuthConfig contains authentication settings. An empty APIKey disables
// authentication, which is the expected local single-user mode.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// WorkerConfig contains background worker settings.
type WorkerConfig struct {
	BackupInterval Duration `yaml:"backup_interval"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BackupStorageConfig contains S3-compatible off-site backup settings.
// An empty bucket leaves the system in local-only mode.
type BackupStorageConfig struct {
	Endpoint  string   `yaml:"endpoint"`
	Bucket    string   `yaml:"bucket"`
	AccessKey string   `yaml:"-"` // env-only, never in YAML
	SecretKey string   `yaml:"-"` // env-only, never in YAML
	Region    string   `yaml:"region"`
	UseSSL    *bool    `yaml:"use_ssl"`
	URLExpiry Duration `yaml:"url_expiry"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("CONTEXTDECK_CONFIG_PATH", "config/contextdeck.yaml")

	// Missing file is not an error; defaults apply.
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8390,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Stores: StoresConfig{
			RootPath: "~/.contextdeck/stores",
		},
		Session: SessionConfig{
			Path: "~/.contextdeck/session.yaml",
		},
		Editor: EditorConfig{
			DebounceInterval: Duration(500 * time.Millisecond),
		},
		Worker: WorkerConfig{
			BackupInterval: Duration(1 * time.Hour),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		BackupStorage: BackupStorageConfig{
			URLExpiry: Duration(1 * time.Hour),
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("CONTEXTDECK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CONTEXTDECK_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("CONTEXTDECK_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("CONTEXTDECK_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}

	// Stores and session
	if v := os.Getenv("CONTEXTDECK_STORES_ROOT"); v != "" {
		cfg.Stores.RootPath = v
	}
	if v := os.Getenv("CONTEXTDECK_SESSION_PATH"); v != "" {
		cfg.Session.Path = v
	}

	// Editor
	if v := os.Getenv("CONTEXTDECK_DEBOUNCE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Editor.DebounceInterval = Duration(d)
		}
	}

	// Auth
	if v := os.Getenv("CONTEXTDECK_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}

	// Worker
	if v := os.Getenv("CONTEXTDECK_BACKUP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.BackupInterval = Duration(d)
		}
	}

	// Log
	if v := os.Getenv("CONTEXTDECK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CONTEXTDECK_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	// Backup storage
	if v := os.Getenv("CONTEXTDECK_S3_ENDPOINT"); v != "" {
		cfg.BackupStorage.Endpoint = v
	}
	if v := os.Getenv("CONTEXTDECK_S3_BUCKET"); v != "" {
		cfg.BackupStorage.Bucket = v
	}
	if v := os.Getenv("CONTEXTDECK_S3_ACCESS_KEY"); v != "" {
		cfg.BackupStorage.AccessKey = v
	}
	if v := os.Getenv("CONTEXTDECK_S3_SECRET_KEY"); v != "" {
		cfg.BackupStorage.SecretKey = v
	}
	if v := os.Getenv("CONTEXTDECK_S3_REGION"); v != "" {
		cfg.BackupStorage.Region = v
	}
	if v := os.Getenv("CONTEXTDECK_S3_USE_SSL"); v != "" {
		useSSL := v == "true" || v == "1"
		cfg.BackupStorage.UseSSL = &useSSL
	}
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
