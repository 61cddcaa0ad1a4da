package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/redactd/internal/detect"
	"github.com/fyrsmithlabs/redactd/internal/logging"
)

// Config is the root configuration for redactd.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Logging      logging.Config     `koanf:"logging"`
	Storage      StorageConfig      `koanf:"storage"`
	Privacy      PrivacyConfig      `koanf:"privacy"`
	Breaker      BreakerConfig      `koanf:"breaker"`
	Intelligence IntelligenceConfig `koanf:"intelligence"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ReadTimeout     Duration `koanf:"read_timeout"`
	WriteTimeout    Duration `koanf:"write_timeout"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// StorageConfig selects the session store backend.
type StorageConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `koanf:"backend"`

	// Path is the database directory for the sqlite backend.
	Path string `koanf:"path"`
}

// PrivacyConfig controls detection and tokenization.
type PrivacyConfig struct {
	// DefaultLevel applies when a request has no session and no override:
	// minimal, standard, or strict.
	DefaultLevel string `koanf:"default_level"`

	// BatchWorkers bounds parallel detection in batch requests.
	BatchWorkers int `koanf:"batch_workers"`

	// ProximityWindow is the character distance within which co-occurring
	// entities are related.
	ProximityWindow int `koanf:"proximity_window"`

	// CustomRules extend the built-in detection rules.
	CustomRules []detect.Rule `koanf:"custom_rules"`
}

// BreakerConfig controls circuit breakers for outbound dependencies.
type BreakerConfig struct {
	FailureThreshold int      `koanf:"failure_threshold"`
	ResetTimeout     Duration `koanf:"reset_timeout"`
}

// IntelligenceConfig controls the token intelligence bridge.
type IntelligenceConfig struct {
	// Timeout bounds a single intelligence call.
	Timeout Duration `koanf:"timeout"`

	// Endpoint is an external intelligence service URL. Empty selects the
	// in-process heuristic generator.
	Endpoint string `koanf:"endpoint"`

	// APIKey authenticates against the external endpoint.
	APIKey Secret `koanf:"api_key"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = Duration(30 * time.Second)
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Fields == nil {
		cfg.Logging.Fields = map[string]string{"service": "redactd"}
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}

	if cfg.Privacy.DefaultLevel == "" {
		cfg.Privacy.DefaultLevel = string(detect.LevelStandard)
	}
	if cfg.Privacy.BatchWorkers == 0 {
		cfg.Privacy.BatchWorkers = 4
	}
	if cfg.Privacy.ProximityWindow == 0 {
		cfg.Privacy.ProximityWindow = 120
	}

	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.ResetTimeout == 0 {
		cfg.Breaker.ResetTimeout = Duration(30 * time.Second)
	}

	if cfg.Intelligence.Timeout == 0 {
		cfg.Intelligence.Timeout = Duration(2 * time.Second)
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be 1-65535, got %d", c.Server.Port)
	}

	if err := c.Logging.Validate(); err != nil {
		return err
	}

	switch c.Storage.Backend {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("storage backend must be 'memory' or 'sqlite', got %q", c.Storage.Backend)
	}

	if !detect.Level(c.Privacy.DefaultLevel).Valid() {
		return fmt.Errorf("invalid privacy default_level %q", c.Privacy.DefaultLevel)
	}
	if c.Privacy.BatchWorkers < 1 {
		return fmt.Errorf("privacy batch_workers must be >= 1, got %d", c.Privacy.BatchWorkers)
	}
	if c.Privacy.ProximityWindow < 1 {
		return fmt.Errorf("privacy proximity_window must be >= 1, got %d", c.Privacy.ProximityWindow)
	}

	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker failure_threshold must be >= 1, got %d", c.Breaker.FailureThreshold)
	}
	if c.Breaker.ResetTimeout.Duration() <= 0 {
		return fmt.Errorf("breaker reset_timeout must be > 0")
	}

	if c.Intelligence.Timeout.Duration() <= 0 {
		return fmt.Errorf("intelligence timeout must be > 0")
	}
	if c.Intelligence.Endpoint == "" && c.Intelligence.APIKey.IsSet() {
		return fmt.Errorf("intelligence api_key is set but endpoint is empty")
	}

	return nil
}
