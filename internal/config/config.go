// Package config loads and validates the gateway configuration.
//
// DESIGN: All configuration MUST come from YAML files. No defaults for
// server settings. This ensures explicit, auditable configuration for
// production deployments. Provider sections are optional: a provider with
// no section uses its built-in base URL and takes the API key from the
// client request.
//
// FILES:
//   - config.go:    Root Config struct, Load(), Validate()
//   - providers.go: Per-provider overrides, model pricing, capabilities
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the bridge.
type Config struct {
	Server       ServerConfig       `yaml:"server"`       // HTTP server settings
	Providers    ProvidersConfig    `yaml:"providers"`    // Per-provider overrides
	Transform    TransformConfig    `yaml:"transform"`    // Tool-result content transforms
	Pricing      PricingConfig      `yaml:"pricing"`      // Model input pricing
	Capabilities CapabilitiesConfig `yaml:"capabilities"` // Model capability overrides
	Monitoring   MonitoringConfig   `yaml:"monitoring"`   // Telemetry and logging
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // Port to listen on
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // Max time to read request
	WriteTimeout time.Duration `yaml:"write_timeout"` // Max time to write response
}

// TransformConfig controls tool-result content transformation.
type TransformConfig struct {
	// MaxImageChars caps base64 image payload length before the image is
	// replaced by a placeholder. Zero means the built-in default.
	MaxImageChars int `yaml:"max_image_chars"`

	// ToonEnabled turns on tool-output token compression accounting.
	ToonEnabled bool `yaml:"toon_enabled"`
}

// MonitoringConfig contains all monitoring settings.
type MonitoringConfig struct {
	// Logging settings
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json, console
	LogOutput string `yaml:"log_output"` // stdout, stderr, or file path

	// Telemetry settings
	TelemetryEnabled bool   `yaml:"telemetry_enabled"` // Enable telemetry tracking
	TelemetryPath    string `yaml:"telemetry_path"`    // Path to telemetry JSONL file
	LogToStdout      bool   `yaml:"log_to_stdout"`     // Also log telemetry to stdout
}

// expandEnvWithDefaults expands environment variables with support for default
// values. Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Load reads configuration from a YAML file.
// Returns an error if the file doesn't exist or is invalid.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
// Supports ${VAR:-default} env var expansion, env overrides, and validation.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// This allows deployment systems to redirect log paths without modifying
// the base config files.
func (c *Config) applyEnvOverrides() {
	if envPath := os.Getenv("SESSION_TELEMETRY_LOG"); envPath != "" {
		c.Monitoring.TelemetryPath = envPath
		c.Monitoring.TelemetryEnabled = true
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout == 0 {
		return fmt.Errorf("server.read_timeout is required")
	}
	if c.Server.WriteTimeout == 0 {
		return fmt.Errorf("server.write_timeout is required")
	}

	if c.Transform.MaxImageChars < 0 {
		return fmt.Errorf("transform.max_image_chars must not be negative")
	}

	if err := c.Providers.Validate(); err != nil {
		return err
	}
	if err := c.Pricing.Validate(); err != nil {
		return err
	}
	return nil
}
