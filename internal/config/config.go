// Package config loads the YAML settings shared by hl7send and xmlpost and
// layers HL7SEND_*, XMLPOST_URL and HL7TOOLS_LOG_LEVEL environment overrides
// on top.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"hl7tools/internal/retry"
)

// Config holds hl7send and xmlpost settings. Command-line flags override it.
type Config struct {
	HL7     HL7Config     `yaml:"hl7"`
	XML     XMLConfig     `yaml:"xml"`
	Logging LoggingConfig `yaml:"logging"`
}

// HL7Config configures the HL7 sender.
type HL7Config struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Serial    string `yaml:"serial"` // serial://PORT?baud=N, wins over host/port
	Timeout   string `yaml:"timeout"`
	KeepAlive bool   `yaml:"keep_alive"`

	// TimestampLayout is a Go time layout for MSH-7.
	TimestampLayout string `yaml:"timestamp_layout"`

	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig bounds resends after a transport failure.
type RetryConfig struct {
	MaxAttempts  int    `yaml:"max_attempts"`
	InitialDelay string `yaml:"initial_delay"`
	MaxDelay     string `yaml:"max_delay"`
}

// XMLConfig configures the XML poster.
type XMLConfig struct {
	URL         string            `yaml:"url"`
	ContentType string            `yaml:"content_type"`
	Headers     map[string]string `yaml:"headers"`
	Timeout     string            `yaml:"timeout"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level    string `yaml:"level"`    // debug, info, warn, error
	Encoding string `yaml:"encoding"` // console or json
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		HL7: HL7Config{
			Timeout: "30s",
			Retry:   RetryConfig{MaxAttempts: 1, InitialDelay: "500ms", MaxDelay: "5s"},
		},
		XML: XMLConfig{
			ContentType: "application/xml",
			Timeout:     "30s",
		},
		Logging: LoggingConfig{
			Level:    "warn",
			Encoding: "console",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HL7SEND_HOST"); v != "" {
		c.HL7.Host = v
	}
	if v := os.Getenv("HL7SEND_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HL7.Port = port
		}
	}
	if v := os.Getenv("HL7SEND_SERIAL"); v != "" {
		c.HL7.Serial = v
	}
	if v := os.Getenv("HL7SEND_TIMEOUT"); v != "" {
		c.HL7.Timeout = v
	}
	if v := os.Getenv("XMLPOST_URL"); v != "" {
		c.XML.URL = v
	}
	if v := os.Getenv("HL7TOOLS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks value ranges and durations.
func (c *Config) Validate() error {
	if c.HL7.Port < 0 || c.HL7.Port > 65535 {
		return fmt.Errorf("hl7.port %d out of range", c.HL7.Port)
	}
	for name, v := range map[string]string{
		"hl7.timeout":             c.HL7.Timeout,
		"hl7.retry.initial_delay": c.HL7.Retry.InitialDelay,
		"hl7.retry.max_delay":     c.HL7.Retry.MaxDelay,
		"xml.timeout":             c.XML.Timeout,
	} {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.HL7.Retry.MaxAttempts < 0 {
		return fmt.Errorf("hl7.retry.max_attempts must not be negative")
	}
	switch c.Logging.Encoding {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.encoding %q: want console or json", c.Logging.Encoding)
	}
	return nil
}

// Target returns where HL7 messages go: the serial target when set,
// otherwise host:port. Empty when neither is configured.
func (c *HL7Config) Target() string {
	if c.Serial != "" {
		return c.Serial
	}
	if c.Host == "" || c.Port == 0 {
		return ""
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// GetTimeout returns the transport timeout.
func (c *HL7Config) GetTimeout() time.Duration {
	d, _ := parseDuration(c.Timeout)
	return d
}

// RetryPolicy converts the retry settings.
func (c *HL7Config) RetryPolicy() retry.Config {
	initial, _ := parseDuration(c.Retry.InitialDelay)
	maxDelay, _ := parseDuration(c.Retry.MaxDelay)
	return retry.Config{
		MaxAttempts:  c.Retry.MaxAttempts,
		InitialDelay: initial,
		MaxDelay:     maxDelay,
		Multiplier:   2.0,
	}
}

// GetTimeout returns the HTTP timeout.
func (c *XMLConfig) GetTimeout() time.Duration {
	d, _ := parseDuration(c.Timeout)
	return d
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
