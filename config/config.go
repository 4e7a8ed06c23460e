// Package config provides YAML configuration parsing for the item collector.
//
// This package enables running the collector as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	port: 8080
//	gateway:
//	  url: ${GATEWAY_URL:-http://localhost:9000}
//	  api_key: ${GATEWAY_API_KEY:-}
//	  timeout: 10s
//	  state_poll_interval: 5s
//
//	item_collector:
//	  enabled: true
//	  drop_check_interval: 10
//	  apps:
//	    - app_id: 2923300
//	      name: Banana
//	      items: [1, 2, 3]
package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort              = 8080
	defaultGatewayURL        = "http://localhost:9000"
	defaultGatewayTimeout    = 10 * time.Second
	defaultStatePollInterval = 5 * time.Second

	// DefaultDropCheckInterval is the interval in minutes used when
	// drop_check_interval is omitted.
	DefaultDropCheckInterval = 10

	// MaxDropCheckInterval is the largest interval in minutes that still
	// fits a time.Duration.
	MaxDropCheckInterval = uint(math.MaxInt64 / int64(time.Minute))
)

// minStatePollInterval keeps the gateway from being hammered by an overly
// aggressive session state poll.
const minStatePollInterval = 1 * time.Second

// Config is the root configuration structure.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// Gateway configures the connection to the session host.
	Gateway GatewayConfig `yaml:"gateway"`

	// ItemCollector holds the drop collection settings. When the
	// item_collector section is malformed it falls back to disabled
	// defaults and ItemCollectorErr records why.
	ItemCollector ItemCollector `yaml:"-"`

	// ItemCollectorErr is the error that caused ItemCollector to fall back
	// to defaults, or nil.
	ItemCollectorErr error `yaml:"-"`
}

// GatewayConfig defines how the session gateway is reached.
type GatewayConfig struct {
	// URL is the gateway base URL.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// APIKey is sent as a bearer token. Supports environment variables.
	APIKey string `yaml:"api_key"`

	// Timeout is the per-request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// StatePollInterval is the time between session state refreshes.
	// Defaults to 5s, minimum 1s.
	StatePollInterval Duration `yaml:"state_poll_interval"`

	// RequestsPerSecond caps outbound gateway requests. Zero means no limit.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// ItemCollector is the drop collection settings section.
type ItemCollector struct {
	// Enabled permits automatic start of idling. Defaults to false.
	Enabled bool `yaml:"enabled"`

	// DropCheckInterval is the time between poll cycles, in minutes.
	// Defaults to 10. Zero and values above [MaxDropCheckInterval] are
	// rejected.
	DropCheckInterval *uint `yaml:"drop_check_interval"`

	// Apps are the applications to check, in priority order.
	Apps []AppConfig `yaml:"apps"`
}

// Interval returns the drop check interval as a duration.
func (ic ItemCollector) Interval() time.Duration {
	if ic.DropCheckInterval == nil {
		return DefaultDropCheckInterval * time.Minute
	}
	return time.Duration(*ic.DropCheckInterval) * time.Minute
}

// AppConfig defines one application and the item definitions checked for it.
type AppConfig struct {
	// AppID is the application identifier. Must be positive.
	AppID uint32 `yaml:"app_id"`

	// Name is a display name used in logs.
	Name string `yaml:"name"`

	// Items are the item definition ids, in priority order.
	Items []uint32 `yaml:"items"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// rawConfig defers decoding of item_collector so a bad section can fall
// back to defaults without failing the whole file.
type rawConfig struct {
	Port          int           `yaml:"port"`
	Gateway       GatewayConfig `yaml:"gateway"`
	ItemCollector yaml.Node     `yaml:"item_collector"`
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in the gateway url and api_key.
// Defaults are applied for Port (8080), gateway Timeout (10s) and
// StatePollInterval (5s).
//
// A malformed item_collector section does not fail the parse: settings fall
// back to {Enabled: false, Apps: []} and [Config.ItemCollectorErr] records
// the error.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg := &Config{
		Port:    raw.Port,
		Gateway: raw.Gateway,
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.Gateway.URL == "" {
		cfg.Gateway.URL = defaultGatewayURL
	}
	if cfg.Gateway.Timeout == 0 {
		cfg.Gateway.Timeout = Duration(defaultGatewayTimeout)
	}
	if cfg.Gateway.StatePollInterval == 0 {
		cfg.Gateway.StatePollInterval = Duration(defaultStatePollInterval)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	ic, err := parseItemCollector(&raw.ItemCollector)
	if err != nil {
		cfg.ItemCollector = ItemCollector{Apps: []AppConfig{}}
		cfg.ItemCollectorErr = err
	} else {
		cfg.ItemCollector = ic
	}

	return cfg, nil
}

// expandAndValidate expands environment variables and validates everything
// outside the item_collector section.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	gw := &c.Gateway

	expanded, err := expandEnvVars(gw.URL)
	if err != nil {
		return fmt.Errorf("gateway.url: %w", err)
	}
	gw.URL = expanded

	parsedURL, err := url.Parse(gw.URL)
	if err != nil {
		return fmt.Errorf("gateway.url: invalid url: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("gateway.url: scheme must be http or https, got %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return errors.New("gateway.url: host is required")
	}

	apiKey, err := expandEnvVars(gw.APIKey)
	if err != nil {
		return fmt.Errorf("gateway.api_key: %w", err)
	}
	gw.APIKey = apiKey

	if gw.Timeout.Duration() < time.Second {
		return fmt.Errorf("gateway.timeout must be at least 1s, got %s", gw.Timeout.Duration())
	}
	if gw.StatePollInterval.Duration() < minStatePollInterval {
		return fmt.Errorf("gateway.state_poll_interval must be at least %s, got %s",
			minStatePollInterval, gw.StatePollInterval.Duration())
	}
	if gw.RequestsPerSecond < 0 {
		return fmt.Errorf("gateway.requests_per_second cannot be negative, got %g", gw.RequestsPerSecond)
	}

	return nil
}

// parseItemCollector decodes and validates the item_collector section.
// An absent section yields defaults.
func parseItemCollector(node *yaml.Node) (ItemCollector, error) {
	ic := ItemCollector{Apps: []AppConfig{}}
	if node.Kind == 0 {
		return ic, nil
	}

	if err := node.Decode(&ic); err != nil {
		return ItemCollector{}, fmt.Errorf("item_collector: %w", err)
	}
	if ic.Apps == nil {
		ic.Apps = []AppConfig{}
	}

	if ic.DropCheckInterval != nil && *ic.DropCheckInterval == 0 {
		return ItemCollector{}, errors.New("item_collector.drop_check_interval must be positive")
	}
	if ic.DropCheckInterval != nil && *ic.DropCheckInterval > MaxDropCheckInterval {
		return ItemCollector{}, fmt.Errorf("item_collector.drop_check_interval must not exceed %d minutes, got %d",
			MaxDropCheckInterval, *ic.DropCheckInterval)
	}

	seen := make(map[uint32]int, len(ic.Apps))
	for i, app := range ic.Apps {
		if app.AppID == 0 {
			return ItemCollector{}, fmt.Errorf("item_collector.apps[%d].app_id must be positive", i)
		}
		if prev, ok := seen[app.AppID]; ok {
			return ItemCollector{}, fmt.Errorf("item_collector.apps[%d].app_id: %d duplicates apps[%d]", i, app.AppID, prev)
		}
		seen[app.AppID] = i

		if len(app.Items) == 0 {
			return ItemCollector{}, fmt.Errorf("item_collector.apps[%d] (%d): at least one item is required", i, app.AppID)
		}
		for j, item := range app.Items {
			if item == 0 {
				return ItemCollector{}, fmt.Errorf("item_collector.apps[%d].items[%d] must be positive", i, j)
			}
		}
	}

	return ic, nil
}
