package bigtable

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/BrendanGleason/cloud-bigtable-client/buffer"
	"github.com/BrendanGleason/cloud-bigtable-client/policy"
	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// Defaults for Config.
const (
	DefaultPort         = 443
	DefaultChannelCount = 1
	DefaultUserAgent    = "cloud-bigtable-client-go"

	// NoTimeout disables the per-call deadline.
	NoTimeout = -time.Millisecond
)

// RetryConfig controls retries of transient failures.
type RetryConfig struct {
	// Enabled turns retries on. When false, every failure reaches the caller.
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration `yaml:"initial_backoff" toml:"initial_backoff"`

	// BackoffMultiplier scales the delay after each attempt. Must be >= 1.
	BackoffMultiplier float64 `yaml:"backoff_multiplier" toml:"backoff_multiplier"`

	// MaxElapsedBackoff bounds the total time spent retrying one call.
	MaxElapsedBackoff time.Duration `yaml:"max_elapsed_backoff" toml:"max_elapsed_backoff"`
}

// Backoff returns the policy form of the retry timing.
func (r RetryConfig) Backoff() policy.BackoffConfig {
	return policy.BackoffConfig{
		InitialBackoff: r.InitialBackoff,
		Multiplier:     r.BackoffMultiplier,
		MaxElapsed:     r.MaxElapsedBackoff,
	}
}

// Config holds the connection, retry and buffering settings of a Session.
type Config struct {
	// Endpoint is the data API host:port. A bare host gets DefaultPort.
	Endpoint string `yaml:"endpoint" toml:"endpoint"`

	// UserAgent is sent with every call.
	UserAgent string `yaml:"user_agent" toml:"user_agent"`

	// ChannelCount is the number of connections calls are spread across.
	ChannelCount int `yaml:"channel_count" toml:"channel_count"`

	// Timeout is the per-call deadline; NoTimeout disables it.
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`

	// MaxHeapBytes caps the estimated size of mutations in flight per write buffer.
	MaxHeapBytes int64 `yaml:"max_heap_bytes" toml:"max_heap_bytes"`

	// MaxInFlightRPCs caps the number of mutation RPCs in flight per write buffer.
	MaxInFlightRPCs int `yaml:"max_inflight_rpcs" toml:"max_inflight_rpcs"`

	// Retry controls retries of transient failures.
	Retry RetryConfig `yaml:"retry" toml:"retry"`

	// OverrideEndpointIP, when set, is dialed instead of resolving the endpoint host.
	OverrideEndpointIP string `yaml:"override_endpoint_ip" toml:"override_endpoint_ip"`

	// CallStatusReportPath, when set, receives the per-method status counts on Close.
	CallStatusReportPath string `yaml:"call_status_report_path" toml:"call_status_report_path"`
}

// DefaultConfig returns a Config with sensible defaults.
//
// Endpoint must still be set before use.
//
// Returns:
//   - Config: Configuration with default settings
func DefaultConfig() Config {
	return Config{
		UserAgent:       DefaultUserAgent,
		ChannelCount:    DefaultChannelCount,
		Timeout:         NoTimeout,
		MaxHeapBytes:    buffer.DefaultMaxHeapBytes,
		MaxInFlightRPCs: buffer.DefaultMaxInFlightRPCs,
		Retry: RetryConfig{
			Enabled:           true,
			InitialBackoff:    policy.DefaultInitialBackoff,
			BackoffMultiplier: policy.DefaultBackoffMultiplier,
			MaxElapsedBackoff: policy.DefaultMaxElapsedBackoff,
		},
	}
}

// Validate checks every field and reports all violations at once.
//
// Returns:
//   - error: Validation error wrapping types.ErrInvalidConfig, or nil if valid
func (c Config) Validate() error {
	var errs []error

	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	} else if _, err := c.Address(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		errs = append(errs, errors.New("user agent is required"))
	}
	if c.ChannelCount <= 0 {
		errs = append(errs, fmt.Errorf("channel count must be positive, got %d", c.ChannelCount))
	}
	if c.Timeout < NoTimeout {
		errs = append(errs, fmt.Errorf("timeout must be >= %s, got %s", NoTimeout, c.Timeout))
	}
	if c.MaxHeapBytes <= 0 {
		errs = append(errs, fmt.Errorf("max heap bytes must be positive, got %d", c.MaxHeapBytes))
	}
	if c.MaxInFlightRPCs <= 0 {
		errs = append(errs, fmt.Errorf("max in-flight RPCs must be positive, got %d", c.MaxInFlightRPCs))
	}
	if c.Retry.Enabled {
		if err := c.Retry.Backoff().Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.OverrideEndpointIP != "" && net.ParseIP(c.OverrideEndpointIP) == nil {
		errs = append(errs, fmt.Errorf("override endpoint IP %q is not an IP address", c.OverrideEndpointIP))
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", types.ErrInvalidConfig, errors.Join(errs...))
}

// Address returns the endpoint as host:port, adding DefaultPort when absent.
func (c Config) Address() (string, error) {
	host, port, err := net.SplitHostPort(c.Endpoint)
	if err != nil {
		var addrErr *net.AddrError
		if errors.As(err, &addrErr) && addrErr.Err == "missing port in address" {
			return net.JoinHostPort(strings.Trim(c.Endpoint, "[]"), strconv.Itoa(DefaultPort)), nil
		}

		return "", fmt.Errorf("endpoint %q: %w", c.Endpoint, err)
	}
	if host == "" || port == "" {
		return "", fmt.Errorf("endpoint %q must be host:port", c.Endpoint)
	}

	return c.Endpoint, nil
}

// CallTimeout returns the per-call deadline, zero when disabled.
func (c Config) CallTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 0
	}

	return c.Timeout
}

// LoadConfig reads a YAML (.yaml, .yml) or TOML (.toml) file on top of
// DefaultConfig and validates the result.
//
// Durations are written as Go duration strings, e.g. "250ms".
//
// Parameters:
//   - path: Configuration file path
//
// Returns:
//   - Config: The loaded configuration
//   - error: Read, parse or validation error
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("%w: unsupported config file extension %q", types.ErrInvalidConfig, ext)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
