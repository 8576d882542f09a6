// Package config provides the configuration surface for objpool.
// It defines a single Config structure covering pool sizing, release
// policy, and transport settings, with YAML loading and validation.
//
// Example usage:
//
//	cfg := config.Default()
//	cfg.Pool.Size = 25
//	cfg.Pool.DisableAfterRelease = true
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"crypto/tls"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/objpool/pkg/poolerrors"
)

// Duration is a time.Duration that marshals to and from YAML strings like
// "30s". Plain integers are accepted as nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return perr
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return err
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the unified configuration structure for pooled connections.
type Config struct {
	// Pool settings control capacity and handle release policy
	Pool PoolConfig `yaml:"pool" json:"pool"`

	// HTTP settings control how connections are opened and used
	HTTP HTTPConfig `yaml:"http" json:"http"`
}

// PoolConfig contains pool sizing and release-policy settings.
type PoolConfig struct {
	// Size is the maximum number of connections checked out simultaneously
	// per pool; 0 means unbounded
	Size int `yaml:"size" json:"size"`
	// PoolKey namespaces pools in the registry so unrelated callers with
	// the same endpoint do not share connections
	PoolKey string `yaml:"pool_key" json:"pool_key"`
	// DisableAfterRelease locks a handle into the released state so any
	// further use is detectable as a violation
	DisableAfterRelease bool `yaml:"disable_after_release" json:"disable_after_release"`
	// IgnoreDoubleRelease silently ignores repeat releases instead of
	// failing with a double-release error
	IgnoreDoubleRelease bool `yaml:"ignore_double_release" json:"ignore_double_release"`
}

// HTTPConfig contains transport-level settings for pooled connections.
type HTTPConfig struct {
	// DialTimeout bounds connection establishment
	DialTimeout Duration `yaml:"dial_timeout" json:"dial_timeout"`
	// RequestTimeout bounds one request/response exchange on a pooled
	// connection, from writing the request to consuming the body; 0 disables
	// the bound
	RequestTimeout Duration `yaml:"request_timeout" json:"request_timeout"`
	// InsecureSkipVerify disables TLS certificate validation
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
	// TLSMinVersion sets the minimum accepted TLS version
	TLSMinVersion uint16 `yaml:"tls_min_version" json:"tls_min_version"`
}

// Default returns the default configuration: pool size 8, a 30 second dial
// timeout, TLS 1.2 minimum, repeat releases ignored, and handles locked
// after release.
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			Size:                8,
			DisableAfterRelease: true,
			IgnoreDoubleRelease: true,
		},
		HTTP: HTTPConfig{
			DialTimeout:   Duration(30 * time.Second),
			TLSMinVersion: tls.VersionTLS12,
		},
	}
}

// Validate checks the configuration for invalid values. A negative pool
// size is a configuration error, surfaced immediately and never retried.
func (c *Config) Validate() error {
	if c.Pool.Size < 0 {
		return poolerrors.New(poolerrors.ErrorTypeConfig,
			"pool size must be non-negative").WithDetail("size", c.Pool.Size)
	}
	if c.HTTP.DialTimeout < 0 {
		return poolerrors.New(poolerrors.ErrorTypeConfig,
			"dial timeout must be non-negative").
			WithDetail("dial_timeout", c.HTTP.DialTimeout)
	}
	if c.HTTP.RequestTimeout < 0 {
		return poolerrors.New(poolerrors.ErrorTypeConfig,
			"request timeout must be non-negative").
			WithDetail("request_timeout", c.HTTP.RequestTimeout)
	}
	return nil
}
