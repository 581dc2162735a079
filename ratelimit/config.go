/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"time"

	"github.com/RafiulM/git-search-sub000/config"
)

const cfgDefaultKeyPrefix = "rateLimit"

const (
	cfgKeyMaxRequests   = "maxRequests"
	cfgKeyWindowSize    = "windowSize"
	cfgKeySweepInterval = "sweepInterval"
	cfgKeyMaxKeys       = "maxKeys"
)

// Default values for the rate limiter configuration parameters.
const (
	DefaultMaxRequests   = 60
	DefaultWindowSize    = time.Minute
	DefaultSweepInterval = 30 * time.Second
	DefaultMaxKeys       = 10000
)

// Config represents a set of configuration parameters for Limiter.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// MaxRequests is the number of requests allowed per identity within one window.
	MaxRequests int `mapstructure:"maxRequests" yaml:"maxRequests" json:"maxRequests"`

	// WindowSize is the length of the fixed window.
	WindowSize config.TimeDuration `mapstructure:"windowSize" yaml:"windowSize" json:"windowSize"`

	// SweepInterval is how often the periodic sweep discards expired windows.
	SweepInterval config.TimeDuration `mapstructure:"sweepInterval" yaml:"sweepInterval" json:"sweepInterval"`

	// MaxKeys bounds the number of identities tracked at once.
	MaxKeys int `mapstructure:"maxKeys" yaml:"maxKeys" json:"maxKeys"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{
		keyPrefix:     opts.keyPrefix,
		MaxRequests:   DefaultMaxRequests,
		WindowSize:    config.TimeDuration(DefaultWindowSize),
		SweepInterval: config.TimeDuration(DefaultSweepInterval),
		MaxKeys:       DefaultMaxKeys,
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the rate limiter in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMaxRequests, DefaultMaxRequests)
	dp.SetDefault(cfgKeyWindowSize, DefaultWindowSize)
	dp.SetDefault(cfgKeySweepInterval, DefaultSweepInterval)
	dp.SetDefault(cfgKeyMaxKeys, DefaultMaxKeys)
}

// Set sets rate limiter configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.MaxRequests, err = dp.GetInt(cfgKeyMaxRequests); err != nil {
		return err
	}
	if c.MaxRequests <= 0 {
		return dp.WrapKeyErr(cfgKeyMaxRequests, fmt.Errorf("must be positive"))
	}

	var dur time.Duration
	if dur, err = dp.GetDuration(cfgKeyWindowSize); err != nil {
		return err
	}
	if dur <= 0 {
		return dp.WrapKeyErr(cfgKeyWindowSize, fmt.Errorf("must be positive"))
	}
	c.WindowSize = config.TimeDuration(dur)

	if dur, err = dp.GetDuration(cfgKeySweepInterval); err != nil {
		return err
	}
	if dur <= 0 {
		return dp.WrapKeyErr(cfgKeySweepInterval, fmt.Errorf("must be positive"))
	}
	c.SweepInterval = config.TimeDuration(dur)

	if c.MaxKeys, err = dp.GetInt(cfgKeyMaxKeys); err != nil {
		return err
	}
	if c.MaxKeys <= 0 {
		return dp.WrapKeyErr(cfgKeyMaxKeys, fmt.Errorf("must be positive"))
	}

	return nil
}
