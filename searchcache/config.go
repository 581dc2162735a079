/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package searchcache

import (
	"fmt"
	"time"

	"github.com/RafiulM/git-search-sub000/config"
)

const cfgDefaultKeyPrefix = "cache"

const (
	cfgKeyMaxEntries    = "maxEntries"
	cfgKeyMaxMemory     = "maxMemory"
	cfgKeyDefaultTTL    = "defaultTtl"
	cfgKeySweepInterval = "sweepInterval"
)

// Default values for the cache configuration parameters.
const (
	DefaultMaxEntries    = 1000
	DefaultMaxMemory     = config.ByteSize(50 * 1024 * 1024)
	DefaultTTL           = 5 * time.Minute
	DefaultSweepInterval = 2 * time.Minute
)

// Config represents a set of configuration parameters for Cache.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// MaxEntries is the maximum number of entries the cache may hold.
	MaxEntries int `mapstructure:"maxEntries" yaml:"maxEntries" json:"maxEntries"`

	// MaxMemory is the ceiling for the summed estimated size of all entries.
	// Zero disables the memory bound.
	MaxMemory config.ByteSize `mapstructure:"maxMemory" yaml:"maxMemory" json:"maxMemory"`

	// DefaultTTL is the TTL applied by Cache.Set.
	DefaultTTL config.TimeDuration `mapstructure:"defaultTtl" yaml:"defaultTtl" json:"defaultTtl"`

	// SweepInterval is how often the periodic sweep removes expired entries.
	SweepInterval config.TimeDuration `mapstructure:"sweepInterval" yaml:"sweepInterval" json:"sweepInterval"`

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
		MaxEntries:    DefaultMaxEntries,
		MaxMemory:     DefaultMaxMemory,
		DefaultTTL:    config.TimeDuration(DefaultTTL),
		SweepInterval: config.TimeDuration(DefaultSweepInterval),
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

// SetProviderDefaults sets default configuration values for the cache in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMaxEntries, DefaultMaxEntries)
	dp.SetDefault(cfgKeyMaxMemory, DefaultMaxMemory.String())
	dp.SetDefault(cfgKeyDefaultTTL, DefaultTTL)
	dp.SetDefault(cfgKeySweepInterval, DefaultSweepInterval)
}

// Set sets cache configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.MaxEntries, err = dp.GetInt(cfgKeyMaxEntries); err != nil {
		return err
	}
	if c.MaxEntries <= 0 {
		return dp.WrapKeyErr(cfgKeyMaxEntries, fmt.Errorf("must be positive"))
	}

	if c.MaxMemory, err = dp.GetByteSize(cfgKeyMaxMemory); err != nil {
		return dp.WrapKeyErr(cfgKeyMaxMemory, err)
	}

	var dur time.Duration
	if dur, err = dp.GetDuration(cfgKeyDefaultTTL); err != nil {
		return err
	}
	if dur <= 0 {
		return dp.WrapKeyErr(cfgKeyDefaultTTL, fmt.Errorf("must be positive"))
	}
	c.DefaultTTL = config.TimeDuration(dur)

	if dur, err = dp.GetDuration(cfgKeySweepInterval); err != nil {
		return err
	}
	if dur <= 0 {
		return dp.WrapKeyErr(cfgKeySweepInterval, fmt.Errorf("must be positive"))
	}
	c.SweepInterval = config.TimeDuration(dur)

	return nil
}
