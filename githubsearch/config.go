/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package githubsearch

import (
	"fmt"
	"net/url"
	"time"

	"github.com/RafiulM/git-search-sub000/config"
	"github.com/RafiulM/git-search-sub000/httpclient"
)

const cfgDefaultKeyPrefix = "github"

const (
	cfgKeyBaseURL          = "baseUrl"
	cfgKeyToken            = "token" // nolint:gosec // it's a configuration key, not a credential
	cfgKeyUserAgent        = "userAgent"
	cfgKeyDNSServers       = "dnsServers"
	cfgKeyDNSLookupTimeout = "dnsLookupTimeout"
	cfgKeyClient           = "client"
)

// Default values for the GitHub search client configuration parameters.
const (
	DefaultBaseURL          = "https://api.github.com"
	DefaultUserAgent        = "git-search"
	DefaultDNSLookupTimeout = 2 * time.Second
)

// Config represents a set of configuration parameters for the GitHub search client.
type Config struct {
	// BaseURL is the GitHub API base URL.
	BaseURL string `mapstructure:"baseUrl" yaml:"baseUrl" json:"baseUrl"`

	// Token is a bearer token for authenticated requests. Empty means anonymous access
	// (GitHub applies a much stricter search quota in that case).
	Token string `mapstructure:"token" yaml:"token" json:"token"`

	// UserAgent is sent with every upstream request. GitHub rejects requests without one.
	UserAgent string `mapstructure:"userAgent" yaml:"userAgent" json:"userAgent"`

	// DNSServers is an optional list of custom DNS resolver addresses (host:port).
	DNSServers []string `mapstructure:"dnsServers" yaml:"dnsServers" json:"dnsServers"`

	// DNSLookupTimeout limits a single lookup through the custom resolvers.
	DNSLookupTimeout config.TimeDuration `mapstructure:"dnsLookupTimeout" yaml:"dnsLookupTimeout" json:"dnsLookupTimeout"`

	// Client configures the underlying HTTP client (timeouts, retries, rate smoothing, logging).
	Client httpclient.Config `mapstructure:"client" yaml:"client" json:"client"`

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
		keyPrefix:        opts.keyPrefix,
		BaseURL:          DefaultBaseURL,
		UserAgent:        DefaultUserAgent,
		DNSLookupTimeout: config.TimeDuration(DefaultDNSLookupTimeout),
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

// SetProviderDefaults sets default configuration values for the GitHub search client
// in config.DataProvider. Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyBaseURL, DefaultBaseURL)
	dp.SetDefault(cfgKeyUserAgent, DefaultUserAgent)
	dp.SetDefault(cfgKeyDNSLookupTimeout, DefaultDNSLookupTimeout)
	c.Client.SetProviderDefaults(config.NewKeyPrefixedDataProvider(dp, cfgKeyClient))
}

// Set sets GitHub search client configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.BaseURL, err = dp.GetString(cfgKeyBaseURL); err != nil {
		return err
	}
	if _, err = url.Parse(c.BaseURL); err != nil {
		return dp.WrapKeyErr(cfgKeyBaseURL, fmt.Errorf("parse url: %w", err))
	}

	if c.Token, err = dp.GetString(cfgKeyToken); err != nil {
		return err
	}
	if c.UserAgent, err = dp.GetString(cfgKeyUserAgent); err != nil {
		return err
	}
	if c.DNSServers, err = dp.GetStringSlice(cfgKeyDNSServers); err != nil {
		return err
	}

	var dur time.Duration
	if dur, err = dp.GetDuration(cfgKeyDNSLookupTimeout); err != nil {
		return err
	}
	c.DNSLookupTimeout = config.TimeDuration(dur)

	return c.Client.Set(config.NewKeyPrefixedDataProvider(dp, cfgKeyClient))
}
