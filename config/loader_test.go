/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testCacheConfig struct {
	MaxEntries int
	MaxMemory  ByteSize
	DefaultTTL time.Duration

	keyPrefix string
}

func (c *testCacheConfig) KeyPrefix() string {
	return c.keyPrefix
}

func (c *testCacheConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("maxEntries", 1000)
	dp.SetDefault("defaultTTL", "5m")
}

func (c *testCacheConfig) Set(dp DataProvider) error {
	var err error
	if c.MaxEntries, err = dp.GetInt("maxEntries"); err != nil {
		return err
	}
	if c.MaxMemory, err = dp.GetByteSize("maxMemory"); err != nil {
		return err
	}
	if c.DefaultTTL, err = dp.GetDuration("defaultTTL"); err != nil {
		return err
	}
	return nil
}

func TestLoaderLoadFromReader(t *testing.T) {
	cfgData := bytes.NewBufferString(`
cache:
  maxEntries: 500
  maxMemory: 64M
`)
	cfg := &testCacheConfig{keyPrefix: "cache"}
	err := NewDefaultLoader("").LoadFromReader(cfgData, DataTypeYAML, cfg)
	require.NoError(t, err)
	require.Equal(t, 500, cfg.MaxEntries)
	require.Equal(t, ByteSize(64*1024*1024), cfg.MaxMemory)
	require.Equal(t, 5*time.Minute, cfg.DefaultTTL, "default must apply when the key is absent")
}

func TestLoaderLoadFromReaderError(t *testing.T) {
	cfgData := bytes.NewBufferString(`
cache:
  maxMemory: sixty-four megs
`)
	cfg := &testCacheConfig{keyPrefix: "cache"}
	err := NewDefaultLoader("").LoadFromReader(cfgData, DataTypeYAML, cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cache.maxMemory")
}

func TestKeyPrefixedDataProvider(t *testing.T) {
	va := NewViperAdapter()
	va.Set("gateway.cache.maxEntries", 42)

	dp := NewKeyPrefixedDataProvider(va, "gateway.cache")
	got, err := dp.GetInt("maxEntries")
	require.NoError(t, err)
	require.Equal(t, 42, got)
	require.True(t, dp.IsSet("maxEntries"))
	require.False(t, dp.IsSet("missing"))
}

func TestViperAdapterGetStringFromSet(t *testing.T) {
	va := NewViperAdapter()
	va.Set("log.level", "INFO")

	got, err := va.GetStringFromSet("log.level", []string{"debug", "info", "warn", "error"}, true)
	require.NoError(t, err)
	require.Equal(t, "INFO", got)

	_, err = va.GetStringFromSet("log.level", []string{"debug", "warn"}, true)
	require.Error(t, err)
	require.Contains(t, err.Error(), "log.level")
}
