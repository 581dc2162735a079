/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/RafiulM/git-search-sub000/config"
)

func TestConfigWithLoader(t *testing.T) {
	yamlData := []byte(`
retries:
  enabled: true
  maxAttempts: 30
  policy:
    strategy: exponential
    exponentialBackoffInitialInterval: 2s
    exponentialBackoffMultiplier: 3
rateLimits:
  enabled: true
  limit: 300
  burst: 3000
  waitTimeout: 3s
logger:
  enabled: true
  mode: failed
  slowRequestThreshold: 5s
timeout: 30s
`)

	actualConfig := NewConfig()
	err := config.NewDefaultLoader("").LoadFromReader(bytes.NewReader(yamlData), config.DataTypeYAML, actualConfig)
	require.NoError(t, err, "load configuration")

	expectedConfig := NewConfig()
	expectedConfig.Retries = RetriesConfig{
		Enabled:     true,
		MaxAttempts: 30,
		Policy: PolicyConfig{
			Strategy:                          RetryPolicyExponential,
			ExponentialBackoffInitialInterval: 2 * time.Second,
			ExponentialBackoffMultiplier:      3,
		},
	}
	expectedConfig.RateLimits = RateLimitConfig{
		Enabled:     true,
		Limit:       300,
		Burst:       3000,
		WaitTimeout: 3 * time.Second,
	}
	expectedConfig.Log = LoggerConfig{
		Enabled:              true,
		Mode:                 LoggingModeFailed,
		SlowRequestThreshold: 5 * time.Second,
	}
	expectedConfig.Timeout = 30 * time.Second

	require.Equal(t, expectedConfig, actualConfig, "configuration does not match expected")
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		yamlData string
		errMsg   string
	}{
		{
			name: "invalid logger mode",
			yamlData: `
logger:
  enabled: true
  mode: verbose
`,
			errMsg: "client logger invalid mode",
		},
		{
			name: "invalid retry policy strategy",
			yamlData: `
retries:
  enabled: true
  policy:
    strategy: fibonacci
`,
			errMsg: "client retry policy must be one of",
		},
		{
			name: "exponential backoff multiplier too small",
			yamlData: `
retries:
  enabled: true
  policy:
    strategy: exponential
    exponentialBackoffInitialInterval: 1s
    exponentialBackoffMultiplier: 1
`,
			errMsg: "client exponential backoff multiplier must be greater than 1",
		},
		{
			name: "negative rate limit",
			yamlData: `
rateLimits:
  enabled: true
  limit: -1
`,
			errMsg: "client rate limit must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewDefaultLoader("").LoadFromReader(
				bytes.NewReader([]byte(tt.yamlData)), config.DataTypeYAML, cfg)
			require.ErrorContains(t, err, tt.errMsg)
		})
	}
}
