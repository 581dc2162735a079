/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestByteSizeUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		yamlVal string
		jsonVal string
		want    ByteSize
	}{
		{name: "plain integer", yamlVal: "1024", jsonVal: "1024", want: 1024},
		{name: "megabytes suffix", yamlVal: "64M", jsonVal: `"64M"`, want: 64 * 1024 * 1024},
		{name: "kilobytes suffix", yamlVal: "10K", jsonVal: `"10K"`, want: 10 * 1024},
		{name: "k8s power-of-two suffix", yamlVal: "1Mi", jsonVal: `"1Mi"`, want: 1024 * 1024},
		{name: "zero", yamlVal: "0", jsonVal: "0", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fromYAML ByteSize
			require.NoError(t, yaml.Unmarshal([]byte(tt.yamlVal), &fromYAML))
			require.Equal(t, tt.want, fromYAML)

			var fromJSON ByteSize
			require.NoError(t, json.Unmarshal([]byte(tt.jsonVal), &fromJSON))
			require.Equal(t, tt.want, fromJSON)
		})
	}
}

func TestByteSizeUnmarshalError(t *testing.T) {
	var bs ByteSize
	require.Error(t, json.Unmarshal([]byte(`"not-a-size"`), &bs))
	require.Error(t, json.Unmarshal([]byte(`-1`), &bs))
}

func TestByteSizeMarshal(t *testing.T) {
	data, err := json.Marshal(ByteSize(64 * 1024 * 1024))
	require.NoError(t, err)
	require.Equal(t, `"64M"`, string(data))
}

func TestTimeDurationUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		yamlVal string
		jsonVal string
		want    TimeDuration
	}{
		{name: "human string", yamlVal: "1h30m", jsonVal: `"1h30m"`, want: TimeDuration(90 * time.Minute)},
		{name: "seconds", yamlVal: "30s", jsonVal: `"30s"`, want: TimeDuration(30 * time.Second)},
		{name: "integer nanoseconds", yamlVal: "1000000000", jsonVal: "1000000000", want: TimeDuration(time.Second)},
		{name: "milliseconds", yamlVal: "250ms", jsonVal: `"250ms"`, want: TimeDuration(250 * time.Millisecond)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fromYAML TimeDuration
			require.NoError(t, yaml.Unmarshal([]byte(tt.yamlVal), &fromYAML))
			require.Equal(t, tt.want, fromYAML)

			var fromJSON TimeDuration
			require.NoError(t, json.Unmarshal([]byte(tt.jsonVal), &fromJSON))
			require.Equal(t, tt.want, fromJSON)
		})
	}
}

func TestTimeDurationUnmarshalError(t *testing.T) {
	var d TimeDuration
	require.Error(t, json.Unmarshal([]byte(`"10 parsecs"`), &d))
	require.Error(t, json.Unmarshal([]byte(`-42`), &d))
}

func TestTimeDurationMarshal(t *testing.T) {
	data, err := json.Marshal(TimeDuration(90 * time.Minute))
	require.NoError(t, err)
	require.Equal(t, `"1h30m0s"`, string(data))
}
