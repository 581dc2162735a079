/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package searchcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildKey(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		filters map[string]interface{}
		want    string
	}{
		{
			name:  "no filters",
			query: "http server",
			want:  "http server:{}",
		},
		{
			name:    "filters sorted alphabetically",
			query:   "cache",
			filters: map[string]interface{}{"sort": "stars", "language": "go"},
			want:    `cache:{"language":"go","sort":"stars"}`,
		},
		{
			name:    "nil filters dropped",
			query:   "cache",
			filters: map[string]interface{}{"language": "go", "order": nil},
			want:    `cache:{"language":"go"}`,
		},
		{
			name:    "numeric filter values",
			query:   "cache",
			filters: map[string]interface{}{"page": 2, "per_page": 30},
			want:    `cache:{"page":2,"per_page":30}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, BuildKey(tt.query, tt.filters))
		})
	}
}

func TestBuildKeyOrderIndependence(t *testing.T) {
	a := BuildKey("q", map[string]interface{}{"a": 1, "b": 2, "c": 3, "d": 4})
	b := BuildKey("q", map[string]interface{}{"d": 4, "c": 3, "b": 2, "a": 1})
	require.Equal(t, a, b)

	require.NotEqual(t,
		BuildKey("q1", map[string]interface{}{"a": 1}),
		BuildKey("q2", map[string]interface{}{"a": 1}),
		"distinct queries must yield distinct keys")
}
