/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package searchapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/RafiulM/git-search-sub000/config"
	"github.com/RafiulM/git-search-sub000/ratelimit"
	"github.com/RafiulM/git-search-sub000/searchcache"
)

func TestCacheAdminHandlerStats(t *testing.T) {
	cache := newTestCache(t)
	handler := NewCacheAdminHandler(cache)

	cache.Set("k1", searchResult(1))
	cache.Set("k2", searchResult(2))
	_, ok := cache.Get("k1")
	require.True(t, ok)
	_, ok = cache.Get("missing")
	require.False(t, ok)

	t.Run("summary", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/cache-stats", nil)
		resp := httptest.NewRecorder()
		handler.HandleStats(resp, req)
		require.Equal(t, http.StatusOK, resp.Code)

		var stats searchcache.Stats
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &stats))
		require.Equal(t, 2, stats.Entries)
		require.Equal(t, int64(1), stats.Hits)
		require.Equal(t, int64(1), stats.Misses)
	})

	t.Run("detailed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/cache-stats?detailed=true", nil)
		resp := httptest.NewRecorder()
		handler.HandleStats(resp, req)
		require.Equal(t, http.StatusOK, resp.Code)

		var stats searchcache.DetailedStats
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &stats))
		require.Equal(t, 2, stats.Entries)
		require.Len(t, stats.EntriesDetails, 2)
	})
}

func TestCacheAdminHandlerInvalidate(t *testing.T) {
	t.Run("single key", func(t *testing.T) {
		cache := newTestCache(t)
		handler := NewCacheAdminHandler(cache)
		cache.Set("k1", searchResult(1))

		req := httptest.NewRequest(http.MethodDelete, "/admin/cache-stats?key=k1", nil)
		resp := httptest.NewRecorder()
		handler.HandleInvalidate(resp, req)
		require.Equal(t, http.StatusOK, resp.Code)

		var respData CacheKeyDeletedResponse
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &respData))
		require.True(t, respData.Deleted)
		require.Equal(t, "k1", respData.Key)
		require.Equal(t, 0, cache.Size())
	})

	t.Run("missing key is not an error", func(t *testing.T) {
		handler := NewCacheAdminHandler(newTestCache(t))

		req := httptest.NewRequest(http.MethodDelete, "/admin/cache-stats?key=missing", nil)
		resp := httptest.NewRecorder()
		handler.HandleInvalidate(resp, req)
		require.Equal(t, http.StatusOK, resp.Code)

		var respData CacheKeyDeletedResponse
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &respData))
		require.False(t, respData.Deleted)
	})

	t.Run("full clear", func(t *testing.T) {
		cache := newTestCache(t)
		handler := NewCacheAdminHandler(cache)
		cache.Set("k1", searchResult(1))
		cache.Set("k2", searchResult(2))

		req := httptest.NewRequest(http.MethodDelete, "/admin/cache-stats", nil)
		resp := httptest.NewRecorder()
		handler.HandleInvalidate(resp, req)
		require.Equal(t, http.StatusOK, resp.Code)

		var respData CacheClearedResponse
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &respData))
		require.True(t, respData.Cleared)
		require.Equal(t, 2, respData.EntriesRemoved)
		require.Equal(t, 0, cache.Size())
	})
}

func TestRateLimitAdminHandlerStats(t *testing.T) {
	limiter, err := ratelimit.New(
		&ratelimit.Config{MaxRequests: 2, WindowSize: config.TimeDuration(time.Minute)}, nil)
	require.NoError(t, err)
	handler := NewRateLimitAdminHandler(limiter)

	require.True(t, limiter.Allow("a"))
	require.True(t, limiter.Allow("a"))
	require.False(t, limiter.Allow("a"))

	req := httptest.NewRequest(http.MethodGet, "/admin/rate-limit-stats", nil)
	resp := httptest.NewRecorder()
	handler.HandleStats(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var stats ratelimit.Stats
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &stats))
	require.Equal(t, 1, stats.ActiveClients)
	require.Equal(t, int64(3), stats.TotalRequests)
	require.Equal(t, int64(1), stats.TotalBlocked)
}
