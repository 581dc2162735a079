/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package searchapi

import (
	"net/http"

	"github.com/RafiulM/git-search-sub000/githubsearch"
	"github.com/RafiulM/git-search-sub000/httpserver/middleware"
	"github.com/RafiulM/git-search-sub000/ratelimit"
	"github.com/RafiulM/git-search-sub000/restapi"
	"github.com/RafiulM/git-search-sub000/searchcache"
)

// CacheAdminHandler serves the cache introspection and invalidation endpoints.
type CacheAdminHandler struct {
	cache *searchcache.Cache[*githubsearch.RepositoriesResult]
}

// NewCacheAdminHandler creates a new CacheAdminHandler.
func NewCacheAdminHandler(cache *searchcache.Cache[*githubsearch.RepositoriesResult]) *CacheAdminHandler {
	return &CacheAdminHandler{cache: cache}
}

// HandleStats responds with cache statistics.
// Per-entry rows are included when the "detailed" query parameter is true.
func (h *CacheAdminHandler) HandleStats(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	if r.URL.Query().Get("detailed") == "true" {
		restapi.RespondJSON(rw, h.cache.DetailedStats(), logger)
		return
	}
	restapi.RespondJSON(rw, h.cache.Stats(), logger)
}

// CacheClearedResponse is a response body for a full cache invalidation.
type CacheClearedResponse struct {
	Cleared        bool `json:"cleared"`
	EntriesRemoved int  `json:"entriesRemoved"`
}

// CacheKeyDeletedResponse is a response body for a single-key invalidation.
type CacheKeyDeletedResponse struct {
	Deleted bool   `json:"deleted"`
	Key     string `json:"key"`
}

// HandleInvalidate clears the whole cache, or deletes a single entry when
// the "key" query parameter is present. Deleting a missing key is not an error.
func (h *CacheAdminHandler) HandleInvalidate(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	if key := r.URL.Query().Get("key"); key != "" {
		restapi.RespondJSON(rw, CacheKeyDeletedResponse{Deleted: h.cache.Delete(key), Key: key}, logger)
		return
	}

	removed := h.cache.Size()
	h.cache.Clear()
	restapi.RespondJSON(rw, CacheClearedResponse{Cleared: true, EntriesRemoved: removed}, logger)
}

// RateLimitAdminHandler serves the rate limiter introspection endpoint.
type RateLimitAdminHandler struct {
	limiter *ratelimit.Limiter
}

// NewRateLimitAdminHandler creates a new RateLimitAdminHandler.
func NewRateLimitAdminHandler(limiter *ratelimit.Limiter) *RateLimitAdminHandler {
	return &RateLimitAdminHandler{limiter: limiter}
}

// HandleStats responds with aggregate rate limiter statistics.
func (h *RateLimitAdminHandler) HandleStats(rw http.ResponseWriter, r *http.Request) {
	restapi.RespondJSON(rw, h.limiter.Stats(), middleware.GetLoggerFromContext(r.Context()))
}
