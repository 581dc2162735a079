/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package searchapi

import (
	"github.com/go-chi/chi/v5"

	"github.com/RafiulM/git-search-sub000/githubsearch"
	"github.com/RafiulM/git-search-sub000/httpserver"
	"github.com/RafiulM/git-search-sub000/httpserver/middleware"
	"github.com/RafiulM/git-search-sub000/ratelimit"
	"github.com/RafiulM/git-search-sub000/searchcache"
)

// RoutesOpts represents options for the Routes function.
type RoutesOpts struct {
	// RateLimitDryRun makes the client rate limiter log exhausted allowances
	// without rejecting requests.
	RateLimitDryRun bool
}

// Routes returns the version 1 API route configuration: the repository search
// endpoint behind the per-client rate limiter and the admin endpoints that
// bypass it.
func Routes(
	searcher Searcher,
	cache *searchcache.Cache[*githubsearch.RepositoriesResult],
	limiter *ratelimit.Limiter,
	errDomain string,
) httpserver.APIRoute {
	return RoutesWithOpts(searcher, cache, limiter, errDomain, RoutesOpts{})
}

// RoutesWithOpts is a configurable version of Routes.
func RoutesWithOpts(
	searcher Searcher,
	cache *searchcache.Cache[*githubsearch.RepositoriesResult],
	limiter *ratelimit.Limiter,
	errDomain string,
	opts RoutesOpts,
) httpserver.APIRoute {
	searchHandler := NewSearchHandler(searcher, cache, errDomain)
	cacheAdminHandler := NewCacheAdminHandler(cache)
	rateLimitAdminHandler := NewRateLimitAdminHandler(limiter)

	rateLimitMw := middleware.ClientRateLimitWithOpts(limiter, errDomain, middleware.ClientRateLimitOpts{
		ExcludedPathPatterns: []string{"*/admin/*"},
		DryRun:               opts.RateLimitDryRun,
	})

	return func(router chi.Router) {
		router.Use(rateLimitMw)
		router.Get("/search/repositories", searchHandler.ServeHTTP)
		router.Route("/admin", func(router chi.Router) {
			router.Get("/cache-stats", cacheAdminHandler.HandleStats)
			router.Delete("/cache-stats", cacheAdminHandler.HandleInvalidate)
			router.Get("/rate-limit-stats", rateLimitAdminHandler.HandleStats)
		})
	}
}
