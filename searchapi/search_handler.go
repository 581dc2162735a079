/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package searchapi provides the HTTP surface of the repository search
// service: the cached, coalesced search endpoint and the admin endpoints
// exposing cache and rate limiter state.
package searchapi

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/RafiulM/git-search-sub000/githubsearch"
	"github.com/RafiulM/git-search-sub000/httpserver/middleware"
	"github.com/RafiulM/git-search-sub000/log"
	"github.com/RafiulM/git-search-sub000/restapi"
	"github.com/RafiulM/git-search-sub000/searchcache"
)

// Error codes that are used in responses of the search endpoint.
const (
	ErrCodeInvalidQuery         = "invalidQuery"
	ErrCodeUpstreamUnavailable  = "upstreamUnavailable"
	ErrCodeUpstreamQuotaExceeds = "upstreamQuotaExceeded"
)

// CacheStatusHeader reports whether the response was served from the cache.
const CacheStatusHeader = "X-Cache"

// Values of the CacheStatusHeader header.
const (
	CacheStatusHit  = "HIT"
	CacheStatusMiss = "MISS"
)

var allowedSortValues = map[string]bool{"stars": true, "forks": true, "updated": true}
var allowedOrderValues = map[string]bool{"asc": true, "desc": true}

// Searcher performs repository searches against the upstream API.
type Searcher interface {
	SearchRepositories(ctx context.Context, query githubsearch.Query) (*githubsearch.RepositoriesResult, error)
}

// SearchHandler serves the repository search endpoint. Results are cached and
// concurrent identical requests are coalesced into a single upstream fetch.
type SearchHandler struct {
	searcher  Searcher
	cache     *searchcache.Cache[*githubsearch.RepositoriesResult]
	group     searchcache.Group[string, *githubsearch.RepositoriesResult]
	errDomain string
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(
	searcher Searcher, cache *searchcache.Cache[*githubsearch.RepositoriesResult], errDomain string,
) *SearchHandler {
	return &SearchHandler{searcher: searcher, cache: cache, errDomain: errDomain}
}

// ServeHTTP implements the http.Handler interface.
func (h *SearchHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	query, err := parseSearchQuery(r)
	if err != nil {
		apiErr := restapi.NewError(h.errDomain, ErrCodeInvalidQuery, err.Error())
		restapi.RespondError(rw, http.StatusBadRequest, apiErr, logger)
		return
	}

	cacheKey := searchcache.BuildKey(query.Q, searchFilters(query))

	if result, ok := h.cache.Get(cacheKey); ok {
		rw.Header().Set(CacheStatusHeader, CacheStatusHit)
		restapi.RespondJSON(rw, result, logger)
		return
	}

	result, err := h.group.Do(cacheKey, func() (*githubsearch.RepositoriesResult, error) {
		fetched, fetchErr := h.searcher.SearchRepositories(r.Context(), query)
		if fetchErr != nil {
			return nil, fetchErr
		}
		h.cache.Set(cacheKey, fetched)
		return fetched, nil
	})
	if err != nil {
		h.respondUpstreamError(rw, err, logger)
		return
	}

	rw.Header().Set(CacheStatusHeader, CacheStatusMiss)
	restapi.RespondJSON(rw, result, logger)
}

func (h *SearchHandler) respondUpstreamError(rw http.ResponseWriter, err error, logger log.FieldLogger) {
	if logger != nil {
		logger.Error("upstream repository search failed", log.Error(err))
	}

	var quotaErr *githubsearch.QuotaError
	if errors.As(err, &quotaErr) {
		if quotaErr.RetryAfter > 0 {
			rw.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(quotaErr.RetryAfter.Seconds()))))
		}
		apiErr := restapi.NewError(h.errDomain, ErrCodeUpstreamQuotaExceeds, "Upstream search quota exceeded.")
		restapi.RespondError(rw, http.StatusServiceUnavailable, apiErr, logger)
		return
	}

	apiErr := restapi.NewError(h.errDomain, ErrCodeUpstreamUnavailable, "Upstream search service is unavailable.")
	restapi.RespondError(rw, http.StatusBadGateway, apiErr, logger)
}

func parseSearchQuery(r *http.Request) (githubsearch.Query, error) {
	params := r.URL.Query()

	query := githubsearch.Query{
		Q:        params.Get("q"),
		Language: params.Get("language"),
		Sort:     params.Get("sort"),
		Order:    params.Get("order"),
	}
	if query.Terms() == "" {
		return githubsearch.Query{}, errors.New("query parameter \"q\" is missing or blank")
	}
	if query.Sort != "" && !allowedSortValues[query.Sort] {
		return githubsearch.Query{}, errors.New("query parameter \"sort\" must be one of: stars, forks, updated")
	}
	if query.Order != "" && !allowedOrderValues[query.Order] {
		return githubsearch.Query{}, errors.New("query parameter \"order\" must be one of: asc, desc")
	}

	var err error
	if query.Page, err = parsePositiveIntParam(params.Get("page"), "page"); err != nil {
		return githubsearch.Query{}, err
	}
	if query.PerPage, err = parsePositiveIntParam(params.Get("per_page"), "per_page"); err != nil {
		return githubsearch.Query{}, err
	}
	return query, nil
}

func parsePositiveIntParam(value, name string) (int, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, errors.New("query parameter \"" + name + "\" must be a positive integer")
	}
	return n, nil
}

// searchFilters collects the optional search params into the cache key filters.
// Unset params are dropped so the same effective query maps to the same key.
func searchFilters(query githubsearch.Query) map[string]interface{} {
	filters := make(map[string]interface{})
	if query.Language != "" {
		filters["language"] = query.Language
	}
	if query.Sort != "" {
		filters["sort"] = query.Sort
	}
	if query.Order != "" {
		filters["order"] = query.Order
	}
	if query.Page > 0 {
		filters["page"] = query.Page
	}
	if query.PerPage > 0 {
		filters["per_page"] = query.PerPage
	}
	if len(filters) == 0 {
		return nil
	}
	return filters
}
