/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package githubsearch provides a client for the GitHub repository search API.
// The client is built on the shared HTTP client transport chain (logging,
// metrics, request rate smoothing, retries) and reports quota exhaustion as a
// distinct error type so callers can propagate backoff hints.
package githubsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/RafiulM/git-search-sub000/httpclient"
	"github.com/RafiulM/git-search-sub000/log"
	"github.com/RafiulM/git-search-sub000/netutil"
	"github.com/RafiulM/git-search-sub000/restapi"
)

const (
	searchRepositoriesPath = "/search/repositories"

	acceptHeaderValue = "application/vnd.github+json"
	apiVersionHeader  = "X-GitHub-Api-Version"
	apiVersionValue   = "2022-11-28"

	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
	headerRetryAfter         = "Retry-After"
)

// MaxPerPage is the maximum page size the GitHub search API accepts.
const MaxPerPage = 100

// Query describes a repository search request.
type Query struct {
	// Q is the search text. Required.
	Q string

	// Language restricts results to repositories written in the given language.
	Language string

	// Sort orders results by "stars", "forks", "help-wanted-issues" or "updated".
	// Empty means best match.
	Sort string

	// Order is "asc" or "desc". Only applied when Sort is set.
	Order string

	// Page is a 1-based page number. Zero means the first page.
	Page int

	// PerPage is the page size, capped at MaxPerPage. Zero means the API default.
	PerPage int
}

// Terms returns the effective search expression including qualifiers.
func (q Query) Terms() string {
	terms := strings.TrimSpace(q.Q)
	if q.Language != "" {
		terms += " language:" + q.Language
	}
	return terms
}

// RepositoryOwner is the owning user or organization of a repository.
type RepositoryOwner struct {
	Login     string `json:"login"`
	ID        int64  `json:"id"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
	Type      string `json:"type"`
}

// RepositoryLicense is a license attached to a repository.
type RepositoryLicense struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	SPDXID string `json:"spdx_id"`
}

// Repository is a single repository search result.
type Repository struct {
	ID              int64              `json:"id"`
	Name            string             `json:"name"`
	FullName        string             `json:"full_name"`
	Owner           RepositoryOwner    `json:"owner"`
	Private         bool               `json:"private"`
	HTMLURL         string             `json:"html_url"`
	Description     string             `json:"description"`
	Fork            bool               `json:"fork"`
	Language        string             `json:"language"`
	ForksCount      int                `json:"forks_count"`
	StargazersCount int                `json:"stargazers_count"`
	WatchersCount   int                `json:"watchers_count"`
	OpenIssuesCount int                `json:"open_issues_count"`
	DefaultBranch   string             `json:"default_branch"`
	Topics          []string           `json:"topics"`
	Archived        bool               `json:"archived"`
	License         *RepositoryLicense `json:"license"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	PushedAt        time.Time          `json:"pushed_at"`
}

// RepositoriesResult is a page of repository search results.
type RepositoriesResult struct {
	TotalCount        int          `json:"total_count"`
	IncompleteResults bool         `json:"incomplete_results"`
	Items             []Repository `json:"items"`
}

// QuotaError is returned when GitHub rejects a search request because
// the API quota is exhausted. RetryAfter carries the upstream backoff hint
// (zero if the response didn't provide one).
type QuotaError struct {
	StatusCode int
	RetryAfter time.Duration
}

// Error returns a human-readable representation of the error.
func (e *QuotaError) Error() string {
	return fmt.Sprintf("github search quota exceeded (status %d, retry after %s)", e.StatusCode, e.RetryAfter)
}

// UnexpectedStatusError is returned when GitHub responds with a status code
// the client doesn't know how to interpret.
type UnexpectedStatusError struct {
	StatusCode int
	Message    string
}

// Error returns a human-readable representation of the error.
func (e *UnexpectedStatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("github search: unexpected status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("github search: unexpected status %d", e.StatusCode)
}

// Opts represents options for creating a new GitHub search client.
type Opts struct {
	// Transport is the transport the HTTP client chain is built upon.
	// http.DefaultTransport clone is used if nil.
	Transport http.RoundTripper

	// MetricsCollector collects metrics of outgoing requests.
	MetricsCollector httpclient.MetricsCollector
}

// Client performs repository searches against the GitHub API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     log.FieldLogger
}

// New creates a new GitHub search client.
func New(cfg *Config, logger log.FieldLogger) (*Client, error) {
	return NewWithOpts(cfg, logger, Opts{})
}

// NewWithOpts creates a new GitHub search client with the passed options.
func NewWithOpts(cfg *Config, logger log.FieldLogger, opts Opts) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is missing")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if logger == nil {
		logger = log.NewDisabledLogger()
	}

	transport := opts.Transport
	if transport == nil {
		httpTransport := http.DefaultTransport.(*http.Transport).Clone()
		if len(cfg.DNSServers) != 0 {
			resolver := netutil.NewCustomDNSResolver(cfg.DNSServers, time.Duration(cfg.DNSLookupTimeout))
			dialer := &net.Dialer{Resolver: &resolver}
			httpTransport.DialContext = dialer.DialContext
		}
		transport = httpTransport
	}
	if cfg.Token != "" {
		transport = httpclient.NewAuthBearerRoundTripper(transport, staticTokenProvider(cfg.Token))
	}

	clientCfg := cfg.Client
	httpClient, err := httpclient.NewWithOpts(&clientCfg, httpclient.Opts{
		UserAgent:   cfg.UserAgent,
		RequestType: "github_search",
		Delegate:    transport,
		Collector:   opts.MetricsCollector,
	})
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		logger:     logger,
	}, nil
}

// SearchRepositories performs a single repository search request.
// Quota exhaustion is reported as *QuotaError, any other non-200 response
// as *UnexpectedStatusError.
func (c *Client) SearchRepositories(ctx context.Context, query Query) (*RepositoriesResult, error) {
	terms := query.Terms()
	if terms == "" {
		return nil, fmt.Errorf("search terms are missing")
	}

	params := url.Values{}
	params.Set("q", terms)
	if query.Sort != "" {
		params.Set("sort", query.Sort)
		if query.Order != "" {
			params.Set("order", query.Order)
		}
	}
	if query.Page > 0 {
		params.Set("page", strconv.Itoa(query.Page))
	}
	if query.PerPage > 0 {
		perPage := query.PerPage
		if perPage > MaxPerPage {
			perPage = MaxPerPage
		}
		params.Set("per_page", strconv.Itoa(perPage))
	}

	reqURL := c.baseURL + searchRepositoriesPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", acceptHeaderValue)
	req.Header.Set(apiVersionHeader, apiVersionValue)

	resp, err := restapi.DoRequest(c.httpClient, req, c.logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Error("failed to close github search response body", log.Error(closeErr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, c.makeStatusError(resp)
	}

	var result RepositoriesResult
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

func (c *Client) makeStatusError(resp *http.Response) error {
	if isQuotaExceededResponse(resp) {
		return &QuotaError{StatusCode: resp.StatusCode, RetryAfter: retryAfterFromResponse(resp)}
	}

	var apiErr struct {
		Message string `json:"message"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(body, &apiErr)
	return &UnexpectedStatusError{StatusCode: resp.StatusCode, Message: apiErr.Message}
}

// isQuotaExceededResponse reports whether the response signals primary or
// secondary rate limiting. GitHub uses 403 with a zeroed X-RateLimit-Remaining
// for the primary quota and 429 for secondary limits.
func isQuotaExceededResponse(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if resp.StatusCode != http.StatusForbidden {
		return false
	}
	return resp.Header.Get(headerRateLimitRemaining) == "0" || resp.Header.Get(headerRetryAfter) != ""
}

func retryAfterFromResponse(resp *http.Response) time.Duration {
	if v := resp.Header.Get(headerRetryAfter); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if v := resp.Header.Get(headerRateLimitReset); v != "" {
		if resetAt, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Until(time.Unix(resetAt, 0)); d > 0 {
				return d
			}
		}
	}
	return 0
}

// staticTokenProvider supplies a fixed bearer token for all requests.
type staticTokenProvider string

// GetToken implements the httpclient.AuthProvider interface.
func (p staticTokenProvider) GetToken(_ context.Context, _ ...string) (string, error) {
	return string(p), nil
}
