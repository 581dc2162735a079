/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/vasayxtx/go-glob"

	"github.com/RafiulM/git-search-sub000/log"
	"github.com/RafiulM/git-search-sub000/ratelimit"
	"github.com/RafiulM/git-search-sub000/restapi"
)

// ClientRateLimitErrCode is an error code that is used in a response body
// if the request is rejected by the per-client fixed-window rate limiter.
const ClientRateLimitErrCode = "tooManyRequests"

// ClientRateLimitLogFieldKey it is the name of the logged field that contains
// the client identity used by the fixed-window rate limiter.
const ClientRateLimitLogFieldKey = "client_rate_limit_identity"

// identityUserAgentMaxLen bounds the User-Agent part of the derived identity
// to keep key cardinality under control.
const identityUserAgentMaxLen = 50

// Response headers describing the caller's current rate limiting window.
const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
)

// ClientRateLimitGetIdentityFunc is a function that derives the limiter identity from the request.
type ClientRateLimitGetIdentityFunc func(r *http.Request) string

// ClientRateLimitOnRejectFunc is a function that is called for rejecting HTTP request
// when the client's allowance is exhausted.
type ClientRateLimitOnRejectFunc func(
	rw http.ResponseWriter, r *http.Request, identity string, retryAfter time.Duration, logger log.FieldLogger)

// ClientRateLimitOpts represents options for the ClientRateLimit middleware.
type ClientRateLimitOpts struct {
	// GetIdentity derives the limiter identity from the request.
	// IdentityFromRequest is used if nil.
	GetIdentity ClientRateLimitGetIdentityFunc

	// ExcludedPathPatterns is a list of glob patterns for request paths
	// that bypass the limiter (admin and system endpoints).
	ExcludedPathPatterns []string

	// DryRun makes the middleware log exhausted allowances without rejecting requests.
	DryRun bool

	// OnReject is called instead of the default JSON error response when a request is rejected.
	OnReject ClientRateLimitOnRejectFunc
}

type clientRateLimitHandler struct {
	next          http.Handler
	limiter       *ratelimit.Limiter
	errDomain     string
	getIdentity   ClientRateLimitGetIdentityFunc
	excludedPaths []func(s string) bool
	dryRun        bool
	onReject      ClientRateLimitOnRejectFunc
}

// ClientRateLimit is a middleware that limits how fast each client identity may issue requests,
// using the passed fixed-window limiter.
func ClientRateLimit(limiter *ratelimit.Limiter, errDomain string) func(next http.Handler) http.Handler {
	return ClientRateLimitWithOpts(limiter, errDomain, ClientRateLimitOpts{})
}

// ClientRateLimitWithOpts is a configurable version of a middleware that limits
// how fast each client identity may issue requests.
func ClientRateLimitWithOpts(
	limiter *ratelimit.Limiter, errDomain string, opts ClientRateLimitOpts,
) func(next http.Handler) http.Handler {
	getIdentity := opts.GetIdentity
	if getIdentity == nil {
		getIdentity = IdentityFromRequest
	}
	excludedPaths := make([]func(s string) bool, 0, len(opts.ExcludedPathPatterns))
	for _, pattern := range opts.ExcludedPathPatterns {
		excludedPaths = append(excludedPaths, glob.Compile(pattern))
	}
	return func(next http.Handler) http.Handler {
		return &clientRateLimitHandler{
			next:          next,
			limiter:       limiter,
			errDomain:     errDomain,
			getIdentity:   getIdentity,
			excludedPaths: excludedPaths,
			dryRun:        opts.DryRun,
			onReject:      opts.OnReject,
		}
	}
}

func (h *clientRateLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	for i := range h.excludedPaths {
		if h.excludedPaths[i](r.URL.Path) {
			h.next.ServeHTTP(rw, r)
			return
		}
	}

	identity := h.getIdentity(r)
	allowed := h.limiter.Allow(identity)
	resetTime := h.limiter.ResetTime(identity)

	rw.Header().Set(headerRateLimitLimit, strconv.Itoa(h.limiter.MaxRequests()))
	rw.Header().Set(headerRateLimitRemaining, strconv.Itoa(h.limiter.RemainingRequests(identity)))
	rw.Header().Set(headerRateLimitReset, strconv.FormatInt(resetTime.Unix(), 10))

	if allowed {
		h.next.ServeHTTP(rw, r)
		return
	}

	logger := GetLoggerFromContext(r.Context())
	retryAfter := time.Until(resetTime)
	if retryAfter < 0 {
		retryAfter = 0
	}

	if h.dryRun {
		if logger != nil {
			logger.Warn("client exceeded rate limit, serving will be continued because of dry run mode",
				log.String(ClientRateLimitLogFieldKey, identity),
				log.String(userAgentLogFieldKey, r.UserAgent()),
			)
		}
		h.next.ServeHTTP(rw, r)
		return
	}

	if h.onReject != nil {
		h.onReject(rw, r, identity, retryAfter, logger)
		return
	}

	if logger != nil {
		logger = logger.With(
			log.String(ClientRateLimitLogFieldKey, identity),
			log.String(userAgentLogFieldKey, r.UserAgent()),
		)
	}
	rw.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	apiErr := restapi.NewError(h.errDomain, ClientRateLimitErrCode, "Too many requests.")
	restapi.RespondError(rw, http.StatusTooManyRequests, apiErr, logger)
}

// IdentityFromRequest derives the rate limiting identity from the request:
// the originating network address (first X-Forwarded-For hop, X-Real-IP, or
// the peer address) combined with a truncated User-Agent. The truncation keeps
// distinct clients behind one address partially distinguished without letting
// the identity cardinality grow unbounded.
func IdentityFromRequest(r *http.Request) string {
	addr := getOriginAddr(r)
	if addr == "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			addr = host
		} else {
			addr = r.RemoteAddr
		}
	}
	userAgent := r.UserAgent()
	if len(userAgent) > identityUserAgentMaxLen {
		userAgent = userAgent[:identityUserAgentMaxLen]
	}
	return addr + ":" + userAgent
}
