/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"

	"github.com/RafiulM/git-search-sub000/httpserver/middleware"
)

// RequestIDRoundTripper for X-Request-ID header to the request.
type RequestIDRoundTripper struct {
	Delegate http.RoundTripper
	Opts     RequestIDRoundTripperOpts
}

// RequestIDRoundTripperOpts represents an options for RequestIDRoundTripper.
type RequestIDRoundTripperOpts struct {
	// RequestIDProvider is a function that provides a request id for the outgoing request.
	// middleware.GetRequestIDFromContext is used by default.
	RequestIDProvider func(ctx context.Context) string
}

// NewRequestIDRoundTripper creates an HTTP transport with X-Request-ID header support.
func NewRequestIDRoundTripper(delegate http.RoundTripper) http.RoundTripper {
	return NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{})
}

// NewRequestIDRoundTripperWithOpts creates an HTTP transport with X-Request-ID header support with options.
func NewRequestIDRoundTripperWithOpts(delegate http.RoundTripper, opts RequestIDRoundTripperOpts) http.RoundTripper {
	return &RequestIDRoundTripper{
		Delegate: delegate,
		Opts:     opts,
	}
}

// RoundTrip adds X-Request-ID header to the request.
func (rt *RequestIDRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	requestID := rt.getRequestID(r.Context())
	if r.Header.Get("X-Request-ID") != "" || requestID == "" {
		return rt.Delegate.RoundTrip(r)
	}

	r = CloneHTTPRequest(r)
	r.Header.Set("X-Request-ID", requestID)
	return rt.Delegate.RoundTrip(r)
}

func (rt *RequestIDRoundTripper) getRequestID(ctx context.Context) string {
	if rt.Opts.RequestIDProvider != nil {
		return rt.Opts.RequestIDProvider(ctx)
	}
	return middleware.GetRequestIDFromContext(ctx)
}
