/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/RafiulM/git-search-sub000/httpserver/middleware"
	"github.com/RafiulM/git-search-sub000/log/logtest"
	"github.com/RafiulM/git-search-sub000/testutil"
)

func TestNewHTTPClientLoggingRoundTripper(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	logger := logtest.NewRecorder()
	cfg := NewConfig()
	cfg.Log.Enabled = true
	client, err := New(cfg)
	require.NoError(t, err)

	ctx := middleware.NewContextWithLogger(context.Background(), logger)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.URL, nil)
	require.NoError(t, err)

	r, err := client.Do(req)
	defer func() { _ = r.Body.Close() }()
	require.NoError(t, err)
	require.NotEmpty(t, logger.Entries())
}

func TestMustHTTPClientLoggingRoundTripper(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	logger := logtest.NewRecorder()
	cfg := NewConfig()
	cfg.Log.Enabled = true
	client := Must(cfg)
	ctx := middleware.NewContextWithLogger(context.Background(), logger)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.URL, nil)
	require.NoError(t, err)

	r, err := client.Do(req)
	defer func() { _ = r.Body.Close() }()
	require.NoError(t, err)
	require.NotEmpty(t, logger.Entries())
}

func TestNewHTTPClientWithOptsRoundTripper(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	logger := logtest.NewRecorder()
	cfg := NewConfig()
	cfg.Log.Enabled = true
	client, err := NewWithOpts(cfg, Opts{
		UserAgent:   "test-agent",
		RequestType: "test-request",
	})
	require.NoError(t, err)
	ctx := middleware.NewContextWithLogger(context.Background(), logger)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.URL, nil)
	require.NoError(t, err)

	r, err := client.Do(req)
	defer func() { _ = r.Body.Close() }()
	require.NoError(t, err)
	require.NotEmpty(t, logger.Entries())
	require.Contains(
		t, logger.Entries()[0].Text, fmt.Sprintf(
			"client http request POST %s req type test-request status code 418", server.URL,
		),
	)
}

func TestMustHTTPClientWithOptsRoundTripperPolicy(t *testing.T) {
	var requestsCount int
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		requestsCount++
		rw.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := NewConfig()
	cfg.Retries.Enabled = true
	cfg.Retries.MaxAttempts = 1
	cfg.Retries.Policy = PolicyConfig{
		Strategy:                          RetryPolicyExponential,
		ExponentialBackoffInitialInterval: 2 * time.Millisecond,
		ExponentialBackoffMultiplier:      1.1,
	}

	client := MustWithOpts(cfg, Opts{
		UserAgent:   "test-agent",
		RequestType: "test-request",
	})
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, server.URL, nil)
	require.NoError(t, err)

	r, err := client.Do(req)
	defer func() { _ = r.Body.Close() }()
	require.NoError(t, err)
	require.Equal(t, 2, requestsCount)
}

func TestMustHTTPClientWithOptsRoundTripperMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	collector := NewPrometheusMetricsCollector("")
	defer collector.Unregister()

	classifiedSummary := "test-classify-request"
	ClassifyRequest = func(r *http.Request, requestType string) string {
		return classifiedSummary
	}
	defer func() { ClassifyRequest = nil }()

	cfg := NewConfig()
	cfg.Metrics.Enabled = true
	client := MustWithOpts(cfg, Opts{
		UserAgent:   "test-agent",
		RequestType: "test-request",
		Collector:   collector,
	})

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	r, err := client.Do(req)
	defer func() { _ = r.Body.Close() }()
	require.NoError(t, err)

	labels := prometheus.Labels{
		"type":           "test-request",
		"remote_address": strings.ReplaceAll(server.URL, "http://", ""),
		"summary":        classifiedSummary,
		"status":         "200",
	}
	hist := collector.Durations.With(labels).(prometheus.Histogram)
	testutil.AssertSamplesCountInHistogram(t, hist, 1)
}
