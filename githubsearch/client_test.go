/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package githubsearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, serverURL, token string) *Client {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.BaseURL = serverURL
	cfg.Token = token
	cfg.UserAgent = "test-agent"
	client, err := New(cfg, nil)
	require.NoError(t, err)
	return client
}

func TestClientSearchRepositories(t *testing.T) {
	var gotReq *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(r.Context())
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{
			"total_count": 2,
			"incomplete_results": false,
			"items": [
				{
					"id": 1,
					"name": "gin",
					"full_name": "gin-gonic/gin",
					"owner": {"login": "gin-gonic", "id": 7894478, "type": "Organization"},
					"html_url": "https://github.com/gin-gonic/gin",
					"language": "Go",
					"stargazers_count": 75000,
					"license": {"key": "mit", "name": "MIT License", "spdx_id": "MIT"}
				},
				{
					"id": 2,
					"name": "echo",
					"full_name": "labstack/echo",
					"owner": {"login": "labstack", "id": 2624634, "type": "Organization"},
					"language": "Go",
					"stargazers_count": 29000
				}
			]
		}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "test-token")
	result, err := client.SearchRepositories(context.Background(), Query{
		Q:        "web framework",
		Language: "go",
		Sort:     "stars",
		Order:    "desc",
		Page:     2,
		PerPage:  50,
	})
	require.NoError(t, err)

	require.Equal(t, searchRepositoriesPath, gotReq.URL.Path)
	query := gotReq.URL.Query()
	require.Equal(t, "web framework language:go", query.Get("q"))
	require.Equal(t, "stars", query.Get("sort"))
	require.Equal(t, "desc", query.Get("order"))
	require.Equal(t, "2", query.Get("page"))
	require.Equal(t, "50", query.Get("per_page"))
	require.Equal(t, "Bearer test-token", gotReq.Header.Get("Authorization"))
	require.Equal(t, acceptHeaderValue, gotReq.Header.Get("Accept"))
	require.Equal(t, apiVersionValue, gotReq.Header.Get(apiVersionHeader))
	require.Equal(t, "test-agent", gotReq.Header.Get("User-Agent"))

	require.Equal(t, 2, result.TotalCount)
	require.Len(t, result.Items, 2)
	require.Equal(t, "gin-gonic/gin", result.Items[0].FullName)
	require.Equal(t, "gin-gonic", result.Items[0].Owner.Login)
	require.Equal(t, 75000, result.Items[0].StargazersCount)
	require.NotNil(t, result.Items[0].License)
	require.Equal(t, "mit", result.Items[0].License.Key)
	require.Nil(t, result.Items[1].License)
}

func TestClientSearchRepositoriesAnonymous(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{"total_count": 0, "incomplete_results": false, "items": []}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "")
	result, err := client.SearchRepositories(context.Background(), Query{Q: "anything"})
	require.NoError(t, err)
	require.Equal(t, 0, result.TotalCount)
	require.Empty(t, result.Items)
}

func TestClientSearchRepositoriesPerPageCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		require.Equal(t, "100", r.URL.Query().Get("per_page"))
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{"total_count": 0, "incomplete_results": false, "items": []}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "")
	_, err := client.SearchRepositories(context.Background(), Query{Q: "anything", PerPage: 500})
	require.NoError(t, err)
}

func TestClientSearchRepositoriesEmptyQuery(t *testing.T) {
	client := newTestClient(t, "http://example.com", "")
	_, err := client.SearchRepositories(context.Background(), Query{Q: "   "})
	require.Error(t, err)
}

func TestClientSearchRepositoriesQuotaExceeded(t *testing.T) {
	t.Run("primary quota via 403", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rw.Header().Set("X-RateLimit-Remaining", "0")
			rw.Header().Set("Retry-After", "30")
			rw.WriteHeader(http.StatusForbidden)
			_, _ = rw.Write([]byte(`{"message": "API rate limit exceeded"}`))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL, "")
		_, err := client.SearchRepositories(context.Background(), Query{Q: "anything"})

		var quotaErr *QuotaError
		require.ErrorAs(t, err, &quotaErr)
		require.Equal(t, http.StatusForbidden, quotaErr.StatusCode)
		require.Equal(t, 30*time.Second, quotaErr.RetryAfter)
	})

	t.Run("secondary quota via 429", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(http.StatusTooManyRequests)
			_, _ = rw.Write([]byte(`{"message": "You have exceeded a secondary rate limit"}`))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL, "")
		_, err := client.SearchRepositories(context.Background(), Query{Q: "anything"})

		var quotaErr *QuotaError
		require.ErrorAs(t, err, &quotaErr)
		require.Equal(t, http.StatusTooManyRequests, quotaErr.StatusCode)
		require.Equal(t, time.Duration(0), quotaErr.RetryAfter)
	})

	t.Run("plain 403 is not a quota error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(http.StatusForbidden)
			_, _ = rw.Write([]byte(`{"message": "Resource protected by organization SAML enforcement"}`))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL, "")
		_, err := client.SearchRepositories(context.Background(), Query{Q: "anything"})

		var statusErr *UnexpectedStatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	})
}

func TestClientSearchRepositoriesUnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = rw.Write([]byte(`{"message": "Validation Failed"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "")
	_, err := client.SearchRepositories(context.Background(), Query{Q: "anything"})

	var statusErr *UnexpectedStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnprocessableEntity, statusErr.StatusCode)
	require.Equal(t, "Validation Failed", statusErr.Message)
}
