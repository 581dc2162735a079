/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver_test

import (
	"fmt"
	golog "log"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/RafiulM/git-search-sub000/config"
	"github.com/RafiulM/git-search-sub000/httpserver"
	"github.com/RafiulM/git-search-sub000/httpserver/middleware"
	"github.com/RafiulM/git-search-sub000/log"
	"github.com/RafiulM/git-search-sub000/profserver"
	"github.com/RafiulM/git-search-sub000/restapi"
	"github.com/RafiulM/git-search-sub000/service"
)

/*
Add "// Output:" in the end of Example() function and run:

	$ go test ./httpserver -v -run Example

Application and pprof servers will be ready to handle HTTP requests:

	$ curl localhost:8888/healthz
	{"components":{"api":true}}

	$ curl localhost:8888/metrics
	# Metrics in Prometheus format

	$ curl 'localhost:8888/api/git-search/v1/search/repositories?q=web+framework'
	{"query":"web framework","results":[]}
*/

func Example() {
	if err := runApp(); err != nil {
		golog.Fatal(err)
	}
}

func runApp() error {
	cfg, err := loadAppConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, loggerClose := log.NewLogger(cfg.Log)
	defer loggerClose()

	var serviceUnits []service.Unit

	// Create HTTP server that provides /healthz, /metrics, and /api/{service-name}/v{number}/* endpoints.
	httpServer, err := makeHTTPServer(cfg.Server, logger)
	if err != nil {
		return err
	}
	serviceUnits = append(serviceUnits, httpServer)

	if cfg.ProfServer.Enabled {
		// Create HTTP server for profiling (pprof is used under the hood).
		serviceUnits = append(serviceUnits, profserver.New(cfg.ProfServer, logger))
	}

	return service.New(logger, service.NewCompositeUnit(serviceUnits...)).Start()
}

func makeHTTPServer(cfg *httpserver.Config, logger log.FieldLogger) (*httpserver.HTTPServer, error) {
	const errorDomain = "GitSearchService" // Error domain is useful for distinguishing errors from different services (e.g. proxies).

	apiRoutes := map[httpserver.APIVersion]httpserver.APIRoute{
		1: func(router chi.Router) {
			router.Get("/search/repositories", searchRepositoriesHandler(errorDomain))
		},
	}

	opts := httpserver.Opts{
		ServiceNameInURL: "git-search",
		ErrorDomain:      errorDomain,
		APIRoutes:        apiRoutes,
		HealthCheck: func() (httpserver.HealthCheckResult, error) {
			// 503 status code will be returned if any of the components is unhealthy.
			return map[httpserver.HealthCheckComponentName]httpserver.HealthCheckStatus{
				"api": httpserver.HealthCheckStatusOK,
			}, nil
		},
	}

	httpServer, err := httpserver.New(cfg, logger, opts)
	if err != nil {
		return nil, err
	}

	// Custom routes can be added using chi.Router directly.
	httpServer.HTTPRouter.Get("/custom-route", customRouteHandler)

	return httpServer, nil
}

func loadAppConfig() (*AppConfig, error) {
	// Environment variables may be used to configure the server as well.
	// Variable name is built from the service name and path to the configuration parameter separated by underscores.
	_ = os.Setenv("GITSEARCH_SERVER_TIMEOUTS_SHUTDOWN", "10s")
	_ = os.Setenv("GITSEARCH_LOG_LEVEL", "info")

	// Configuration may be read from a file or io.Reader. YAML and JSON formats are supported.
	cfgReader := strings.NewReader(`
server:
  address: ":8888"
  timeouts:
    write: 1m
    read: 15s
    readHeader: 10s
    idle: 1m
    shutdown: 5s
  limits:
    maxBodySize: 1M
  log:
    requestStart: true
profServer:
  enabled: true
  address: ":8889"
log:
  level: warn
  format: json
  output: stdout
`)

	cfgLoader := config.NewDefaultLoader("gitsearch")
	cfg := NewAppConfig()
	err := cfgLoader.LoadFromReader(cfgReader, config.DataTypeYAML, cfg)
	return cfg, err
}

func searchRepositoriesHandler(errorDomain string) func(rw http.ResponseWriter, r *http.Request) {
	return func(rw http.ResponseWriter, r *http.Request) {
		logger := middleware.GetLoggerFromContext(r.Context())
		query := r.URL.Query().Get("q")
		if strings.TrimSpace(query) == "" {
			apiErr := restapi.NewError(errorDomain, "invalidQuery", "Query parameter \"q\" is missing or blank")
			restapi.RespondError(rw, http.StatusBadRequest, apiErr, logger)
			return
		}
		restapi.RespondJSON(rw, map[string]interface{}{"query": query, "results": []string{}}, logger)
	}
}

func customRouteHandler(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	if _, err := rw.Write([]byte("Content from the custom route")); err != nil {
		logger.Error("error while writing response body", log.Error(err))
	}
}

type AppConfig struct {
	Server     *httpserver.Config
	ProfServer *profserver.Config
	Log        *log.Config
}

func NewAppConfig() *AppConfig {
	return &AppConfig{
		Server:     httpserver.NewConfig(),
		ProfServer: profserver.NewConfig(),
		Log:        log.NewConfig(),
	}
}

func (c *AppConfig) SetProviderDefaults(dp config.DataProvider) {
	config.CallSetProviderDefaultsForFields(c, dp)
}

func (c *AppConfig) Set(dp config.DataProvider) error {
	return config.CallSetForFields(c, dp)
}
