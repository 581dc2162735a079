/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Command git-search runs the GitHub repository search service: a caching,
// rate limited HTTP facade over the GitHub search API.
//
// Usage:
//
//	git-search serve --config config.yaml
//	git-search version
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/RafiulM/git-search-sub000/config"
	"github.com/RafiulM/git-search-sub000/githubsearch"
	"github.com/RafiulM/git-search-sub000/httpclient"
	"github.com/RafiulM/git-search-sub000/httpserver"
	"github.com/RafiulM/git-search-sub000/internal/libinfo"
	"github.com/RafiulM/git-search-sub000/log"
	"github.com/RafiulM/git-search-sub000/profserver"
	"github.com/RafiulM/git-search-sub000/ratelimit"
	"github.com/RafiulM/git-search-sub000/searchapi"
	"github.com/RafiulM/git-search-sub000/searchcache"
	"github.com/RafiulM/git-search-sub000/service"
)

const (
	envVarsPrefix      = "GITSEARCH"
	serviceNameInURL   = "git-search"
	serviceErrorDomain = "GitSearchService"
	metricsNamespace   = "git_search"
)

// AppConfig aggregates the configuration of all service components.
type AppConfig struct {
	Server    *httpserver.Config
	Log       *log.Config
	Cache     *searchcache.Config
	RateLimit *ratelimit.Config
	GitHub    *githubsearch.Config
	Prof      *profserver.Config
}

func newAppConfig() *AppConfig {
	return &AppConfig{
		Server:    httpserver.NewConfig(),
		Log:       log.NewConfig(),
		Cache:     searchcache.NewConfig(),
		RateLimit: ratelimit.NewConfig(),
		GitHub:    githubsearch.NewConfig(),
		Prof:      profserver.NewConfig(),
	}
}

func (c *AppConfig) all() []config.Config {
	return []config.Config{c.Server, c.Log, c.Cache, c.RateLimit, c.GitHub, c.Prof}
}

// CLI defines the command-line interface.
type CLI struct {
	Serve   ServeCmd   `cmd:"" default:"withargs" help:"Start the repository search service."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// Run implements the version command.
func (c *VersionCmd) Run() error {
	fmt.Printf("git-search %s\n", libinfo.GetAppVersion())
	return nil
}

// ServeCmd starts the service.
type ServeCmd struct {
	Config          string `short:"c" help:"Path to the YAML configuration file." type:"path"`
	EnvFile         string `help:"Path to a dotenv file loaded before the configuration." type:"path"`
	RateLimitDryRun bool   `help:"Log exceeded client allowances without rejecting requests."`
}

// Run implements the serve command.
func (c *ServeCmd) Run() error {
	if err := loadDotEnv(c.EnvFile); err != nil {
		return err
	}

	cfg := newAppConfig()
	if err := loadConfig(cfg, c.Config); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLogger := log.NewLogger(cfg.Log)
	defer closeLogger()

	compositeUnit, stopMetrics, err := buildServiceUnit(cfg, logger, c.RateLimitDryRun)
	if err != nil {
		return err
	}
	defer stopMetrics()

	return service.New(logger, compositeUnit).Start()
}

func loadDotEnv(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %q: %w", path, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func loadConfig(cfg *AppConfig, path string) error {
	loader := config.NewDefaultLoader(envVarsPrefix)
	cfgs := cfg.all()
	if path != "" {
		return loader.LoadFromFile(path, config.DataTypeYAML, cfgs[0], cfgs[1:]...)
	}
	// No file given: defaults plus environment variables.
	return loader.LoadFromReader(strings.NewReader(""), config.DataTypeYAML, cfgs[0], cfgs[1:]...)
}

func buildServiceUnit(cfg *AppConfig, logger log.FieldLogger, rateLimitDryRun bool) (service.Unit, func(), error) {
	cacheMetrics := searchcache.NewPrometheusMetricsWithOpts(searchcache.PrometheusMetricsOpts{
		Namespace:   metricsNamespace,
		ConstLabels: libinfo.AddPrometheusAppVersionLabel(nil),
	})
	cacheMetrics.MustRegister()

	limiterMetrics := ratelimit.NewPrometheusMetricsWithOpts(ratelimit.PrometheusMetricsOpts{
		Namespace:   metricsNamespace,
		ConstLabels: libinfo.AddPrometheusAppVersionLabel(nil),
	})
	limiterMetrics.MustRegister()

	clientMetrics := httpclient.NewPrometheusMetricsCollector(metricsNamespace)
	clientMetrics.MustRegister()

	stopMetrics := func() {
		clientMetrics.Unregister()
		limiterMetrics.Unregister()
		cacheMetrics.Unregister()
	}

	fail := func(err error) (service.Unit, func(), error) {
		stopMetrics()
		return nil, nil, err
	}

	cache, err := searchcache.New[*githubsearch.RepositoriesResult](cfg.Cache, cacheMetrics)
	if err != nil {
		return fail(fmt.Errorf("create search cache: %w", err))
	}

	limiter, err := ratelimit.New(cfg.RateLimit, limiterMetrics)
	if err != nil {
		return fail(fmt.Errorf("create rate limiter: %w", err))
	}

	searchClient, err := githubsearch.NewWithOpts(cfg.GitHub, logger, githubsearch.Opts{
		MetricsCollector: clientMetrics,
	})
	if err != nil {
		return fail(fmt.Errorf("create github search client: %w", err))
	}

	apiRoutes := searchapi.RoutesWithOpts(searchClient, cache, limiter, serviceErrorDomain, searchapi.RoutesOpts{
		RateLimitDryRun: rateLimitDryRun,
	})
	httpServer, err := httpserver.New(cfg.Server, logger, httpserver.Opts{
		ServiceNameInURL: serviceNameInURL,
		ErrorDomain:      serviceErrorDomain,
		APIRoutes:        map[httpserver.APIVersion]httpserver.APIRoute{1: apiRoutes},
		HealthCheck:      newHealthCheck(),
	})
	if err != nil {
		return fail(fmt.Errorf("create http server: %w", err))
	}

	units := []service.Unit{
		httpServer,
		newSweepWorkerUnit("search cache",
			cache.Sweep, time.Duration(cfg.Cache.SweepInterval), logger),
		newSweepWorkerUnit("rate limiter",
			limiter.Sweep, time.Duration(cfg.RateLimit.SweepInterval), logger),
	}
	if cfg.Prof.Enabled {
		units = append(units, profserver.New(cfg.Prof, logger))
	}

	return service.NewCompositeUnit(units...), stopMetrics, nil
}

func newHealthCheck() httpserver.HealthCheck {
	// Probing GitHub would burn search quota, so readiness only covers the service itself.
	return func() (httpserver.HealthCheckResult, error) {
		return httpserver.HealthCheckResult{"api": httpserver.HealthCheckStatusOK}, nil
	}
}

func newSweepWorkerUnit(
	name string, sweep func() int, interval time.Duration, logger log.FieldLogger,
) *service.WorkerUnit {
	sweepLogger := logger.With(log.String("sweep_target", name))
	worker := service.WorkerFunc(func(ctx context.Context) error {
		if removed := sweep(); removed > 0 {
			sweepLogger.Info("swept expired entries", log.Int("removed", removed))
		}
		return nil
	})
	return service.NewWorkerUnit(service.NewPeriodicWorker(worker, interval, sweepLogger))
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("git-search"),
		kong.Description("Caching, rate limited facade over the GitHub repository search API."),
		kong.UsageOnError(),
	)
	if err := kctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "git-search: %v\n", err)
		os.Exit(1)
	}
}
