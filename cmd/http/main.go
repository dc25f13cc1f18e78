package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/caire-health/triage-engine/internal/app"
	"github.com/caire-health/triage-engine/internal/config"
	"github.com/caire-health/triage-engine/internal/engine"
	"github.com/caire-health/triage-engine/internal/metrics"
	"github.com/caire-health/triage-engine/internal/testrunner"
	"github.com/caire-health/triage-engine/internal/transport/httptransport"
	"github.com/caire-health/triage-engine/internal/tree/cache"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	registry := prometheus.NewRegistry()
	nodeLatency := metrics.NewNodeLatency(registry)
	observer := engine.NewAsyncNodeLatencyObserver(nodeLatency, cfg.ObsBuffer)
	defer observer.Close()

	eng := engine.New(engine.WithNodeLatencyObserver(observer))
	runner := testrunner.New(eng, testrunner.WithWorkers(cfg.SuiteWorkers))
	svc := app.NewService(runner, cache.NewInMemory(cfg.CacheMaxItems))
	h := httptransport.NewHandler(svc)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/v1/trees", func(r chi.Router) {
		r.Post("/validate", h.Validate)
		r.Post("/evaluate", h.Evaluate)
		r.Post("/tests/run", h.RunSuite)
	})
	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	logger.Info("listening", "addr", cfg.HTTPAddr)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
