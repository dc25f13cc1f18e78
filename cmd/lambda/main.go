package main

import (
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/caire-health/triage-engine/internal/app"
	"github.com/caire-health/triage-engine/internal/config"
	"github.com/caire-health/triage-engine/internal/engine"
	"github.com/caire-health/triage-engine/internal/testrunner"
	"github.com/caire-health/triage-engine/internal/transport/lambdatransport"
	"github.com/caire-health/triage-engine/internal/tree/cache"
)

func main() {
	cfg := config.Load()

	observer := engine.NewAsyncNodeLatencyObserver(engine.NewNodeLatencyLogger(log.Default()), cfg.ObsBuffer)
	defer observer.Close()

	eng := engine.New(engine.WithNodeLatencyObserver(observer))
	runner := testrunner.New(eng, testrunner.WithWorkers(cfg.SuiteWorkers))
	svc := app.NewService(runner, cache.NewInMemory(cfg.CacheMaxItems))
	h := lambdatransport.NewHandler(svc)

	lambda.Start(h.Handle)
}
