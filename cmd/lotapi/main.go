// Command lotapi is the API Gateway Lambda entrypoint for the lot registry.
//
// Settings come from LOTTRACE_* environment variables. The registry lock
// serializes mutations within one instance; across instances the DynamoDB
// store's conditional writes reject lost updates with
// store.ErrConcurrentModification.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jacentio/lottrace/api"
	"github.com/jacentio/lottrace/internal/config"
	"github.com/jacentio/lottrace/internal/logger"
	"github.com/jacentio/lottrace/registry"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	slogger := logger.New(cfg.Log.Level, cfg.Log.Format)

	// lambda.Start never returns, so the backend stays open for the
	// process lifetime.
	backend, _, err := cfg.OpenBackend(context.Background(), slogger)
	if err != nil {
		log.Fatalf("open backend: %v", err)
	}

	reg := registry.New(backend, slogger)
	reg.SetMetrics(registry.NewMetrics(prometheus.DefaultRegisterer))

	lambda.Start(api.NewHandler(reg, slogger).Handle)
}
