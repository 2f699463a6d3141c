// Command lotstream is the DynamoDB Streams Lambda entrypoint for the lots
// table. It logs lot insertions and modifications.
package main

import (
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jacentio/lottrace/internal/config"
	"github.com/jacentio/lottrace/internal/logger"
	"github.com/jacentio/lottrace/stream"
)

func main() {
	level, format := "info", "json"
	if cfg, err := config.Load(""); err == nil {
		level, format = cfg.Log.Level, cfg.Log.Format
	}
	slogger := logger.New(level, format)

	lambda.Start(stream.NewHandler(stream.LogSink(slogger), slogger).HandleLotChanges)
}
