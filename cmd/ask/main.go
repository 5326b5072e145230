package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"retailqa/internal/app"
	"retailqa/internal/config"
	"retailqa/internal/handlers"
	"retailqa/internal/logging"
)

func main() {
	ctx := context.Background()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.NewJSON(os.Getenv("NLQ_DEBUG") != "")

	deps, err := app.NewAWS(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("init: %v", err)
	}

	h := handlers.NewAskHandler(deps.Assistant, logger)
	lambda.Start(h.Handle)
}
