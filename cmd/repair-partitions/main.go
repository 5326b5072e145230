package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"retailqa/internal/app"
	"retailqa/internal/config"
	"retailqa/internal/etl"
	"retailqa/internal/logging"
)

// Triggered by an EventBridge schedule after new partitions land in S3.
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
	if len(cfg.GlueTables) == 0 {
		log.Fatalf("GLUE_TABLES is required")
	}

	r := etl.NewPartitionRepairer(deps.Store, deps.Catalog, logger)
	lambda.Start(func(ctx context.Context, _ events.CloudWatchEvent) (etl.RepairResult, error) {
		return r.Repair(ctx, cfg.GlueTables)
	})
}
