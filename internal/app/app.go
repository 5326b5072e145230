package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	bedrockruntime "github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/jonboulle/clockwork"

	"retailqa/internal/alerts"
	"retailqa/internal/config"
	"retailqa/internal/llm"
	"retailqa/internal/metrics"
	"retailqa/internal/nlq"
)

const (
	DialectDuckDB = "DuckDB"
	DialectAthena = "Athena (Trino SQL)"
)

// NewOracle builds the configured completion backend wrapped in transport
// retries. AWS config is loaded only for the Bedrock provider.
func NewOracle(ctx context.Context, cfg *config.Config, log *slog.Logger) (nlq.Oracle, error) {
	var base llm.Oracle
	switch cfg.OracleProvider {
	case config.ProviderAnthropic:
		o, err := llm.NewAnthropicOracle(log, cfg.AnthropicAPIKey, cfg.AnthropicModel, 0)
		if err != nil {
			return nil, err
		}
		base = o
	case config.ProviderBedrock:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		o, err := nlq.NewBedrockOracle(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID, 0)
		if err != nil {
			return nil, err
		}
		base = o
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.OracleProvider)
	}
	return llm.NewRetrying(base, cfg.OracleMaxTries, log), nil
}

// Pipeline is the question-answering stack over one datastore.
type Pipeline struct {
	Executor   *nlq.SQLExecutor
	Controller *nlq.Controller
	Summarizer *nlq.Summarizer
}

func NewPipeline(cfg *config.Config, oracle nlq.Oracle, store nlq.Datastore, dialect string, log *slog.Logger) *Pipeline {
	exec := nlq.NewSQLExecutor(store, cfg.MaxResultRows)
	ctrl := nlq.NewController(
		nlq.NewOracleResolver(oracle, dialect),
		exec,
		nlq.NewShapeValidator(),
		nlq.NewOracleSynthesizer(oracle, 0),
		nlq.Options{
			MaxAttempts:     cfg.MaxAttempts,
			StageTimeout:    cfg.StageTimeout,
			RetryOnUnusable: cfg.RetryOnUnusable,
		},
		log,
	).WithObserver(metrics.Observer{})
	return &Pipeline{
		Executor:   exec,
		Controller: ctrl,
		Summarizer: nlq.NewSummarizer(exec, oracle, nil),
	}
}

// AWS is the Lambda deployment: Athena for execution, Glue for schema,
// DynamoDB for the answer cache and SNS for failure alerts.
type AWS struct {
	Store     *nlq.AthenaStore
	Catalog   *nlq.CachedCatalog
	Pipeline  *Pipeline
	Assistant *nlq.Assistant
}

func NewAWS(ctx context.Context, cfg *config.Config, log *slog.Logger) (*AWS, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if err := cfg.ResolveSecrets(ctx, ssm.NewFromConfig(awsCfg)); err != nil {
		return nil, err
	}
	oracle, err := NewOracle(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	store, err := nlq.NewAthenaStore(athena.NewFromConfig(awsCfg), nlq.AthenaRunOptions{
		Database:       cfg.AthenaDatabase,
		Workgroup:      cfg.AthenaWorkgroup,
		OutputLocation: cfg.AthenaOutputS3,
		MaxWait:        cfg.StageTimeout,
		MaxResultRows:  cfg.MaxResultRows,
	})
	if err != nil {
		return nil, err
	}

	glueDB := cfg.GlueDatabase
	if glueDB == "" {
		glueDB = cfg.AthenaDatabase
	}
	gc, err := nlq.NewGlueCatalog(glue.NewFromConfig(awsCfg), glueDB, cfg.GlueTables)
	if err != nil {
		return nil, err
	}
	catalog := nlq.NewCachedCatalog(gc, cfg.SchemaCacheTTL)

	pipe := NewPipeline(cfg, oracle, store, DialectAthena, log)

	opts, err := awsOptions(cfg, awsCfg)
	if err != nil {
		return nil, err
	}
	return &AWS{
		Store:     store,
		Catalog:   catalog,
		Pipeline:  pipe,
		Assistant: nlq.NewAssistant(catalog, pipe.Controller, log, opts...),
	}, nil
}

func awsOptions(cfg *config.Config, awsCfg aws.Config) ([]nlq.AssistantOption, error) {
	var opts []nlq.AssistantOption
	if cfg.CacheTable != "" {
		c, err := nlq.NewDynamoAnswerCache(dynamodb.NewFromConfig(awsCfg), cfg.CacheTable, cfg.CacheTTL, clockwork.NewRealClock())
		if err != nil {
			return nil, err
		}
		opts = append(opts, nlq.WithAnswerCache(c))
	}
	if cfg.AlertsTopicArn != "" {
		n, err := alerts.NewSNSNotifier(sns.NewFromConfig(awsCfg), cfg.AlertsTopicArn)
		if err != nil {
			return nil, err
		}
		opts = append(opts, nlq.WithNotifier(n))
	}
	return opts, nil
}
