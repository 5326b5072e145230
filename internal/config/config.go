package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

const (
	ProviderBedrock   = "bedrock"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	MaxAttempts     int
	StageTimeout    time.Duration
	MaxResultRows   int
	RetryOnUnusable bool

	OracleProvider  string
	OracleMaxTries  uint
	BedrockModelID  string
	AnthropicModel  string
	AnthropicAPIKey string
	// AnthropicAPIKeyParam is an SSM parameter name holding the key.
	AnthropicAPIKeyParam string

	AthenaDatabase  string
	AthenaWorkgroup string
	AthenaOutputS3  string
	GlueDatabase    string
	GlueTables      []string

	CacheTable     string
	CacheTTL       time.Duration
	SchemaCacheTTL time.Duration
	AlertsTopicArn string
}

// FromEnv reads configuration from environment variables, applying defaults.
func FromEnv() (*Config, error) {
	c := &Config{
		MaxAttempts:          3,
		StageTimeout:         30 * time.Second,
		MaxResultRows:        200,
		OracleProvider:       ProviderBedrock,
		OracleMaxTries:       2,
		BedrockModelID:       env("BEDROCK_MODEL_ID"),
		AnthropicModel:       env("ANTHROPIC_MODEL"),
		AnthropicAPIKey:      env("ANTHROPIC_API_KEY"),
		AnthropicAPIKeyParam: env("ANTHROPIC_API_KEY_SSM_PARAM"),
		AthenaDatabase:       env("ATHENA_DATABASE"),
		AthenaWorkgroup:      env("ATHENA_WORKGROUP"),
		AthenaOutputS3:       env("ATHENA_OUTPUT_S3"),
		GlueDatabase:         env("GLUE_DATABASE"),
		GlueTables:           splitList(env("GLUE_TABLES")),
		CacheTable:           env("NLQ_CACHE_TABLE"),
		CacheTTL:             600 * time.Second,
		SchemaCacheTTL:       5 * time.Minute,
		AlertsTopicArn:       env("ALERTS_TOPIC_ARN"),
	}
	if v := env("ORACLE_PROVIDER"); v != "" {
		c.OracleProvider = strings.ToLower(v)
	}

	var err error
	if c.MaxAttempts, err = intEnv("NLQ_MAX_ATTEMPTS", c.MaxAttempts); err != nil {
		return nil, err
	}
	if c.MaxResultRows, err = intEnv("NLQ_MAX_RESULT_ROWS", c.MaxResultRows); err != nil {
		return nil, err
	}
	tries, err := intEnv("ORACLE_MAX_TRIES", int(c.OracleMaxTries))
	if err != nil {
		return nil, err
	}
	if tries < 1 {
		return nil, fmt.Errorf("ORACLE_MAX_TRIES must be >= 1")
	}
	c.OracleMaxTries = uint(tries)
	if c.StageTimeout, err = durationEnv("NLQ_STAGE_TIMEOUT", c.StageTimeout); err != nil {
		return nil, err
	}
	if c.SchemaCacheTTL, err = durationEnv("NLQ_SCHEMA_TTL", c.SchemaCacheTTL); err != nil {
		return nil, err
	}
	ttlSecs, err := intEnv("NLQ_CACHE_TTL_SECONDS", int(c.CacheTTL/time.Second))
	if err != nil {
		return nil, err
	}
	c.CacheTTL = time.Duration(ttlSecs) * time.Second
	if v := env("NLQ_RETRY_ON_UNUSABLE"); v != "" {
		if c.RetryOnUnusable, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("invalid NLQ_RETRY_ON_UNUSABLE %q: %w", v, err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1, got %d", c.MaxAttempts)
	}
	if c.StageTimeout <= 0 {
		return fmt.Errorf("stage timeout must be positive")
	}
	switch c.OracleProvider {
	case ProviderBedrock, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown ORACLE_PROVIDER %q", c.OracleProvider)
	}
	return nil
}

type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ResolveSecrets fills secrets that are referenced by SSM parameter name.
func (c *Config) ResolveSecrets(ctx context.Context, client SSMClient) error {
	if c.AnthropicAPIKey != "" || c.AnthropicAPIKeyParam == "" {
		return nil
	}
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(c.AnthropicAPIKeyParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("ssm GetParameter %s: %w", c.AnthropicAPIKeyParam, err)
	}
	if out.Parameter == nil || strings.TrimSpace(aws.ToString(out.Parameter.Value)) == "" {
		return fmt.Errorf("ssm parameter %s is empty", c.AnthropicAPIKeyParam)
	}
	c.AnthropicAPIKey = strings.TrimSpace(aws.ToString(out.Parameter.Value))
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func intEnv(key string, def int) (int, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
