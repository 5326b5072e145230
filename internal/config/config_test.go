package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"NLQ_MAX_ATTEMPTS", "NLQ_STAGE_TIMEOUT", "ORACLE_PROVIDER", "GLUE_TABLES", "NLQ_RETRY_ON_UNUSABLE"} {
		t.Setenv(k, "")
	}

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 3, c.MaxAttempts)
	assert.Equal(t, 30*time.Second, c.StageTimeout)
	assert.Equal(t, 200, c.MaxResultRows)
	assert.Equal(t, ProviderBedrock, c.OracleProvider)
	assert.Equal(t, uint(2), c.OracleMaxTries)
	assert.Equal(t, 600*time.Second, c.CacheTTL)
	assert.False(t, c.RetryOnUnusable)
	assert.Nil(t, c.GlueTables)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("NLQ_MAX_ATTEMPTS", "5")
	t.Setenv("NLQ_STAGE_TIMEOUT", "12s")
	t.Setenv("ORACLE_PROVIDER", "Anthropic")
	t.Setenv("GLUE_TABLES", "sales_data, returns ,")
	t.Setenv("NLQ_CACHE_TTL_SECONDS", "60")
	t.Setenv("NLQ_RETRY_ON_UNUSABLE", "true")

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 5, c.MaxAttempts)
	assert.Equal(t, 12*time.Second, c.StageTimeout)
	assert.Equal(t, ProviderAnthropic, c.OracleProvider)
	assert.Equal(t, []string{"sales_data", "returns"}, c.GlueTables)
	assert.Equal(t, time.Minute, c.CacheTTL)
	assert.True(t, c.RetryOnUnusable)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := map[string]string{
		"NLQ_MAX_ATTEMPTS":      "0",
		"NLQ_STAGE_TIMEOUT":     "soon",
		"ORACLE_PROVIDER":       "openai",
		"ORACLE_MAX_TRIES":      "0",
		"NLQ_RETRY_ON_UNUSABLE": "maybe",
	}
	for k, v := range tests {
		t.Run(k, func(t *testing.T) {
			t.Setenv(k, v)
			_, err := FromEnv()
			require.Error(t, err)
		})
	}
}

type fakeSSM struct {
	value string
	err   error
	name  string
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.name = aws.ToString(in.Name)
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(f.value)}}, nil
}

func TestResolveSecrets(t *testing.T) {
	t.Run("fetches from ssm", func(t *testing.T) {
		c := &Config{AnthropicAPIKeyParam: "/retailqa/anthropic"}
		f := &fakeSSM{value: " sk-test \n"}
		require.NoError(t, c.ResolveSecrets(context.Background(), f))
		assert.Equal(t, "sk-test", c.AnthropicAPIKey)
		assert.Equal(t, "/retailqa/anthropic", f.name)
	})
	t.Run("explicit key wins", func(t *testing.T) {
		c := &Config{AnthropicAPIKey: "k", AnthropicAPIKeyParam: "/p"}
		f := &fakeSSM{err: errors.New("should not be called")}
		require.NoError(t, c.ResolveSecrets(context.Background(), f))
		assert.Empty(t, f.name)
	})
	t.Run("empty parameter", func(t *testing.T) {
		c := &Config{AnthropicAPIKeyParam: "/p"}
		require.Error(t, c.ResolveSecrets(context.Background(), &fakeSSM{value: " "}))
	})
	t.Run("ssm error", func(t *testing.T) {
		c := &Config{AnthropicAPIKeyParam: "/p"}
		require.ErrorContains(t, c.ResolveSecrets(context.Background(), &fakeSSM{err: errors.New("AccessDenied")}), "AccessDenied")
	})
}
