package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailqa/internal/config"
	"retailqa/internal/nlq"
)

type cannedOracle struct{ reply string }

func (o cannedOracle) Complete(context.Context, string) (string, error) { return o.reply, nil }

type oneRowStore struct{}

func (oneRowStore) Run(context.Context, string) (*nlq.ResultSet, error) {
	return &nlq.ResultSet{Columns: []string{"total"}, Rows: []map[string]any{{"total": 5.0}}}, nil
}

func TestNewPipeline(t *testing.T) {
	cfg := &config.Config{MaxAttempts: 4, StageTimeout: time.Second, MaxResultRows: 10}
	p := NewPipeline(cfg, cannedOracle{reply: `{"sql": "SELECT SUM(Amount) AS total FROM sales_data"}`}, oneRowStore{}, DialectDuckDB, nil)

	assert.Equal(t, 4, p.Controller.MaxAttempts())

	ans := p.Controller.Run(context.Background(), "total sales", nlq.Schema{{Table: "sales_data", Name: "Amount", Type: "DOUBLE"}})
	assert.True(t, ans.Succeeded())
	assert.Equal(t, 1, ans.Attempts)
	// the canned oracle also answers the synthesis prompt
	assert.Contains(t, ans.Text, "SELECT SUM(Amount)")
}

func TestNewOracle_UnknownProvider(t *testing.T) {
	_, err := NewOracle(context.Background(), &config.Config{OracleProvider: "nope"}, nil)
	require.Error(t, err)
}

func TestNewOracle_AnthropicNeedsKey(t *testing.T) {
	_, err := NewOracle(context.Background(), &config.Config{OracleProvider: config.ProviderAnthropic}, nil)
	require.Error(t, err)
}
