package duck

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailqa/internal/nlq"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), nil, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeSalesCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Sales Data.csv")
	data := "Date,Amount,Category,Qty\n" +
		"2024-01-01,10.5,Shoes,1\n" +
		"2024-01-02,4.5,Hats,2\n" +
		"2024-02-01,5.0,Shoes,3\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestStore_RegisterDescribeRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	path := writeSalesCSV(t)

	table, p := ParseDataSpec(path)
	assert.Equal(t, "sales_data", table)
	require.NoError(t, s.RegisterFile(ctx, table, p))

	schema, err := s.Describe(ctx)
	require.NoError(t, err)
	require.Len(t, schema, 4)
	assert.Equal(t, nlq.ColumnInfo{Table: "sales_data", Name: "Date", Type: "DATE"}, schema[0])
	assert.Equal(t, "Amount", schema[1].Name)

	res, err := s.Run(ctx, "SELECT Category, SUM(Qty) AS qty FROM sales_data GROUP BY Category ORDER BY Category")
	require.NoError(t, err)
	assert.Equal(t, []string{"Category", "qty"}, res.Columns)
	assert.Equal(t, []map[string]any{
		{"Category": "Hats", "qty": int64(2)},
		{"Category": "Shoes", "qty": int64(4)},
	}, res.Rows)
}

func TestStore_RunErrorCarriesEngineMessage(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.RegisterFile(ctx, "sales_data", writeSalesCSV(t)))

	o := nlq.NewSQLExecutor(s, 0).Execute(ctx, "SELECT SUM(Qty2) FROM sales_data")
	assert.False(t, o.OK)
	assert.Equal(t, nlq.ErrorKindExecution, o.Kind)
	assert.Contains(t, o.Message, "Qty2")
	assert.NotContains(t, o.Message, "duckdb query:")
}

func TestStore_MaxRows(t *testing.T) {
	s, err := Open(context.Background(), nil, "", 3)
	require.NoError(t, err)
	defer s.Close()

	res, err := s.Run(context.Background(), "SELECT * FROM range(10)")
	require.NoError(t, err)
	assert.Len(t, res.Rows, 3)
}

func TestStore_RegisterFileErrors(t *testing.T) {
	s := openTestStore(t)
	require.Error(t, s.RegisterFile(context.Background(), "", "x.csv"))
	require.Error(t, s.RegisterFile(context.Background(), "t", "x.xlsx"))
}

func TestParseDataSpec(t *testing.T) {
	tests := []struct {
		spec, table, path string
	}{
		{"sales=/data/sales.csv", "sales", "/data/sales.csv"},
		{"/data/Amazon Sale Report.csv", "amazon_sale_report", "/data/Amazon Sale Report.csv"},
		{"./a=b/file.parquet", "file", "./a=b/file.parquet"},
	}
	for _, tt := range tests {
		table, path := ParseDataSpec(tt.spec)
		assert.Equal(t, tt.table, table, tt.spec)
		assert.Equal(t, tt.path, path, tt.spec)
	}
}

func TestConvertValue(t *testing.T) {
	assert.Nil(t, convertValue(nil))
	assert.Equal(t, "abc", convertValue([]byte("abc")))
	assert.Equal(t, int64(7), convertValue(int32(7)))
	assert.Equal(t, int64(9), convertValue(big.NewInt(9)))
	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	assert.Equal(t, "123456789012345678901234567890", convertValue(huge))
	assert.Equal(t, "2024-03-01", convertValue(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-03-01T10:30:00Z", convertValue(time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)))
	assert.Equal(t, float64(1.5), convertValue(float32(1.5)))
}

func TestStore_RepairsUnknownColumn(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.RegisterFile(ctx, "sales_data", writeSalesCSV(t)))

	r := &repairingResolver{}
	ctrl := nlq.NewController(r, nlq.NewSQLExecutor(s, 0), nlq.NewShapeValidator(), synthFirstCell{}, nlq.Options{MaxAttempts: 3}, nil)

	ans := ctrl.Run(ctx, "how many units were sold", nlq.Schema{{Table: "sales_data", Name: "Qty", Type: "BIGINT"}})
	assert.True(t, ans.Succeeded())
	assert.Equal(t, 2, ans.Attempts)
	assert.Equal(t, "6", ans.Text)
	require.NotNil(t, r.repair)
	assert.Contains(t, r.repair.Error, "Qty2")
}

type repairingResolver struct {
	repair *nlq.RepairContext
}

func (r *repairingResolver) Resolve(_ context.Context, req nlq.ResolveRequest) (string, error) {
	if req.Repair == nil {
		return "SELECT SUM(Qty2) AS units FROM sales_data", nil
	}
	r.repair = req.Repair
	return "SELECT SUM(Qty) AS units FROM sales_data", nil
}

type synthFirstCell struct{}

func (synthFirstCell) Synthesize(_ context.Context, _ string, res nlq.SessionResult) string {
	if res.Verdict == nil || len(res.Verdict.Rows) == 0 {
		return nlq.FailureText(res)
	}
	v := res.Verdict
	return fmt.Sprintf("%v", v.Rows[0][v.Columns[0]])
}
