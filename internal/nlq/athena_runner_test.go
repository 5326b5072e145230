package nlq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAthena struct {
	mu      sync.Mutex
	states  []athenatypes.QueryExecutionState
	reason  string
	pages   []*athena.GetQueryResultsOutput
	polls   int
	started []*athena.StartQueryExecutionInput
}

func (f *fakeAthena) StartQueryExecution(_ context.Context, in *athena.StartQueryExecutionInput, _ ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, in)
	return &athena.StartQueryExecutionOutput{QueryExecutionId: aws.String("qid-1")}, nil
}

func (f *fakeAthena) GetQueryExecution(_ context.Context, _ *athena.GetQueryExecutionInput, _ ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.states[len(f.states)-1]
	if f.polls < len(f.states) {
		st = f.states[f.polls]
	}
	f.polls++
	return &athena.GetQueryExecutionOutput{QueryExecution: &athenatypes.QueryExecution{
		Status: &athenatypes.QueryExecutionStatus{State: st, StateChangeReason: aws.String(f.reason)},
	}}, nil
}

func (f *fakeAthena) GetQueryResults(_ context.Context, in *athena.GetQueryResultsInput, _ ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error) {
	i := 0
	if in.NextToken != nil {
		i = 1
	}
	return f.pages[i], nil
}

func athenaRow(vals ...string) athenatypes.Row {
	r := athenatypes.Row{}
	for _, v := range vals {
		r.Data = append(r.Data, athenatypes.Datum{VarCharValue: aws.String(v)})
	}
	return r
}

func newTestAthenaStore(t *testing.T, f *fakeAthena, maxRows int) *AthenaStore {
	t.Helper()
	s, err := NewAthenaStore(f, AthenaRunOptions{
		Database:       "retail",
		OutputLocation: "s3://bucket/athena/",
		PollInterval:   time.Millisecond,
		MaxResultRows:  maxRows,
	})
	require.NoError(t, err)
	return s
}

func TestNewAthenaStore_Validation(t *testing.T) {
	_, err := NewAthenaStore(&fakeAthena{}, AthenaRunOptions{OutputLocation: "s3://b/"})
	require.Error(t, err)
	_, err = NewAthenaStore(&fakeAthena{}, AthenaRunOptions{Database: "d"})
	require.Error(t, err)
	_, err = NewAthenaStore(&fakeAthena{}, AthenaRunOptions{Database: "d", OutputLocation: "/tmp"})
	require.Error(t, err)

	s, err := NewAthenaStore(&fakeAthena{}, AthenaRunOptions{Database: "d", OutputLocation: "s3://b/"})
	require.NoError(t, err)
	assert.Equal(t, "primary", s.opt.Workgroup)
}

func TestAthenaStore_RunPaginatesAndSkipsHeader(t *testing.T) {
	meta := &athenatypes.ResultSetMetadata{ColumnInfo: []athenatypes.ColumnInfo{
		{Name: aws.String("Category")}, {Name: aws.String("sales")},
	}}
	f := &fakeAthena{
		states: []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateRunning, athenatypes.QueryExecutionStateSucceeded},
		pages: []*athena.GetQueryResultsOutput{
			{
				ResultSet: &athenatypes.ResultSet{ResultSetMetadata: meta, Rows: []athenatypes.Row{
					athenaRow("Category", "sales"),
					athenaRow("Shoes", "10.5"),
				}},
				NextToken: aws.String("next"),
			},
			{
				ResultSet: &athenatypes.ResultSet{ResultSetMetadata: meta, Rows: []athenatypes.Row{
					athenaRow("Hats", "3"),
					athenaRow("", ""),
				}},
			},
		},
	}
	s := newTestAthenaStore(t, f, 10)

	res, err := s.Run(context.Background(), "SELECT Category, SUM(Amount) AS sales FROM sales_data GROUP BY 1")
	require.NoError(t, err)

	assert.Equal(t, []string{"Category", "sales"}, res.Columns)
	assert.Equal(t, []map[string]any{
		{"Category": "Shoes", "sales": 10.5},
		{"Category": "Hats", "sales": int64(3)},
		{"Category": nil, "sales": nil},
	}, res.Rows)
	assert.Equal(t, 2, f.polls)
	require.Len(t, f.started, 1)
	assert.Equal(t, "retail", aws.ToString(f.started[0].QueryExecutionContext.Database))
	assert.Equal(t, "primary", aws.ToString(f.started[0].WorkGroup))
}

func TestAthenaStore_FailedQueryCarriesEngineMessage(t *testing.T) {
	f := &fakeAthena{
		states: []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateFailed},
		reason: "COLUMN_NOT_FOUND: line 1:8: Column 'qty2' cannot be resolved",
	}
	s := newTestAthenaStore(t, f, 10)

	_, err := s.Run(context.Background(), "SELECT qty2 FROM sales_data")
	var ae *AthenaError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "FAILED", ae.State)

	o := NewSQLExecutor(s, 0).Execute(context.Background(), "SELECT qty2 FROM sales_data")
	assert.False(t, o.OK)
	assert.Equal(t, ErrorKindExecution, o.Kind)
	assert.Equal(t, "COLUMN_NOT_FOUND: line 1:8: Column 'qty2' cannot be resolved", o.Message)
}

func TestAthenaStore_MaxWaitIsTimeout(t *testing.T) {
	f := &fakeAthena{states: []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateRunning}}
	s, err := NewAthenaStore(f, AthenaRunOptions{
		Database:       "retail",
		OutputLocation: "s3://bucket/athena/",
		PollInterval:   time.Millisecond,
		MaxWait:        10 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = s.Run(context.Background(), "SELECT 1")
	require.True(t, errors.Is(err, ErrQueryTimeout))

	o := NewSQLExecutor(s, 0).Execute(context.Background(), "SELECT 1")
	assert.Equal(t, ErrorKindTimeout, o.Kind)
}

func TestCoerceScalar(t *testing.T) {
	assert.Nil(t, coerceScalar(" "))
	assert.Equal(t, int64(42), coerceScalar("42"))
	assert.Equal(t, 4.25, coerceScalar("4.25"))
	assert.Equal(t, "2024-01-01", coerceScalar("2024-01-01"))
}
