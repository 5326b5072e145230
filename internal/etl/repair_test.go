package etl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailqa/internal/nlq"
)

type recordingStore struct {
	sqls []string
	fail map[string]bool
}

func (s *recordingStore) Run(_ context.Context, sql string) (*nlq.ResultSet, error) {
	s.sqls = append(s.sqls, sql)
	if s.fail[sql] {
		return nil, errors.New("FAILED: table not found")
	}
	return &nlq.ResultSet{}, nil
}

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate() { c.n++ }

func TestPartitionRepairer_Repair(t *testing.T) {
	st := &recordingStore{}
	inv := &countingInvalidator{}
	r := NewPartitionRepairer(st, inv, nil)

	res, err := r.Repair(context.Background(), []string{"sales_data", " returns "})
	require.NoError(t, err)
	assert.True(t, res.Ok)
	assert.Equal(t, []string{"sales_data", "returns"}, res.Repaired)
	assert.Equal(t, []string{"MSCK REPAIR TABLE sales_data", "MSCK REPAIR TABLE returns"}, st.sqls)
	assert.Equal(t, 1, inv.n)
}

func TestPartitionRepairer_PartialFailure(t *testing.T) {
	st := &recordingStore{fail: map[string]bool{"MSCK REPAIR TABLE returns": true}}
	inv := &countingInvalidator{}

	res, err := NewPartitionRepairer(st, inv, nil).Repair(context.Background(), []string{"sales_data", "returns"})
	require.ErrorContains(t, err, "returns")
	assert.False(t, res.Ok)
	assert.Equal(t, []string{"returns"}, res.Failed)
	assert.Equal(t, 1, inv.n)
}

func TestPartitionRepairer_RejectsBadNames(t *testing.T) {
	st := &recordingStore{}
	_, err := NewPartitionRepairer(st, nil, nil).Repair(context.Background(), []string{"sales; DROP TABLE x"})
	require.Error(t, err)
	assert.Empty(t, st.sqls)

	_, err = NewPartitionRepairer(st, nil, nil).Repair(context.Background(), nil)
	require.Error(t, err)
}
