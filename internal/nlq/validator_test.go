package nlq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShapeValidator_Validate(t *testing.T) {
	tests := []struct {
		name      string
		question  string
		outcome   ExecutionOutcome
		wantKind  VerdictKind
		wantShape string
		reason    string
	}{
		{
			name:      "scalar aggregate",
			question:  "What is the total sales amount?",
			outcome:   oneRow("total", 99.5),
			wantKind:  VerdictValid,
			wantShape: "scalar",
		},
		{
			name:     "grouped breakdown",
			question: "total sales by category",
			outcome: Success([]string{"Category", "sales"}, []map[string]any{
				{"Category": "A", "sales": 1.0},
				{"Category": "B", "sales": 2.0},
			}),
			wantKind:  VerdictValid,
			wantShape: "table",
		},
		{
			name:     "no rows",
			question: "sales in 1990",
			outcome:  Success([]string{"total"}, nil),
			wantKind: VerdictEmpty,
		},
		{
			name:     "null aggregate",
			question: "average discount",
			outcome:  oneRow("avg", nil),
			wantKind: VerdictMalformed,
			reason:   "aggregate returned NULL",
		},
		{
			name:     "aggregate question with many rows",
			question: "how many orders were placed",
			outcome: Success([]string{"n"}, []map[string]any{
				{"n": int64(1)}, {"n": int64(2)}, {"n": int64(3)},
			}),
			wantKind: VerdictMalformed,
			reason:   "expected a single aggregate row, got 3 rows x 1 columns",
		},
		{
			name:     "aggregate question with many columns",
			question: "total sales last month",
			outcome: Success([]string{"Date", "Amount", "Category", "Qty"}, []map[string]any{
				{"Date": "2024-02-01", "Amount": 12.5, "Category": "Shoes", "Qty": int64(2)},
			}),
			wantKind: VerdictMalformed,
			reason:   "expected a single aggregate value, got 4 columns",
		},
		{
			name:     "aggregate value with two numbers",
			question: "total sales last month",
			outcome: Success([]string{"Amount", "Qty"}, []map[string]any{
				{"Amount": 12.5, "Qty": int64(2)},
			}),
			wantKind: VerdictMalformed,
			reason:   "expected a single aggregate value, got 2 columns",
		},
		{
			name:     "aggregate value with a label",
			question: "total sales last month",
			outcome: Success([]string{"month", "total"}, []map[string]any{
				{"month": "2024-02", "total": 12.5},
			}),
			wantKind:  VerdictValid,
			wantShape: "table",
		},
		{
			name:     "duplicate columns",
			question: "list products",
			outcome:  Success([]string{"a", "a"}, []map[string]any{{"a": 1}}),
			wantKind: VerdictMalformed,
			reason:   `duplicate column "a"`,
		},
		{
			name:     "row key outside columns",
			question: "list products",
			outcome:  Success([]string{"a"}, []map[string]any{{"a": 1, "b": 2}}),
			wantKind: VerdictMalformed,
			reason:   `row 0 has unexpected column "b"`,
		},
	}
	v := NewShapeValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(tt.question, tt.outcome)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.reason, got.Reason)
			if tt.wantShape != "" {
				assert.Equal(t, tt.wantShape, got.Shape)
			}
			assert.Equal(t, tt.outcome.Columns, got.Columns)
		})
	}
}

func TestTerminationSucceeded(t *testing.T) {
	for term, want := range map[Termination]bool{
		TerminationAnswered:          true,
		TerminationEmpty:             true,
		TerminationMalformed:         true,
		TerminationDisallowed:        false,
		TerminationBudgetExhausted:   false,
		TerminationCanceled:          false,
		TerminationSchemaUnavailable: false,
	} {
		assert.Equal(t, want, term.Succeeded(), term.String())
	}
}

func TestErrorKindRetryable(t *testing.T) {
	assert.True(t, ErrorKindGeneration.Retryable())
	assert.True(t, ErrorKindExecution.Retryable())
	assert.True(t, ErrorKindTimeout.Retryable())
	assert.False(t, ErrorKindDisallowed.Retryable())
	assert.False(t, ErrorKindNone.Retryable())
}
