package nlq

import (
	"fmt"
	"regexp"
)

// ResultValidator classifies a successful execution. It never triggers a retry.
type ResultValidator interface {
	Validate(question string, outcome ExecutionOutcome) ValidationVerdict
}

var (
	aggregateIntentRe = regexp.MustCompile(`(?i)\b(total|sum|average|avg|mean|how many|how much|count|number of)\b`)
	groupingIntentRe  = regexp.MustCompile(`(?i)\b(by|per|each|every|breakdown|top|list|trend|over time)\b`)
)

type ShapeValidator struct{}

func NewShapeValidator() *ShapeValidator {
	return &ShapeValidator{}
}

func (v *ShapeValidator) Validate(question string, o ExecutionOutcome) ValidationVerdict {
	out := ValidationVerdict{Kind: VerdictValid, Shape: shapeOf(o.Columns, o.Rows), Columns: o.Columns, Rows: o.Rows}

	if len(o.Rows) == 0 {
		out.Kind = VerdictEmpty
		return out
	}

	if reason := inconsistentShape(o.Columns, o.Rows); reason != "" {
		out.Kind = VerdictMalformed
		out.Reason = reason
		return out
	}

	if out.Shape == "scalar" && o.Rows[0][o.Columns[0]] == nil {
		out.Kind = VerdictMalformed
		out.Reason = "aggregate returned NULL"
		return out
	}

	// A plain aggregate question ("total sales last month") should come back as
	// one value, optionally next to a single label column.
	if aggregateIntentRe.MatchString(question) && !groupingIntentRe.MatchString(question) {
		switch {
		case len(o.Rows) > 1:
			out.Kind = VerdictMalformed
			out.Reason = fmt.Sprintf("expected a single aggregate row, got %d rows x %d columns", len(o.Rows), len(o.Columns))
		case len(o.Columns) > 1 && !labelledValue(o.Columns, o.Rows[0]):
			out.Kind = VerdictMalformed
			out.Reason = fmt.Sprintf("expected a single aggregate value, got %d columns", len(o.Columns))
		}
	}
	return out
}

func labelledValue(columns []string, row map[string]any) bool {
	if len(columns) != 2 {
		return false
	}
	numeric := 0
	for _, c := range columns {
		if isNumeric(row[c]) {
			numeric++
		}
	}
	return numeric == 1
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

func shapeOf(columns []string, rows []map[string]any) string {
	if len(rows) == 1 && len(columns) == 1 {
		return "scalar"
	}
	return "table"
}

func inconsistentShape(columns []string, rows []map[string]any) string {
	if len(columns) == 0 {
		return "result has no columns"
	}
	seen := map[string]bool{}
	for _, c := range columns {
		if seen[c] {
			return fmt.Sprintf("duplicate column %q", c)
		}
		seen[c] = true
	}
	for i, r := range rows {
		for k := range r {
			if !seen[k] {
				return fmt.Sprintf("row %d has unexpected column %q", i, k)
			}
		}
	}
	return ""
}
