package nlq

import (
	"context"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Synthesizer always produces user-facing text, including for failures.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, result SessionResult) string
}

type OracleSynthesizer struct {
	oracle  Oracle
	maxRows int
}

func NewOracleSynthesizer(o Oracle, maxPromptRows int) *OracleSynthesizer {
	if maxPromptRows <= 0 {
		maxPromptRows = 50
	}
	return &OracleSynthesizer{oracle: o, maxRows: maxPromptRows}
}

func (s *OracleSynthesizer) Synthesize(ctx context.Context, question string, r SessionResult) string {
	switch r.Termination {
	case TerminationAnswered, TerminationMalformed:
		return s.fromData(ctx, question, r)
	case TerminationEmpty:
		return "No data found matching your query."
	default:
		return FailureText(r)
	}
}

func (s *OracleSynthesizer) fromData(ctx context.Context, question string, r SessionResult) string {
	v := r.Verdict
	if v == nil {
		return FailureText(r)
	}
	table := RenderTable(v.Columns, v.Rows, s.maxRows)

	caveat := ""
	if v.Kind == VerdictMalformed {
		caveat = fmt.Sprintf("\nCAVEAT: the result may not match the question (%s). Say so briefly.\n", v.Reason)
	}
	prompt := fmt.Sprintf(`
Answer the user's question based on the data. Be concise and use the numbers as given.
%s
USER QUESTION:
%s

DATA:
%s`, caveat, question, table)

	text, err := s.oracle.Complete(ctx, prompt)
	if err == nil && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text)
	}

	// oracle unavailable: fall back to the data itself
	var b strings.Builder
	if v.Shape == "scalar" {
		b.WriteString(fmt.Sprintf("The answer is %v.", v.Rows[0][v.Columns[0]]))
	} else {
		b.WriteString("Here is what I found:\n")
		b.WriteString(table)
	}
	if v.Kind == VerdictMalformed {
		b.WriteString(fmt.Sprintf("\nNote: this result may not fully match your question (%s).", v.Reason))
	}
	return b.String()
}

// FailureText is the deterministic answer for terminations without usable data.
func FailureText(r SessionResult) string {
	msg := ""
	if r.Failure != nil {
		msg = r.Failure.Message
	}
	switch r.Termination {
	case TerminationDisallowed:
		return fmt.Sprintf("I can't run that request: the generated query was not read-only (%s).", msg)
	case TerminationBudgetExhausted:
		return fmt.Sprintf("I couldn't answer that after %d attempts. Last error: %s", r.Attempts, msg)
	case TerminationCanceled:
		return "The request was canceled before an answer was ready."
	case TerminationSchemaUnavailable:
		return fmt.Sprintf("I couldn't load the dataset description, so I can't answer right now (%s).", msg)
	default:
		return fmt.Sprintf("I couldn't answer that. Error: %s", msg)
	}
}

// RenderTable renders rows as an ASCII table, truncated to maxRows.
func RenderTable(columns []string, rows []map[string]any, maxRows int) string {
	if len(rows) == 0 {
		return "No data"
	}
	var b strings.Builder
	t := tablewriter.NewWriter(&b)
	t.SetHeader(columns)
	t.SetAutoFormatHeaders(false)
	t.SetAutoWrapText(false)

	n := len(rows)
	if maxRows > 0 && n > maxRows {
		n = maxRows
	}
	for _, r := range rows[:n] {
		vals := make([]string, len(columns))
		for i, c := range columns {
			if r[c] == nil {
				vals[i] = "NULL"
				continue
			}
			vals[i] = fmt.Sprintf("%v", r[c])
		}
		t.Append(vals)
	}
	t.Render()

	if len(rows) > n {
		b.WriteString(fmt.Sprintf("... and %d more rows\n", len(rows)-n))
	}
	return b.String()
}
