package nlq

import (
	"context"
	"fmt"
	"strings"
)

type SummaryQuery struct {
	Title string
	SQL   string
}

var DefaultSummaryQueries = []SummaryQuery{
	{Title: "Total Sales", SQL: "SELECT SUM(Amount) AS total_sales FROM sales_data"},
	{Title: "Sales by Year", SQL: "SELECT Year, SUM(Amount) AS sales FROM sales_data GROUP BY Year ORDER BY Year"},
	{Title: "Top 5 Categories", SQL: "SELECT Category, SUM(Amount) AS sales FROM sales_data GROUP BY Category ORDER BY 2 DESC LIMIT 5"},
	{Title: "Sales by Source", SQL: "SELECT Source, SUM(Amount) AS sales FROM sales_data GROUP BY Source"},
}

// Summarizer runs fixed queries and asks the oracle for an executive summary.
type Summarizer struct {
	executor Executor
	oracle   Oracle
	queries  []SummaryQuery
}

func NewSummarizer(e Executor, o Oracle, queries []SummaryQuery) *Summarizer {
	if len(queries) == 0 {
		queries = DefaultSummaryQueries
	}
	return &Summarizer{executor: e, oracle: o, queries: queries}
}

// Sections returns the rendered result of each summary query; failures are
// rendered inline rather than aborting the summary.
func (s *Summarizer) Sections(ctx context.Context) []string {
	out := make([]string, 0, len(s.queries))
	for _, q := range s.queries {
		o := s.executor.Execute(ctx, q.SQL)
		var body string
		switch {
		case !o.OK:
			body = "Error: " + o.Message
		case len(o.Rows) == 0:
			body = "No data"
		default:
			body = RenderTable(o.Columns, o.Rows, 20)
		}
		out = append(out, fmt.Sprintf("## %s\n%s", q.Title, body))
	}
	return out
}

func (s *Summarizer) Summarize(ctx context.Context) (string, error) {
	data := strings.Join(s.Sections(ctx), "\n\n")
	prompt := fmt.Sprintf(`
You are a senior business analyst. Write a concise, human-readable executive summary of the sales performance based on the following data:

%s

Focus on:
1. Total Sales and growth (if visible in Year data).
2. Top performing categories.
3. Any significant trends.

Format the output with clear headings and bullet points.
`, data)

	text, err := s.oracle.Complete(ctx, prompt)
	if err != nil {
		return data, fmt.Errorf("summary: %w", err)
	}
	return strings.TrimSpace(text), nil
}
