package nlq

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

type ResolveRequest struct {
	Question string
	Schema   Schema
	// Repair is nil for the first attempt.
	Repair  *RepairContext
	Attempt int
}

// Resolver turns a question into a SQL candidate.
type Resolver interface {
	Resolve(ctx context.Context, req ResolveRequest) (string, error)
}

// OracleResolver builds translation and fix prompts and extracts SQL from the oracle's reply.
type OracleResolver struct {
	oracle  Oracle
	dialect string
	now     func() time.Time
}

func NewOracleResolver(o Oracle, dialect string) *OracleResolver {
	if strings.TrimSpace(dialect) == "" {
		dialect = "DuckDB"
	}
	return &OracleResolver{oracle: o, dialect: dialect, now: time.Now}
}

type llmSQL struct {
	SQL         string   `json:"sql"`
	Assumptions []string `json:"assumptions"`
}

func (r *OracleResolver) Resolve(ctx context.Context, req ResolveRequest) (string, error) {
	today := r.now().UTC().Format("2006-01-02")
	var prompt string
	if req.Repair != nil {
		prompt = BuildFixPrompt(FixSQLRequest{
			Dialect:          r.dialect,
			OriginalQuestion: req.Question,
			SchemaText:       req.Schema.Text(),
			TodayISO:         today,
			PreviousSQL:      req.Repair.FailedSQL,
			EngineError:      req.Repair.Error,
		})
	} else {
		prompt = BuildPrompt(SQLRequest{
			Dialect:    r.dialect,
			Question:   req.Question,
			SchemaText: req.Schema.Text(),
			TodayISO:   today,
		})
	}

	text, err := r.oracle.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("oracle: %w", err)
	}
	sql, err := ExtractSQL(text)
	if err != nil {
		return "", fmt.Errorf("%w; raw=%s", err, truncate(text, 300))
	}
	return sql, nil
}

type SQLRequest struct {
	Dialect    string
	Question   string
	SchemaText string
	TodayISO   string
}

func BuildPrompt(r SQLRequest) string {
	return fmt.Sprintf(`
You are a Text-to-SQL compiler for %s over retail sales data.

OUTPUT: valid JSON ONLY.

CRITICAL RULES:
- One read-only SELECT statement only, no semicolon.
- Use ONLY tables/columns in schema. Quote column names that contain spaces.
- When the user asks for a total/aggregate value, return a single row.

TODAY: %s

SCHEMA:
%s
USER QUESTION:
%s

Return JSON:
{
  "sql": "...",
  "assumptions": ["..."]
}
`, r.Dialect, r.TodayISO, r.SchemaText, r.Question)
}

type FixSQLRequest struct {
	Dialect          string
	OriginalQuestion string
	SchemaText       string
	TodayISO         string

	PreviousSQL string
	EngineError string
}

func BuildFixPrompt(r FixSQLRequest) string {
	prev := r.PreviousSQL
	if strings.TrimSpace(prev) == "" {
		prev = "(no SQL was produced)"
	}
	return fmt.Sprintf(`
FIX the %s SQL query. The previous query failed.

CRITICAL RULES:
- Output JSON only.
- One read-only SELECT only.
- schema + question must be respected.

TODAY: %s

SCHEMA:
%s
QUESTION:
%s

PREVIOUS SQL:
%s

ERROR:
%s

Return JSON:
{
  "sql": "...",
  "assumptions": ["..."]
}
`, r.Dialect, r.TodayISO, r.SchemaText, r.OriginalQuestion, prev, r.EngineError)
}

var sqlFenceRe = regexp.MustCompile("(?s)```(?:sql|SQL)?\\s*(.*?)```")

// ExtractSQL pulls a SQL statement out of an oracle reply. A JSON object with a
// "sql" field wins, then a fenced code block, then the bare text if it looks like SQL.
func ExtractSQL(text string) (string, error) {
	text = strings.TrimSpace(text)

	if js := extractFirstJSONObject(text); js != "" {
		var res llmSQL
		if err := json.Unmarshal([]byte(js), &res); err == nil && strings.TrimSpace(res.SQL) != "" {
			return cleanSQL(res.SQL), nil
		}
	}

	if m := sqlFenceRe.FindStringSubmatch(text); len(m) == 2 {
		if s := cleanSQL(m[1]); looksLikeSQL(s) {
			return s, nil
		}
	}

	if looksLikeSQL(text) {
		return cleanSQL(text), nil
	}
	return "", ErrNoSQL
}

func looksLikeSQL(text string) bool {
	upper := strings.ToUpper(strings.TrimSpace(text))
	for _, kw := range []string{"SELECT", "WITH", "FROM", "INSERT", "UPDATE", "DELETE", "CREATE", "ALTER", "DROP"} {
		if strings.HasPrefix(upper, kw) {
			return true
		}
	}
	return false
}

// cleanSQL trims whitespace and trailing semicolons.
func cleanSQL(sql string) string {
	sql = strings.TrimSpace(sql)
	for strings.HasSuffix(sql, ";") {
		sql = strings.TrimSpace(strings.TrimSuffix(sql, ";"))
	}
	return sql
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// extractFirstJSONObject finds the first balanced {...} block, ignoring braces inside strings.
func extractFirstJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inStr := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
