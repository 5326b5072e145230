package duck

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"retailqa/internal/nlq"
)

const defaultMaxRows = 10000

// Store is a DuckDB-backed analytical store. Reads go through the shared
// *sql.DB pool, so concurrent sessions each get their own connection.
type Store struct {
	log     *slog.Logger
	db      *sql.DB
	maxRows int
}

// QueryError carries the DuckDB error text untouched so it can be fed back
// into a fix prompt.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string {
	return "duckdb query: " + e.Err.Error()
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

func (e *QueryError) EngineMessage() string {
	return e.Err.Error()
}

// Open opens a DuckDB database; an empty path means in-memory.
func Open(ctx context.Context, log *slog.Logger, path string, maxRows int) (*Store, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{log: log, db: db, maxRows: maxRows}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the pool for ingestion and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Run(ctx context.Context, query string) (*nlq.ResultSet, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &QueryError{Err: err}
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	out := []map[string]any{}
	for rows.Next() {
		if len(out) >= s.maxRows {
			s.log.Warn("result truncated", "max_rows", s.maxRows)
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			m[c] = convertValue(values[i])
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Err: err}
	}
	return &nlq.ResultSet{Columns: cols, Rows: out}, nil
}

// Describe lists every user table and view column in catalog order.
func (s *Store) Describe(ctx context.Context) (nlq.Schema, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema NOT IN ('information_schema', 'pg_catalog')
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("failed to describe tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var schema nlq.Schema
	for rows.Next() {
		var c nlq.ColumnInfo
		if err := rows.Scan(&c.Table, &c.Name, &c.Type); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		schema = append(schema, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to describe tables: %w", err)
	}
	return schema, nil
}

var nonIdent = regexp.MustCompile(`[^a-z0-9_]+`)

// ParseDataSpec splits "name=path"; without a name the file stem is used.
func ParseDataSpec(spec string) (table, path string) {
	spec = strings.TrimSpace(spec)
	if name, p, ok := strings.Cut(spec, "="); ok && !strings.ContainsAny(name, `/\.`) {
		return strings.TrimSpace(name), strings.TrimSpace(p)
	}
	stem := strings.TrimSuffix(filepath.Base(spec), filepath.Ext(spec))
	stem = strings.Trim(nonIdent.ReplaceAllString(strings.ToLower(stem), "_"), "_")
	return stem, spec
}

// RegisterFile exposes a CSV, Parquet or JSON file as a view.
func (s *Store) RegisterFile(ctx context.Context, table, path string) error {
	if strings.TrimSpace(table) == "" {
		return fmt.Errorf("missing table name for %s", path)
	}
	var reader string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt":
		reader = "read_csv_auto"
	case ".parquet":
		reader = "read_parquet"
	case ".json", ".ndjson", ".jsonl":
		reader = "read_json_auto"
	default:
		return fmt.Errorf("unsupported data file %s", path)
	}

	stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM %s(%s)", quoteIdent(table), reader, quoteLiteral(path))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to register %s as %s: %w", path, table, err)
	}
	s.log.Info("registered data file", "table", table, "path", path)
	return nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

type float64er interface {
	Float64() float64
}

func convertValue(val any) any {
	switch v := val.(type) {
	case nil:
		return nil
	case []byte:
		return string(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return v
	case float32:
		return float64(v)
	case *big.Int:
		if v.IsInt64() {
			return v.Int64()
		}
		return v.String()
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format("2006-01-02")
		}
		return v.Format(time.RFC3339)
	case float64er:
		return v.Float64()
	default:
		return v
	}
}
