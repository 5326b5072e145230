package nlq

import (
	"context"
	"errors"
	"strings"
)

// ResultSet is what a Datastore returns for a successful read.
type ResultSet struct {
	Columns []string
	Rows    []map[string]any
}

// Datastore runs one self-contained read-only statement.
type Datastore interface {
	Run(ctx context.Context, sql string) (*ResultSet, error)
}

// Executor turns a SQL candidate into an ExecutionOutcome.
type Executor interface {
	Execute(ctx context.Context, sql string) ExecutionOutcome
}

// engineError is implemented by datastore errors that carry the engine's own message.
type engineError interface {
	EngineMessage() string
}

type SQLExecutor struct {
	store   Datastore
	guard   *Guard
	maxRows int
}

func NewSQLExecutor(store Datastore, maxRows int) *SQLExecutor {
	if maxRows <= 0 {
		maxRows = 200
	}
	return &SQLExecutor{store: store, guard: NewGuard(), maxRows: maxRows}
}

func (e *SQLExecutor) Execute(ctx context.Context, sql string) ExecutionOutcome {
	if err := e.guard.Check(sql); err != nil {
		var dis *DisallowedError
		if errors.As(err, &dis) {
			return Failure(ErrorKindDisallowed, dis.Reason)
		}
		return Failure(ErrorKindExecution, err.Error())
	}

	res, err := e.store.Run(ctx, cleanSQL(sql))
	if err != nil {
		return classifyStoreError(err)
	}

	rows := res.Rows
	if len(rows) > e.maxRows {
		rows = rows[:e.maxRows]
	}
	return Success(res.Columns, rows)
}

func classifyStoreError(err error) ExecutionOutcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return Failure(ErrorKindTimeout, "query timed out: "+err.Error())
	}
	var ee engineError
	if errors.As(err, &ee) {
		if errors.Is(err, ErrQueryTimeout) {
			return Failure(ErrorKindTimeout, ee.EngineMessage())
		}
		return Failure(ErrorKindExecution, ee.EngineMessage())
	}
	return Failure(ErrorKindExecution, strings.TrimSpace(err.Error()))
}
