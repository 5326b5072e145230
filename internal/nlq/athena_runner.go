package nlq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
)

var ErrQueryTimeout = errors.New("query timed out")

type AthenaClient interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, params *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
}

type AthenaRunOptions struct {
	Database       string
	Workgroup      string
	OutputLocation string // s3://.../athena-results/
	MaxWait        time.Duration
	PollInterval   time.Duration
	MaxResultRows  int
}

type AthenaError struct {
	State            string
	Reason           string
	QueryExecutionID string
}

func (e *AthenaError) Error() string {
	if e.QueryExecutionID != "" {
		return fmt.Sprintf("athena %s: %s (qid=%s)", e.State, e.Reason, e.QueryExecutionID)
	}
	return fmt.Sprintf("athena %s: %s", e.State, e.Reason)
}

// EngineMessage is the raw StateChangeReason, which is what the fix prompt needs.
func (e *AthenaError) EngineMessage() string {
	return e.Reason
}

func (e *AthenaError) Is(target error) bool {
	return target == ErrQueryTimeout && e.State == "TIMEOUT"
}

// AthenaStore is a Datastore backed by Athena.
type AthenaStore struct {
	client AthenaClient
	opt    AthenaRunOptions
}

func NewAthenaStore(c AthenaClient, opt AthenaRunOptions) (*AthenaStore, error) {
	if strings.TrimSpace(opt.Database) == "" {
		return nil, fmt.Errorf("missing athena database")
	}
	if strings.TrimSpace(opt.Workgroup) == "" {
		opt.Workgroup = "primary"
	}
	if strings.TrimSpace(opt.OutputLocation) == "" {
		return nil, fmt.Errorf("missing athena output location")
	}
	if !strings.HasPrefix(opt.OutputLocation, "s3://") {
		return nil, fmt.Errorf("athena output location must start with s3://")
	}
	if opt.MaxWait == 0 {
		opt.MaxWait = 25 * time.Second
	}
	if opt.PollInterval == 0 {
		opt.PollInterval = 700 * time.Millisecond
	}
	if opt.MaxResultRows == 0 {
		opt.MaxResultRows = 200
	}
	return &AthenaStore{client: c, opt: opt}, nil
}

func (s *AthenaStore) Run(ctx context.Context, sql string) (*ResultSet, error) {
	startOut, err := s.client.StartQueryExecution(ctx, &athena.StartQueryExecutionInput{
		QueryString: aws.String(sql),
		QueryExecutionContext: &athenatypes.QueryExecutionContext{
			Database: aws.String(s.opt.Database),
		},
		ResultConfiguration: &athenatypes.ResultConfiguration{
			OutputLocation: aws.String(s.opt.OutputLocation),
		},
		WorkGroup: aws.String(s.opt.Workgroup),
	})
	if err != nil {
		return nil, fmt.Errorf("athena StartQueryExecution: %w", err)
	}
	qid := aws.ToString(startOut.QueryExecutionId)

	if err := s.waitForQuery(ctx, qid); err != nil {
		return nil, err
	}
	return s.fetchResults(ctx, qid)
}

func (s *AthenaStore) waitForQuery(ctx context.Context, qid string) error {
	deadline := time.Now().Add(s.opt.MaxWait)
	for {
		if time.Now().After(deadline) {
			return &AthenaError{State: "TIMEOUT", Reason: "query timed out", QueryExecutionID: qid}
		}
		getOut, err := s.client.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(qid),
		})
		if err != nil {
			return fmt.Errorf("athena GetQueryExecution: %w", err)
		}
		status := getOut.QueryExecution.Status

		switch status.State {
		case athenatypes.QueryExecutionStateSucceeded:
			return nil
		case athenatypes.QueryExecutionStateFailed, athenatypes.QueryExecutionStateCancelled:
			return &AthenaError{State: string(status.State), Reason: aws.ToString(status.StateChangeReason), QueryExecutionID: qid}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.opt.PollInterval):
		}
	}
}

func (s *AthenaStore) fetchResults(ctx context.Context, qid string) (*ResultSet, error) {
	var (
		nextToken *string
		allRows   []athenatypes.Row
		colInfo   []athenatypes.ColumnInfo
	)
	for {
		resOut, err := s.client.GetQueryResults(ctx, &athena.GetQueryResultsInput{
			QueryExecutionId: aws.String(qid),
			NextToken:        nextToken,
			MaxResults:       aws.Int32(1000),
		})
		if err != nil {
			return nil, fmt.Errorf("athena GetQueryResults: %w", err)
		}
		if colInfo == nil && resOut.ResultSet.ResultSetMetadata != nil {
			colInfo = resOut.ResultSet.ResultSetMetadata.ColumnInfo
		}
		allRows = append(allRows, resOut.ResultSet.Rows...)
		if aws.ToString(resOut.NextToken) == "" {
			break
		}
		nextToken = resOut.NextToken

		// Safety: avoid huge result pulls
		if len(allRows) > s.opt.MaxResultRows+5 {
			break
		}
	}

	cols := make([]string, 0, len(colInfo))
	for _, c := range colInfo {
		cols = append(cols, aws.ToString(c.Name))
	}

	// Athena returns the header row first
	out := make([]map[string]any, 0, min(s.opt.MaxResultRows, max(0, len(allRows)-1)))
	for i, r := range allRows {
		if i == 0 {
			continue
		}
		if len(out) >= s.opt.MaxResultRows {
			break
		}
		m := map[string]any{}
		for ci, d := range r.Data {
			if ci >= len(cols) {
				continue
			}
			m[cols[ci]] = coerceScalar(aws.ToString(d.VarCharValue))
		}
		out = append(out, m)
	}

	return &ResultSet{Columns: cols, Rows: out}, nil
}

func coerceScalar(v string) any {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}
