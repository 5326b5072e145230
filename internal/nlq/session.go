package nlq

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyQuestion = errors.New("question is empty")
	ErrNoSQL         = errors.New("no sql in oracle response")
)

type ErrorKind int

const (
	ErrorKindNone ErrorKind = iota
	ErrorKindGeneration
	ErrorKindExecution
	ErrorKindTimeout
	ErrorKindDisallowed
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindGeneration:
		return "generation_error"
	case ErrorKindExecution:
		return "execution_error"
	case ErrorKindTimeout:
		return "timeout"
	case ErrorKindDisallowed:
		return "disallowed_operation"
	default:
		return "none"
	}
}

// Retryable reports whether a failure of this kind may be repaired by another
// resolution attempt. Disallowed statements never are.
func (k ErrorKind) Retryable() bool {
	return k != ErrorKindDisallowed && k != ErrorKindNone
}

// ExecutionOutcome is either a success (Columns/Rows) or a failure (Kind/Message).
type ExecutionOutcome struct {
	OK      bool
	Columns []string
	Rows    []map[string]any

	Kind    ErrorKind
	Message string
}

func Success(columns []string, rows []map[string]any) ExecutionOutcome {
	return ExecutionOutcome{OK: true, Columns: columns, Rows: rows}
}

func Failure(kind ErrorKind, message string) ExecutionOutcome {
	return ExecutionOutcome{Kind: kind, Message: message}
}

func (o ExecutionOutcome) String() string {
	if o.OK {
		return fmt.Sprintf("success(%d rows)", len(o.Rows))
	}
	return fmt.Sprintf("failure(%s: %s)", o.Kind, o.Message)
}

type VerdictKind int

const (
	VerdictValid VerdictKind = iota
	VerdictEmpty
	VerdictMalformed
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictValid:
		return "valid"
	case VerdictEmpty:
		return "empty"
	case VerdictMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// ValidationVerdict classifies a successful execution. Shape is "scalar" for a
// single-cell result and "table" otherwise.
type ValidationVerdict struct {
	Kind    VerdictKind
	Reason  string
	Shape   string
	Columns []string
	Rows    []map[string]any
}

type Termination int

const (
	TerminationAnswered Termination = iota
	TerminationEmpty
	TerminationMalformed
	TerminationDisallowed
	TerminationBudgetExhausted
	TerminationCanceled
	TerminationSchemaUnavailable
)

func (t Termination) String() string {
	switch t {
	case TerminationAnswered:
		return "answered"
	case TerminationEmpty:
		return "empty_result"
	case TerminationMalformed:
		return "malformed_result"
	case TerminationDisallowed:
		return "disallowed_operation"
	case TerminationBudgetExhausted:
		return "budget_exhausted"
	case TerminationCanceled:
		return "canceled"
	case TerminationSchemaUnavailable:
		return "schema_unavailable"
	default:
		return "unknown"
	}
}

// Succeeded is true when the terminal result is backed by an executed row set.
func (t Termination) Succeeded() bool {
	switch t {
	case TerminationAnswered, TerminationEmpty, TerminationMalformed:
		return true
	default:
		return false
	}
}

// SessionResult is what the synthesizer receives: either a verdict or the last failure.
type SessionResult struct {
	Termination Termination
	Verdict     *ValidationVerdict
	Failure     *ExecutionOutcome
	Attempts    int
}

// RepairContext is the failed SQL and the error it produced.
type RepairContext struct {
	FailedSQL string
	Kind      ErrorKind
	Error     string
}

// QuerySession is the mutable state of one question. It is owned by a single
// Controller.Run call and never shared.
type QuerySession struct {
	ID       string
	Question string
	Schema   Schema

	SQL       string
	LastError *RepairContext
	Attempts  int
	Result    *SessionResult
}

func (s *QuerySession) recordFailure(o ExecutionOutcome) {
	s.LastError = &RepairContext{FailedSQL: s.SQL, Kind: o.Kind, Error: o.Message}
}

func (s *QuerySession) clearError() {
	s.LastError = nil
}

// FinalAnswer is the controller's output.
type FinalAnswer struct {
	Text        string
	Attempts    int
	Termination Termination
}

func (a FinalAnswer) Succeeded() bool {
	return a.Termination.Succeeded()
}

// AskResult is the only shape exposed to callers of AskQuestion.
type AskResult struct {
	AnswerText   string `json:"answer" dynamodbav:"AnswerText"`
	AttemptsUsed int    `json:"attempts_used" dynamodbav:"AttemptsUsed"`
	Succeeded    bool   `json:"succeeded" dynamodbav:"Succeeded"`
}
