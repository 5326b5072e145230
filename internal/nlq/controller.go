package nlq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type State int

const (
	StateResolving State = iota
	StateExtracting
	StateValidating
	StateSynthesizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateExtracting:
		return "extracting"
	case StateValidating:
		return "validating"
	case StateSynthesizing:
		return "synthesizing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

const (
	DefaultMaxAttempts  = 3
	DefaultStageTimeout = 30 * time.Second
)

type Options struct {
	// MaxAttempts bounds Resolving->Extracting cycles. Must be >= 1.
	MaxAttempts int
	// StageTimeout bounds each resolve/execute/synthesize call; expiry is a retryable failure.
	StageTimeout time.Duration
	// RetryOnUnusable also loops back on Empty/Malformed verdicts while budget remains.
	RetryOnUnusable bool
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts < 1 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.StageTimeout <= 0 {
		o.StageTimeout = DefaultStageTimeout
	}
	return o
}

// Observer receives per-attempt and per-session events, e.g. for metrics.
type Observer interface {
	AttemptFinished(outcome string)
	SessionFinished(termination string, attempts int, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) AttemptFinished(string) {}

func (nopObserver) SessionFinished(string, int, time.Duration) {}

// Controller is the self-correcting resolution state machine. It is stateless
// between Run calls and safe for concurrent use when its collaborators are.
type Controller struct {
	resolver  Resolver
	executor  Executor
	validator ResultValidator
	synth     Synthesizer
	opt       Options
	log       *slog.Logger
	obs       Observer
}

func NewController(r Resolver, e Executor, v ResultValidator, s Synthesizer, opt Options, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{
		resolver:  r,
		executor:  e,
		validator: v,
		synth:     s,
		opt:       opt.withDefaults(),
		log:       log,
		obs:       nopObserver{},
	}
}

func (c *Controller) WithObserver(o Observer) *Controller {
	if o != nil {
		c.obs = o
	}
	return c
}

func (c *Controller) MaxAttempts() int {
	return c.opt.MaxAttempts
}

// Run resolves one question. It never returns an error: every terminal
// condition is turned into text by the synthesizer.
func (c *Controller) Run(ctx context.Context, question string, schema Schema) FinalAnswer {
	start := time.Now()
	sess := &QuerySession{ID: uuid.NewString(), Question: question, Schema: schema}
	log := c.log.With("session_id", sess.ID)

	var (
		state   = StateResolving
		pending *ExecutionOutcome
		outcome ExecutionOutcome
		text    string
	)

	for state != StateDone {
		next := state
		switch state {
		case StateResolving:
			if ctx.Err() != nil {
				sess.Result = &SessionResult{Termination: TerminationCanceled, Failure: &ExecutionOutcome{Kind: ErrorKindTimeout, Message: ctx.Err().Error()}, Attempts: sess.Attempts}
				next = StateSynthesizing
				break
			}
			sess.Attempts++
			pending = c.resolve(ctx, sess)
			next = StateExtracting

		case StateExtracting:
			if pending != nil {
				outcome = *pending
				pending = nil
			} else {
				outcome = c.execute(ctx, sess.SQL)
			}
			c.obs.AttemptFinished(attemptLabel(outcome))

			if outcome.OK {
				sess.clearError()
				next = StateValidating
				break
			}

			sess.recordFailure(outcome)
			log.Debug("attempt failed", "attempt", sess.Attempts, "kind", outcome.Kind.String(), "error", outcome.Message)
			failure := outcome
			switch {
			case ctx.Err() != nil:
				sess.Result = &SessionResult{Termination: TerminationCanceled, Failure: &failure, Attempts: sess.Attempts}
				next = StateSynthesizing
			case !outcome.Kind.Retryable():
				sess.Result = &SessionResult{Termination: TerminationDisallowed, Failure: &failure, Attempts: sess.Attempts}
				next = StateSynthesizing
			case sess.Attempts < c.opt.MaxAttempts:
				next = StateResolving
			default:
				sess.Result = &SessionResult{Termination: TerminationBudgetExhausted, Failure: &failure, Attempts: sess.Attempts}
				next = StateSynthesizing
			}

		case StateValidating:
			verdict := c.validator.Validate(question, outcome)
			if c.opt.RetryOnUnusable && verdict.Kind != VerdictValid && sess.Attempts < c.opt.MaxAttempts {
				sess.LastError = &RepairContext{FailedSQL: sess.SQL, Kind: ErrorKindExecution, Error: unusableMessage(verdict)}
				next = StateResolving
				break
			}
			sess.Result = &SessionResult{Termination: terminationFor(verdict), Verdict: &verdict, Attempts: sess.Attempts}
			next = StateSynthesizing

		case StateSynthesizing:
			sctx, cancel := context.WithTimeout(ctx, c.opt.StageTimeout)
			text = c.synth.Synthesize(sctx, question, *sess.Result)
			cancel()
			next = StateDone
		}

		if next != state {
			log.Debug("transition", "from", state.String(), "to", next.String(), "attempt", sess.Attempts)
		}
		state = next
	}

	elapsed := time.Since(start)
	c.obs.SessionFinished(sess.Result.Termination.String(), sess.Attempts, elapsed)
	log.Info("session finished",
		"termination", sess.Result.Termination.String(),
		"attempts", sess.Attempts,
		"duration", elapsed,
	)

	return FinalAnswer{Text: text, Attempts: sess.Attempts, Termination: sess.Result.Termination}
}

// resolve asks for the next SQL candidate. A resolver failure becomes a
// synthetic failure outcome so it is accounted like an execution failure.
func (c *Controller) resolve(ctx context.Context, sess *QuerySession) *ExecutionOutcome {
	rctx, cancel := context.WithTimeout(ctx, c.opt.StageTimeout)
	defer cancel()

	sql, err := c.resolver.Resolve(rctx, ResolveRequest{
		Question: sess.Question,
		Schema:   sess.Schema,
		Repair:   sess.LastError,
		Attempt:  sess.Attempts,
	})
	if err == nil && cleanSQL(sql) == "" {
		err = ErrNoSQL
	}
	if err != nil {
		sess.SQL = ""
		kind := ErrorKindGeneration
		if ctx.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || rctx.Err() != nil) {
			kind = ErrorKindTimeout
		}
		o := Failure(kind, fmt.Sprintf("generation error: %v", err))
		return &o
	}
	sess.SQL = sql
	return nil
}

func (c *Controller) execute(ctx context.Context, sql string) ExecutionOutcome {
	ectx, cancel := context.WithTimeout(ctx, c.opt.StageTimeout)
	defer cancel()

	o := c.executor.Execute(ectx, sql)
	if !o.OK && o.Kind == ErrorKindNone {
		o.Kind = ErrorKindExecution
		if o.Message == "" {
			o.Message = "query failed without an error message"
		}
	}
	if !o.OK && o.Kind != ErrorKindTimeout && o.Kind != ErrorKindDisallowed && ctx.Err() == nil && ectx.Err() != nil {
		o = Failure(ErrorKindTimeout, "query timed out: "+o.Message)
	}
	return o
}

func terminationFor(v ValidationVerdict) Termination {
	switch v.Kind {
	case VerdictEmpty:
		return TerminationEmpty
	case VerdictMalformed:
		return TerminationMalformed
	default:
		return TerminationAnswered
	}
}

func unusableMessage(v ValidationVerdict) string {
	if v.Kind == VerdictEmpty {
		return "query returned no rows"
	}
	return "query result looks wrong: " + v.Reason
}

func attemptLabel(o ExecutionOutcome) string {
	if o.OK {
		return "success"
	}
	return o.Kind.String()
}
