package nlq

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// Asker is the single entry point exposed to the UI layer.
type Asker interface {
	AskQuestion(ctx context.Context, question string) (AskResult, error)
}

// AnswerCache stores successful answers per (question, schema).
type AnswerCache interface {
	Get(ctx context.Context, key CacheKey) (*AskResult, bool, error)
	Put(ctx context.Context, key CacheKey, res AskResult) error
}

// Notifier is told about sessions that ended without an answer.
type Notifier interface {
	NotifyFailure(ctx context.Context, question string, answer FinalAnswer) error
}

type Assistant struct {
	catalog    SchemaCatalog
	controller *Controller
	cache      AnswerCache
	notifier   Notifier
	log        *slog.Logger
}

type AssistantOption func(*Assistant)

func WithAnswerCache(c AnswerCache) AssistantOption {
	return func(a *Assistant) { a.cache = c }
}

func WithNotifier(n Notifier) AssistantOption {
	return func(a *Assistant) { a.notifier = n }
}

func NewAssistant(catalog SchemaCatalog, controller *Controller, log *slog.Logger, opts ...AssistantOption) *Assistant {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	a := &Assistant{catalog: catalog, controller: controller, log: log}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Assistant) AskQuestion(ctx context.Context, question string) (AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return AskResult{}, ErrEmptyQuestion
	}

	schema, err := a.catalog.Describe(ctx)
	if err != nil {
		a.log.Error("schema describe failed", "error", err)
		return AskResult{
			AnswerText: FailureText(SessionResult{
				Termination: TerminationSchemaUnavailable,
				Failure:     &ExecutionOutcome{Message: err.Error()},
			}),
		}, nil
	}

	key := CacheKey{Question: question, SchemaHash: schema.Hash(), MaxAttempts: a.controller.MaxAttempts()}
	if a.cache != nil {
		if cached, ok, err := a.cache.Get(ctx, key); err != nil {
			a.log.Warn("answer cache get failed", "error", err)
		} else if ok {
			a.log.Debug("answer cache hit")
			return *cached, nil
		}
	}

	ans := a.controller.Run(ctx, question, schema)
	res := AskResult{AnswerText: ans.Text, AttemptsUsed: ans.Attempts, Succeeded: ans.Succeeded()}

	if ans.Termination == TerminationAnswered && a.cache != nil {
		if err := a.cache.Put(ctx, key, res); err != nil {
			a.log.Warn("answer cache put failed", "error", err)
		}
	}
	if (ans.Termination == TerminationBudgetExhausted || ans.Termination == TerminationDisallowed) && a.notifier != nil {
		if err := a.notifier.NotifyFailure(ctx, question, ans); err != nil {
			a.log.Warn("failure notification failed", "error", err)
		}
	}
	return res, nil
}
