package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Retrying retries transport failures of an oracle call. It is independent of
// the SQL repair loop: a flaky network never consumes a resolution attempt.
type Retrying struct {
	next     Oracle
	maxTries uint
	initial  time.Duration
	log      *slog.Logger
}

func NewRetrying(next Oracle, maxTries uint, log *slog.Logger) *Retrying {
	if maxTries == 0 {
		maxTries = 2
	}
	if log == nil {
		log = slog.Default()
	}
	return &Retrying{next: next, maxTries: maxTries, initial: 500 * time.Millisecond, log: log}
}

func (r *Retrying) Complete(ctx context.Context, prompt string) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initial

	attempt := 0
	return backoff.Retry(ctx, func() (string, error) {
		attempt++
		if attempt > 1 {
			r.log.Warn("oracle call failed, retrying", "attempt", attempt)
		}
		text, err := r.next.Complete(ctx, prompt)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		return text, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(r.maxTries))
}
