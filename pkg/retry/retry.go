// Package retry wraps a turn runner with bounded re-execution of transient
// endpoint failures. When the attempts run out the turn is converted into a
// manager escalation instead of an error, so the client always gets an
// answer.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/salonkit/concierge/pkg/escalation"
	"github.com/salonkit/concierge/pkg/httpclient"
	"github.com/salonkit/concierge/pkg/llm"
	"github.com/salonkit/concierge/pkg/orchestrator"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
)

// TurnRunner mirrors orchestrator.RunTurn.
type TurnRunner interface {
	RunTurn(ctx context.Context, in orchestrator.TurnInput) (*orchestrator.Result, error)
}

// Runner re-runs failed turns. It satisfies TurnRunner itself, so it can be
// dropped in front of any orchestrator.
type Runner struct {
	inner       TurnRunner
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

type Option func(*Runner)

func WithMaxAttempts(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.baseDelay = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

func New(inner TurnRunner, opts ...Option) *Runner {
	r := &Runner{
		inner:       inner,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		logger:      slog.Default(),
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunTurn runs the turn, retrying transient failures with linear backoff.
// Exhausted attempts yield an escalated Result and a nil error; only a
// non-transient failure is returned as an error.
func (r *Runner) RunTurn(ctx context.Context, in orchestrator.TurnInput) (*orchestrator.Result, error) {
	var lastErr error
	var lastResult *orchestrator.Result

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		result, err := r.inner.RunTurn(ctx, in)
		if err == nil {
			return result, nil
		}
		if !Transient(err) {
			return result, err
		}

		lastErr = err
		lastResult = result
		r.logger.Warn("transient turn failure",
			"attempt", attempt, "max_attempts", r.maxAttempts,
			"conversation", in.ConversationID, "error", err)

		if attempt < r.maxAttempts {
			if err := r.sleep(ctx, time.Duration(attempt)*r.baseDelay); err != nil {
				return result, err
			}
		}
	}

	r.logger.Error("turn failed after all attempts, escalating",
		"conversation", in.ConversationID, "error", lastErr)

	if lastResult == nil {
		lastResult = &orchestrator.Result{ResponseID: in.PreviousResponseID}
	}
	lastResult.Escalation = escalation.Escalate(
		fmt.Sprintf("Automatic hand-off: the assistant could not complete the turn (%v)", lastErr),
		in.ConversationID, nil)
	lastResult.Reply = lastResult.Escalation.UserMessage
	return lastResult, nil
}

// Transient reports whether err looks like a temporary endpoint condition
// worth retrying: a transport-level failure, an explicitly retryable HTTP
// status, or the endpoint's own internal-error text.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if httpclient.IsRetryable(err) {
		return true
	}

	var transportErr *llm.TransportError
	if errors.As(err, &transportErr) {
		switch {
		case transportErr.StatusCode == 0:
			return true // network failure or undecodable body
		case transportErr.StatusCode == 429:
			return true
		case transportErr.StatusCode >= 500:
			return true
		}
		return strings.Contains(strings.ToLower(transportErr.Body), "internal server error")
	}
	return strings.Contains(strings.ToLower(err.Error()), "internal server error")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
