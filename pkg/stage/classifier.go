package stage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/salonkit/concierge/pkg/escalation"
	"github.com/salonkit/concierge/pkg/orchestrator"
)

// DefaultFallback is the stage used when classification produces nothing
// usable. The information-gathering persona is the safest generalist.
const DefaultFallback = InformationGathering

// TurnRunner runs one model turn. *orchestrator.Orchestrator and the retry
// wrapper both satisfy it.
type TurnRunner interface {
	RunTurn(ctx context.Context, in orchestrator.TurnInput) (*orchestrator.Result, error)
}

// Detection is a classified message. Escalation is non-nil when the
// classifier turn itself raised a hand-off; the stage is then the fallback.
type Detection struct {
	Stage      Stage
	ResponseID string
	Escalation *escalation.Signal
}

type Classifier struct {
	runner   TurnRunner
	fallback Stage
	logger   *slog.Logger
}

type ClassifierOption func(*Classifier)

func WithFallback(s Stage) ClassifierOption {
	return func(c *Classifier) {
		if Valid(s) {
			c.fallback = s
		}
	}
}

func WithClassifierLogger(l *slog.Logger) ClassifierOption {
	return func(c *Classifier) { c.logger = l }
}

func NewClassifier(runner TurnRunner, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		runner:   runner,
		fallback: DefaultFallback,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify runs one classifier turn and parses the reply into a stage. Any
// unusable reply degrades to the fallback stage; a transport failure is the
// only error.
func (c *Classifier) Classify(ctx context.Context, in orchestrator.TurnInput) (*Detection, error) {
	result, err := c.runner.RunTurn(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	det := &Detection{Stage: c.fallback, ResponseID: result.ResponseID}
	if result.Escalation != nil {
		det.Escalation = result.Escalation
		return det, nil
	}

	parsed, ok, confident := Parse(result.Reply)
	if !ok {
		c.logger.Warn("unparseable stage reply, using fallback",
			"reply", result.Reply, "fallback", c.fallback)
		return det, nil
	}
	if !confident {
		c.logger.Warn("stage recognized only by substring match",
			"reply", result.Reply, "stage", parsed)
	}
	det.Stage = parsed
	return det, nil
}
