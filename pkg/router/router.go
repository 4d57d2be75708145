// Package router runs the full message flow: load continuation tokens,
// classify the message into a stage, hand the turn to that stage's agent and
// persist the updated tokens. It is the only layer that reads and writes the
// token store.
package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/salonkit/concierge/pkg/escalation"
	"github.com/salonkit/concierge/pkg/orchestrator"
	"github.com/salonkit/concierge/pkg/retry"
	"github.com/salonkit/concierge/pkg/stage"
	"github.com/salonkit/concierge/pkg/store"
)

// DefaultReply covers turns that end without text: an exhausted round budget
// or a model that answered with nothing.
const DefaultReply = "Sorry, I could not put together an answer. Could you rephrase your question?"

// classifierKeySuffix separates the classifier's conversation thread from the
// persona's in the token store.
const classifierKeySuffix = ":stage"

// Reply is the user-facing outcome of one message.
type Reply struct {
	Text         string
	Stage        stage.Stage
	Escalated    bool
	ManagerAlert string
}

// Message is one inbound user message.
type Message struct {
	ConversationID string
	Text           string
}

type Router struct {
	classifier *stage.Classifier
	agents     map[stage.Stage]retry.TurnRunner
	fallback   stage.Stage
	tokens     store.TokenStore
	transcript *escalation.Transcript
	logger     *slog.Logger
}

type Option func(*Router)

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithTranscript records every exchanged message so manager alerts can quote
// the recent conversation.
func WithTranscript(t *escalation.Transcript) Option {
	return func(r *Router) { r.transcript = t }
}

// WithFallbackStage sets the stage used when no agent is configured for the
// detected one.
func WithFallbackStage(s stage.Stage) Option {
	return func(r *Router) {
		if stage.Valid(s) {
			r.fallback = s
		}
	}
}

func New(classifier *stage.Classifier, agents map[stage.Stage]retry.TurnRunner, tokens store.TokenStore, opts ...Option) (*Router, error) {
	if classifier == nil {
		return nil, fmt.Errorf("router: classifier is required")
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("router: at least one agent is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("router: token store is required")
	}

	r := &Router{
		classifier: classifier,
		agents:     agents,
		fallback:   stage.DefaultFallback,
		tokens:     tokens,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if _, ok := r.agents[r.fallback]; !ok {
		return nil, fmt.Errorf("router: no agent configured for fallback stage %q", r.fallback)
	}
	return r, nil
}

// Route processes one message end to end. Escalations come back as a normal
// Reply with the manager alert attached; an error means the turn could not
// run at all.
func (r *Router) Route(ctx context.Context, msg Message) (*Reply, error) {
	if msg.ConversationID == "" {
		return nil, fmt.Errorf("route: conversation id is required")
	}

	// Recorded before classification so an escalation raised anywhere in
	// this turn can quote the message that triggered it.
	r.transcript.Record(msg.ConversationID, "user", msg.Text)

	classifierKey := msg.ConversationID + classifierKeySuffix
	classifierToken, err := r.tokens.Get(ctx, classifierKey)
	if err != nil {
		return nil, fmt.Errorf("route: load classifier token: %w", err)
	}
	agentToken, err := r.tokens.Get(ctx, msg.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("route: load agent token: %w", err)
	}

	det, err := r.classifier.Classify(ctx, orchestrator.TurnInput{
		ConversationID:     msg.ConversationID,
		Message:            msg.Text,
		PreviousResponseID: classifierToken,
	})
	if err != nil {
		return nil, fmt.Errorf("route: %w", err)
	}
	r.persistToken(ctx, classifierKey, det.ResponseID)

	if det.Escalation != nil {
		r.logger.Info("classifier escalated the conversation",
			"conversation", msg.ConversationID)
		return r.reply(msg.ConversationID, &Reply{
			Text:         det.Escalation.UserMessage,
			Stage:        det.Stage,
			Escalated:    true,
			ManagerAlert: det.Escalation.ManagerAlert,
		}), nil
	}

	chosen := det.Stage
	agent, ok := r.agents[chosen]
	if !ok {
		r.logger.Warn("no agent for detected stage, using fallback",
			"stage", chosen, "fallback", r.fallback)
		chosen = r.fallback
		agent = r.agents[chosen]
	}

	result, err := agent.RunTurn(ctx, orchestrator.TurnInput{
		ConversationID:     msg.ConversationID,
		Message:            msg.Text,
		PreviousResponseID: agentToken,
	})
	if err != nil {
		r.persistToken(ctx, msg.ConversationID, resultToken(result))
		return nil, fmt.Errorf("route: stage %s: %w", chosen, err)
	}
	r.persistToken(ctx, msg.ConversationID, result.ResponseID)

	if result.Escalation != nil {
		return r.reply(msg.ConversationID, &Reply{
			Text:         result.Escalation.UserMessage,
			Stage:        chosen,
			Escalated:    true,
			ManagerAlert: result.Escalation.ManagerAlert,
		}), nil
	}

	text := result.Reply
	if text == "" {
		r.logger.Warn("turn produced no reply text",
			"conversation", msg.ConversationID, "stage", chosen, "rounds", result.Rounds)
		text = DefaultReply
	}
	return r.reply(msg.ConversationID, &Reply{Text: text, Stage: chosen}), nil
}

// reply records the outgoing text in the transcript on the way out.
func (r *Router) reply(conversationID string, out *Reply) *Reply {
	r.transcript.Record(conversationID, "assistant", out.Text)
	return out
}

// persistToken best-effort stores a token; a failed write loses continuity
// for the next turn but must not fail this one.
func (r *Router) persistToken(ctx context.Context, key, token string) {
	if token == "" {
		return
	}
	if err := r.tokens.Put(ctx, key, token); err != nil {
		r.logger.Error("failed to persist continuation token", "key", key, "error", err)
	}
}

func resultToken(result *orchestrator.Result) string {
	if result == nil {
		return ""
	}
	return result.ResponseID
}
