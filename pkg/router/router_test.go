package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonkit/concierge/pkg/escalation"
	"github.com/salonkit/concierge/pkg/orchestrator"
	"github.com/salonkit/concierge/pkg/retry"
	"github.com/salonkit/concierge/pkg/stage"
	"github.com/salonkit/concierge/pkg/store"
)

type stubRunner struct {
	result *orchestrator.Result
	err    error
	hook   func(orchestrator.TurnInput) *orchestrator.Result
	inputs []orchestrator.TurnInput
}

func (s *stubRunner) RunTurn(ctx context.Context, in orchestrator.TurnInput) (*orchestrator.Result, error) {
	s.inputs = append(s.inputs, in)
	if s.hook != nil {
		return s.hook(in), s.err
	}
	return s.result, s.err
}

func classifierFor(reply, responseID string) *stage.Classifier {
	return stage.NewClassifier(&stubRunner{result: &orchestrator.Result{
		Reply:      reply,
		ResponseID: responseID,
	}})
}

func escalatingClassifier(sig *escalation.Signal) *stage.Classifier {
	return stage.NewClassifier(&stubRunner{result: &orchestrator.Result{
		ResponseID: "cls_resp",
		Escalation: sig,
	}})
}

func TestRoute_HappyPath(t *testing.T) {
	ctx := context.Background()
	tokens := store.NewMemoryStore()
	require.NoError(t, tokens.Put(ctx, "chat-1", "agent_prev"))
	require.NoError(t, tokens.Put(ctx, "chat-1:stage", "cls_prev"))

	booking := &stubRunner{result: &orchestrator.Result{Reply: "You are booked!", ResponseID: "agent_new"}}
	fallback := &stubRunner{result: &orchestrator.Result{Reply: "fallback"}}

	r, err := New(classifierFor("booking", "cls_new"),
		map[stage.Stage]retry.TurnRunner{
			stage.Booking:              booking,
			stage.InformationGathering: fallback,
		}, tokens)
	require.NoError(t, err)

	reply, err := r.Route(ctx, Message{ConversationID: "chat-1", Text: "book me in"})
	require.NoError(t, err)

	assert.Equal(t, "You are booked!", reply.Text)
	assert.Equal(t, stage.Booking, reply.Stage)
	assert.False(t, reply.Escalated)

	// Agent got its own continuation token, not the classifier's.
	require.Len(t, booking.inputs, 1)
	assert.Equal(t, "agent_prev", booking.inputs[0].PreviousResponseID)
	assert.Empty(t, fallback.inputs)

	// Both tokens advanced.
	tok, _ := tokens.Get(ctx, "chat-1")
	assert.Equal(t, "agent_new", tok)
	tok, _ = tokens.Get(ctx, "chat-1:stage")
	assert.Equal(t, "cls_new", tok)
}

func TestRoute_MissingAgentUsesFallback(t *testing.T) {
	fallback := &stubRunner{result: &orchestrator.Result{Reply: "let me help"}}

	r, err := New(classifierFor("reschedule", "cls_new"),
		map[stage.Stage]retry.TurnRunner{
			stage.InformationGathering: fallback,
		}, store.NewMemoryStore())
	require.NoError(t, err)

	reply, err := r.Route(context.Background(), Message{ConversationID: "chat-2", Text: "move it"})
	require.NoError(t, err)

	assert.Equal(t, stage.InformationGathering, reply.Stage)
	assert.Len(t, fallback.inputs, 1)
}

func TestRoute_ClassifierEscalationSkipsAgents(t *testing.T) {
	sig := escalation.Escalate("client demands a human", "chat-3", nil)
	agent := &stubRunner{result: &orchestrator.Result{Reply: "never"}}

	tokens := store.NewMemoryStore()
	r, err := New(escalatingClassifier(sig),
		map[stage.Stage]retry.TurnRunner{stage.InformationGathering: agent}, tokens)
	require.NoError(t, err)

	reply, err := r.Route(context.Background(), Message{ConversationID: "chat-3", Text: "manager!"})
	require.NoError(t, err)

	assert.True(t, reply.Escalated)
	assert.Equal(t, escalation.DefaultUserMessage, reply.Text)
	assert.Contains(t, reply.ManagerAlert, "client demands a human")
	assert.Empty(t, agent.inputs)

	tok, _ := tokens.Get(context.Background(), "chat-3:stage")
	assert.Equal(t, "cls_resp", tok)
}

func TestRoute_AgentEscalation(t *testing.T) {
	sig := escalation.Escalate("booking backend is down", "chat-4", nil)
	agent := &stubRunner{result: &orchestrator.Result{ResponseID: "agent_resp", Escalation: sig}}

	r, err := New(classifierFor("booking", "cls_new"),
		map[stage.Stage]retry.TurnRunner{
			stage.Booking:              agent,
			stage.InformationGathering: agent,
		}, store.NewMemoryStore())
	require.NoError(t, err)

	reply, err := r.Route(context.Background(), Message{ConversationID: "chat-4", Text: "book"})
	require.NoError(t, err)

	assert.True(t, reply.Escalated)
	assert.Equal(t, escalation.DefaultUserMessage, reply.Text)
	assert.Contains(t, reply.ManagerAlert, "booking backend is down")
}

func TestRoute_EmptyReplyGetsDefault(t *testing.T) {
	agent := &stubRunner{result: &orchestrator.Result{Rounds: 10}}

	r, err := New(classifierFor("greeting", "cls_new"),
		map[stage.Stage]retry.TurnRunner{
			stage.Greeting:             agent,
			stage.InformationGathering: agent,
		}, store.NewMemoryStore())
	require.NoError(t, err)

	reply, err := r.Route(context.Background(), Message{ConversationID: "chat-5", Text: "..."})
	require.NoError(t, err)
	assert.Equal(t, DefaultReply, reply.Text)
}

func TestRoute_RecordsTranscript(t *testing.T) {
	transcript := escalation.NewTranscript(10)
	agent := &stubRunner{result: &orchestrator.Result{Reply: "14:30 is free"}}

	r, err := New(classifierFor("booking", "cls_new"),
		map[stage.Stage]retry.TurnRunner{
			stage.Booking:              agent,
			stage.InformationGathering: agent,
		}, store.NewMemoryStore(),
		WithTranscript(transcript))
	require.NoError(t, err)

	_, err = r.Route(context.Background(), Message{ConversationID: "chat-6", Text: "any slots today?"})
	require.NoError(t, err)

	recent := transcript.Recent("chat-6")
	require.Len(t, recent, 2)
	assert.Equal(t, escalation.TranscriptEntry{Role: "user", Content: "any slots today?"}, recent[0])
	assert.Equal(t, escalation.TranscriptEntry{Role: "assistant", Content: "14:30 is free"}, recent[1])
}

func TestRoute_EscalationAlertQuotesTranscript(t *testing.T) {
	// The hand-off tool reads the same transcript the router writes, so the
	// alert quotes the message that triggered it.
	transcript := escalation.NewTranscript(10)
	agent := &stubRunner{}
	agent.hook = func(in orchestrator.TurnInput) *orchestrator.Result {
		return &orchestrator.Result{
			ResponseID: "agent_resp",
			Escalation: escalation.Escalate("client is stuck", in.ConversationID, transcript.Recent(in.ConversationID)),
		}
	}

	r, err := New(classifierFor("booking", "cls_new"),
		map[stage.Stage]retry.TurnRunner{
			stage.Booking:              agent,
			stage.InformationGathering: agent,
		}, store.NewMemoryStore(),
		WithTranscript(transcript))
	require.NoError(t, err)

	reply, err := r.Route(context.Background(), Message{ConversationID: "chat-7", Text: "nothing works, get me a person"})
	require.NoError(t, err)

	assert.True(t, reply.Escalated)
	assert.Contains(t, reply.ManagerAlert, "nothing works, get me a person")
	assert.NotContains(t, reply.ManagerAlert, "Message history unavailable")
}

func TestRoute_Validation(t *testing.T) {
	agent := &stubRunner{result: &orchestrator.Result{Reply: "hi"}}
	agents := map[stage.Stage]retry.TurnRunner{stage.InformationGathering: agent}

	_, err := New(nil, agents, store.NewMemoryStore())
	assert.Error(t, err)

	_, err = New(classifierFor("greeting", ""), nil, store.NewMemoryStore())
	assert.Error(t, err)

	_, err = New(classifierFor("greeting", ""), map[stage.Stage]retry.TurnRunner{stage.Booking: agent}, store.NewMemoryStore())
	assert.Error(t, err, "fallback stage must have an agent")

	r, err := New(classifierFor("greeting", ""), agents, store.NewMemoryStore())
	require.NoError(t, err)
	_, err = r.Route(context.Background(), Message{Text: "no id"})
	assert.Error(t, err)
}
