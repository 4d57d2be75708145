package tools

import (
	"context"

	"github.com/salonkit/concierge/pkg/escalation"
)

// TranscriptFunc fetches the recent client-visible messages for a chat. Used
// only when building a manager alert; may be nil.
type TranscriptFunc func(chatID string) []escalation.TranscriptEntry

// NewCallManagerTool builds the hand-off tool. Its handler never returns a
// result: it always returns the escalation signal, which aborts the turn and
// is surfaced to the caller instead of being recorded as a tool output.
func NewCallManagerTool(transcript TranscriptFunc) Tool {
	return NewFuncTool(Definition{
		Name:        "CallManager",
		Description: "Hand the conversation over to a human manager. Use when the client asks for a person, is upset, or the request cannot be handled with the other tools.",
		Parameters: map[string]Parameter{
			"reason": {Type: "string", Description: "Short summary of why the manager is needed.", Required: true},
		},
	}, func(ctx context.Context, inv Invocation) (string, error) {
		reason := argString(inv.Args, "reason")
		if reason == "" {
			reason = inv.Message
		}

		var history []escalation.TranscriptEntry
		if transcript != nil {
			history = transcript(inv.ChatID)
		}
		return "", escalation.Escalate(reason, inv.ChatID, history)
	})
}
