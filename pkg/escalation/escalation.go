// Package escalation carries the hand-off signal that aborts a turn and
// routes the conversation to a human operator. The signal travels as an
// error value so it can unwind the orchestration loop from inside a tool
// handler, but it is control flow, not a failure: it must never be
// stringified into a tool invocation record, and only errors.As is allowed
// to recognize it.
package escalation

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultUserMessage is the fixed reassuring reply shown to the client while
// staff pick up the conversation.
const DefaultUserMessage = "Give us a couple of minutes — we are looking into your question and will get back to you shortly 🤍"

const alertHeader = "--- MANAGER ALERT ---"

// Signal aborts the current turn and carries the dual-audience hand-off
// messages. Any tool handler or the retry wrapper above the orchestrator may
// return it.
type Signal struct {
	UserMessage  string
	ManagerAlert string
}

func (s *Signal) Error() string {
	return "conversation escalated to manager"
}

// New builds a Signal with an explicit message pair.
func New(userMessage, managerAlert string) *Signal {
	return &Signal{
		UserMessage:  userMessage,
		ManagerAlert: managerAlert,
	}
}

// From extracts a Signal from an error chain.
func From(err error) (*Signal, bool) {
	var sig *Signal
	if errors.As(err, &sig) {
		return sig, true
	}
	return nil, false
}

// TranscriptEntry is one client-visible message used in the manager report.
type TranscriptEntry struct {
	Role    string // "user" or "assistant"
	Content string
}

// Escalate builds the standard signal for a manager hand-off: a fixed
// reassuring reply for the client and a detailed alert for staff. The
// transcript is rendered oldest first.
func Escalate(reason, clientID string, transcript []TranscriptEntry) *Signal {
	return &Signal{
		UserMessage:  DefaultUserMessage,
		ManagerAlert: FormatAlert(reason, clientID, transcript),
	}
}

// FormatAlert renders the manager-facing report. The client id becomes a
// clickable Telegram deep link so staff can open the chat in one tap.
func FormatAlert(reason, clientID string, transcript []TranscriptEntry) string {
	var b strings.Builder

	b.WriteString(alertHeader)
	b.WriteString("\n")
	if clientID != "" {
		fmt.Fprintf(&b, "Client: [%s](tg://user?id=%s)\n", clientID, clientID)
	}
	b.WriteString("\n**Manager report:**\n\n")

	if len(transcript) > 0 {
		b.WriteString("**Recent messages:**\n")
		for _, entry := range transcript {
			role := "assistant"
			if entry.Role == "user" {
				role = "user"
			}
			fmt.Fprintf(&b, "- %s: %s\n", role, EscapeMarkdown(entry.Content))
		}
		b.WriteString("\n")
	} else {
		b.WriteString("Message history unavailable\n\n")
	}

	fmt.Fprintf(&b, "**Reason:** %s", reason)

	return b.String()
}

var markdownReplacer = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"[", `\[`,
	"]", `\]`,
	"(", `\(`,
	")", `\)`,
	"`", "\\`",
)

// EscapeMarkdown neutralizes markdown control characters in client-supplied
// text before it is embedded into the alert.
func EscapeMarkdown(text string) string {
	if text == "" {
		return text
	}
	return markdownReplacer.Replace(text)
}
