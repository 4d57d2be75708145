package escalation

import "sync"

// DefaultTranscriptLimit bounds how many recent messages a manager report
// quotes per conversation.
const DefaultTranscriptLimit = 10

// Transcript keeps the most recent client-visible messages per conversation
// so manager alerts can quote them. A nil *Transcript is a valid no-op
// recorder. Safe for concurrent use.
type Transcript struct {
	mu      sync.Mutex
	limit   int
	entries map[string][]TranscriptEntry
}

func NewTranscript(limit int) *Transcript {
	if limit <= 0 {
		limit = DefaultTranscriptLimit
	}
	return &Transcript{
		limit:   limit,
		entries: make(map[string][]TranscriptEntry),
	}
}

// Record appends one message to the conversation's ring, evicting the oldest
// entry once the limit is reached.
func (t *Transcript) Record(chatID, role, content string) {
	if t == nil || chatID == "" || content == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := append(t.entries[chatID], TranscriptEntry{Role: role, Content: content})
	if len(entries) > t.limit {
		entries = entries[len(entries)-t.limit:]
	}
	t.entries[chatID] = entries
}

// Recent returns the conversation's messages oldest first. The slice is a
// copy; callers may keep it.
func (t *Transcript) Recent(chatID string) []TranscriptEntry {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.entries[chatID]
	if len(entries) == 0 {
		return nil
	}
	out := make([]TranscriptEntry, len(entries))
	copy(out, entries)
	return out
}
