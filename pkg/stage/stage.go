// Package stage classifies each incoming message into a conversation stage
// so the router can hand the turn to the right agent persona. The classifier
// is itself a model turn; this package owns the lenient parsing of whatever
// text the model produces into a valid stage.
package stage

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// Stage is a conversation phase with a dedicated agent persona.
type Stage string

const (
	Greeting             Stage = "greeting"
	InformationGathering Stage = "information_gathering"
	Booking              Stage = "booking"
	BookingToMaster      Stage = "booking_to_master"
	CancellationRequest  Stage = "cancellation_request"
	Reschedule           Stage = "reschedule"
	ViewMyBooking        Stage = "view_my_booking"
)

// All lists every stage in declaration order.
func All() []Stage {
	return []Stage{
		Greeting,
		InformationGathering,
		Booking,
		BookingToMaster,
		CancellationRequest,
		Reschedule,
		ViewMyBooking,
	}
}

// Valid reports whether s is a known stage.
func Valid(s Stage) bool {
	for _, known := range All() {
		if s == known {
			return true
		}
	}
	return false
}

func (s Stage) String() string {
	return string(s)
}

// wordPattern matches any stage value as a whole word. Longer values come
// first so "booking_to_master" wins over "booking" inside the same text.
var wordPattern = func() *regexp.Regexp {
	values := make([]string, 0, len(All()))
	for _, s := range All() {
		values = append(values, string(s))
	}
	sort.Slice(values, func(i, j int) bool { return len(values[i]) > len(values[j]) })
	for i, v := range values {
		values[i] = regexp.QuoteMeta(v)
	}
	return regexp.MustCompile(`\b(` + strings.Join(values, "|") + `)\b`)
}()

// Parse extracts a stage from raw model output. It tries, in order: the
// whole trimmed text, the first whitespace-separated token, a whole-word
// match anywhere in the text, a JSON object with a "stage" field, and
// finally a bare substring match. The second return value is false when only
// the substring step matched, so callers can log the sloppy output.
func Parse(raw string) (Stage, bool, bool) {
	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "" {
		return "", false, false
	}

	if s := Stage(text); Valid(s) {
		return s, true, true
	}

	if fields := strings.Fields(text); len(fields) > 0 {
		if s := Stage(strings.Trim(fields[0], `"'.,:;`)); Valid(s) {
			return s, true, true
		}
	}

	if match := wordPattern.FindString(text); match != "" {
		return Stage(match), true, true
	}

	var wrapper struct {
		Stage string `json:"stage"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &wrapper); err == nil {
		if s := Stage(strings.ToLower(strings.TrimSpace(wrapper.Stage))); Valid(s) {
			return s, true, true
		}
	}

	for _, s := range sortedByLength() {
		if strings.Contains(text, string(s)) {
			return s, true, false
		}
	}

	return "", false, false
}

func sortedByLength() []Stage {
	stages := All()
	sort.Slice(stages, func(i, j int) bool { return len(stages[i]) > len(stages[j]) })
	return stages
}
