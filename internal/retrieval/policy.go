package retrieval

import "strings"

// Mode selects how much memory a turn is worth fetching.
type Mode string

const (
	// ModeSession answers from the window alone. Greetings and
	// acknowledgements gain nothing from memory and should not pay
	// retrieval latency.
	ModeSession Mode = "session"
	// ModeActive runs the full fact + episode retrieval.
	ModeActive Mode = "active"
)

// smallTalk never triggers retrieval. Matched exactly against the
// trimmed, lower-cased message; any extra wording or punctuation makes
// the turn active.
var smallTalk = map[string]bool{
	"hi":        true,
	"hello":     true,
	"hey":       true,
	"thanks":    true,
	"thank you": true,
	"ok":        true,
	"okay":      true,
	"bye":       true,
	"yes":       true,
	"no":        true,
}

// DecideMode classifies a user message into a retrieval mode.
func DecideMode(message string) Mode {
	normalized := strings.ToLower(strings.TrimSpace(message))
	if normalized == "" || smallTalk[normalized] {
		return ModeSession
	}
	return ModeActive
}

// IsQuestion reports whether the message asks for information, which
// switches fact ordering from pure importance to a relevance blend.
func IsQuestion(message string) bool {
	return strings.HasSuffix(strings.TrimSpace(message), "?")
}
