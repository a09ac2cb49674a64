// Package llm wraps the text-generation service. The engine consumes it
// as an opaque dependency: every failure here degrades the turn instead
// of failing it.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrTimeout reports that the generation call exceeded its deadline.
	ErrTimeout = errors.New("llm: request timed out")
	// ErrUnreachable reports that the generation service could not be reached.
	ErrUnreachable = errors.New("llm: service unreachable")
)

// Options tune one generation call.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Generator produces text for a prompt. Implementations must return
// ErrTimeout or ErrUnreachable for the matching transport failures so
// callers can substitute sentinels without string matching.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// Sentinel strings substituted on the request path when the generation
// service fails. Callers return these instead of an error.
const (
	SentinelTimeout     = "[error: LLM request timed out]"
	SentinelUnreachable = "[error: cannot reach LLM service]"
	SentinelFailed      = "[error: LLM call failed]"
)

// Sentinel maps a generation error to the degraded response string.
func Sentinel(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return SentinelTimeout
	case errors.Is(err, ErrUnreachable):
		return SentinelUnreachable
	default:
		return SentinelFailed
	}
}
