// Package extraction turns a raw user message into validated structured
// facts via a second, low-temperature generation call.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/ent0n29/mnemo/internal/canonical"
	"github.com/ent0n29/mnemo/internal/llm"
	"github.com/ent0n29/mnemo/internal/memory"
	"github.com/ent0n29/mnemo/internal/observability"
)

// Quality floors for extraction candidates. Tunable.
const (
	MinConfidence = 0.4
	MinImportance = 0.2
)

const (
	defaultConfidence = 1.0
	defaultImportance = 0.5
)

// extractionMaxTokens leaves room for a full JSON array; extraction
// output is longer than a chat reply.
const extractionMaxTokens = 300

const extractionTemperature = 0.1

const extractionPrompt = `Extract structured facts from the user's message. Return ONLY a JSON array.

Use these canonical keys:
- name, location, timezone, job, language, formatter, project
- testing_framework, api_framework, type_hints, docstrings, line_length
- database, latency_target

Categories:
- identity: name, location, job
- preference: language, formatter, testing_framework, api_framework
- constraint: line_length, latency_target
- instruction: type_hints, docstrings

Format: [{"category":"identity","key":"name","value":"Alex","confidence":0.9,"importance":0.8}]

If no facts exist, return: []

User message: %s

JSON array:`

// Pipeline extracts facts from messages and persists the survivors.
type Pipeline struct {
	generator llm.Generator
	facts     memory.FactStore
	metrics   *observability.Metrics
}

func NewPipeline(generator llm.Generator, facts memory.FactStore, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{generator: generator, facts: facts, metrics: metrics}
}

// candidate mirrors one entry of the extractor's JSON array. Confidence
// and importance stay raw so absent and unparsable both fall back to
// the defaults.
type candidate struct {
	Category   string          `json:"category"`
	Key        string          `json:"key"`
	Value      string          `json:"value"`
	Confidence json.RawMessage `json:"confidence"`
	Importance json.RawMessage `json:"importance"`
}

// ExtractAndStore runs the full pipeline for one message. Designed for
// background dispatch: it never panics and only returns an error for
// visibility in worker logs, which callers are free to ignore.
func (p *Pipeline) ExtractAndStore(ctx context.Context, userID, message string) error {
	trimmed := strings.TrimSpace(message)

	// Questions request information rather than state it, and very
	// short messages carry nothing worth a second LLM round-trip.
	if strings.HasSuffix(trimmed, "?") {
		return nil
	}
	if len(strings.Fields(trimmed)) < 3 {
		return nil
	}

	response, err := p.generator.Generate(ctx, fmt.Sprintf(extractionPrompt, message), llm.Options{
		MaxTokens:   extractionMaxTokens,
		Temperature: extractionTemperature,
	})
	if err != nil {
		return fmt.Errorf("extraction generate: %w", err)
	}

	cleaned := CleanResponse(response)
	if cleaned == "" {
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		p.countOutcome("malformed")
		return fmt.Errorf("extraction returned invalid JSON: %w (raw %.200q)", err, response)
	}

	seen := make(map[[3]string]bool)
	for _, entry := range raw {
		fact, ok := validate(entry)
		if !ok {
			p.countOutcome("rejected")
			continue
		}

		dedupe := [3]string{fact.Category, fact.Key, fact.Value}
		if seen[dedupe] {
			p.countOutcome("duplicate")
			continue
		}
		seen[dedupe] = true

		stored, err := p.facts.Upsert(ctx, userID, fact.Category, fact.Key, fact.Value, fact.Confidence, fact.Importance)
		switch {
		case err != nil:
			// One failed write must not abort the rest of the batch.
			log.Printf("extraction: persist %s/%s for user %s: %v", fact.Category, fact.Key, userID, err)
			p.countOutcome("persist_error")
		case stored:
			p.countOutcome("stored")
		default:
			p.countOutcome("superseded_guard")
		}
	}
	return nil
}

// validate applies the per-candidate rules and returns the normalized
// fact ready for upsert.
func validate(entry json.RawMessage) (memory.Fact, bool) {
	var c candidate
	if err := json.Unmarshal(entry, &c); err != nil {
		return memory.Fact{}, false
	}

	category := strings.ToLower(strings.TrimSpace(c.Category))
	key := strings.TrimSpace(c.Key)
	value := strings.TrimSpace(c.Value)
	if category == "" || key == "" || value == "" {
		return memory.Fact{}, false
	}
	if !memory.ValidCategory(category) {
		return memory.Fact{}, false
	}

	confidence := floatOrDefault(c.Confidence, defaultConfidence)
	importance := floatOrDefault(c.Importance, defaultImportance)
	if confidence < MinConfidence || importance < MinImportance {
		return memory.Fact{}, false
	}

	return memory.Fact{
		Category:   category,
		Key:        canonical.Normalize(key),
		Value:      value,
		Confidence: confidence,
		Importance: importance,
	}, true
}

func floatOrDefault(raw json.RawMessage, fallback float64) float64 {
	if len(raw) == 0 {
		return fallback
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	// The model sometimes quotes numbers.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if _, err := fmt.Sscanf(strings.TrimSpace(s), "%g", &f); err == nil {
			return f
		}
	}
	return fallback
}

// CleanResponse strips the wrappers a chatty model adds around JSON:
// markdown fences, a leading language label, and any prose outside the
// first-bracket..last-bracket span.
func CleanResponse(response string) string {
	cleaned := strings.TrimSpace(response)

	if strings.HasPrefix(cleaned, "```") {
		if nl := strings.IndexByte(cleaned, '\n'); nl > 0 {
			cleaned = cleaned[nl+1:]
		}
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
	}
	if len(cleaned) >= 4 && strings.EqualFold(cleaned[:4], "json") {
		cleaned = strings.TrimSpace(cleaned[4:])
	}

	start := strings.IndexAny(cleaned, "[{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndexAny(cleaned, "]}")
	if end < start {
		return ""
	}
	return cleaned[start : end+1]
}

func (p *Pipeline) countOutcome(outcome string) {
	if p.metrics != nil {
		p.metrics.ExtractionFacts.WithLabelValues(outcome).Inc()
	}
}
