// Package engine runs the per-turn loop: remember, retrieve, generate,
// and schedule the background maintenance that keeps the tiers fresh.
package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ent0n29/mnemo/internal/extraction"
	"github.com/ent0n29/mnemo/internal/llm"
	"github.com/ent0n29/mnemo/internal/observability"
	"github.com/ent0n29/mnemo/internal/retrieval"
	"github.com/ent0n29/mnemo/internal/session"
	"github.com/ent0n29/mnemo/internal/summarize"
	"github.com/ent0n29/mnemo/internal/workers"
)

const promptTemplate = `[ACTIVE MEMORY]
%s

[RECENT CONVERSATION]
%s

Answer consistently.`

// Options bounds a turn's retrieval and generation.
type Options struct {
	TopKFacts          int
	TopKEpisodes       int
	InjectionMaxTokens int
	ReplyMaxTokens     int
	Temperature        float64
}

func (o Options) withDefaults() Options {
	if o.TopKFacts <= 0 {
		o.TopKFacts = 5
	}
	if o.TopKEpisodes <= 0 {
		o.TopKEpisodes = 3
	}
	if o.InjectionMaxTokens <= 0 {
		o.InjectionMaxTokens = 400
	}
	if o.ReplyMaxTokens <= 0 {
		o.ReplyMaxTokens = 512
	}
	if o.Temperature <= 0 {
		o.Temperature = 0.7
	}
	return o
}

// Reply is the outcome of one conversational turn.
type Reply struct {
	Response  string
	Mode      retrieval.Mode
	Retrieved int
	Latency   time.Duration
}

// Engine owns the turn loop. One instance serves all users; per-user
// ordering comes from the session registry.
type Engine struct {
	sessions   *session.Registry
	harness    *retrieval.Harness
	generator  llm.Generator
	extractor  *extraction.Pipeline
	summarizer *summarize.Scheduler
	pool       *workers.Pool
	metrics    *observability.Metrics
	opts       Options
}

func New(sessions *session.Registry, harness *retrieval.Harness, generator llm.Generator, extractor *extraction.Pipeline, summarizer *summarize.Scheduler, pool *workers.Pool, metrics *observability.Metrics, opts Options) *Engine {
	return &Engine{
		sessions:   sessions,
		harness:    harness,
		generator:  generator,
		extractor:  extractor,
		summarizer: summarizer,
		pool:       pool,
		metrics:    metrics,
		opts:       opts.withDefaults(),
	}
}

// HandleTurn processes one user message and returns the assistant's
// reply. Generation failures degrade to a sentinel response; the turn
// itself never fails.
func (e *Engine) HandleTurn(ctx context.Context, userID, message string) Reply {
	entry := e.sessions.Get(userID)
	windowLen := entry.Add(session.RoleUser, message)
	// Compression is gated on the window length right after the user
	// turn lands; the assistant reply below does not move the trigger.
	needsCompress := e.summarizer.ShouldSummarize(windowLen)

	mode := retrieval.DecideMode(message)

	var results retrieval.Results
	injection := retrieval.EmptyInjection
	if mode == retrieval.ModeActive {
		results = e.harness.RetrieveAll(ctx, userID, message, e.opts.TopKFacts, e.opts.TopKEpisodes)
		injection = retrieval.FormatForInjection(results, e.opts.InjectionMaxTokens)
	}
	if e.metrics != nil {
		e.metrics.Turns.WithLabelValues(string(mode)).Inc()
		e.metrics.InjectionChars.Observe(float64(len(injection)))
		e.metrics.KnownUsers.Set(float64(e.sessions.Users()))
	}

	prompt := fmt.Sprintf(promptTemplate, injection, e.shortContext(entry))

	start := time.Now()
	response, err := e.generator.Generate(ctx, prompt, llm.Options{
		MaxTokens:   e.opts.ReplyMaxTokens,
		Temperature: e.opts.Temperature,
	})
	latency := time.Since(start)
	if e.metrics != nil {
		e.metrics.ObserveLLMLatency(latency)
	}
	if err != nil {
		response = llm.Sentinel(err)
		log.Printf("engine: generate for user %s: %v", userID, err)
	}

	entry.Add(session.RoleAssistant, response)

	e.dispatch("extract", func(jobCtx context.Context) error {
		return e.extractor.ExtractAndStore(jobCtx, userID, message)
	})
	if needsCompress {
		e.dispatch("compress", func(jobCtx context.Context) error {
			return e.summarizer.Compress(jobCtx, userID)
		})
	}

	return Reply{
		Response:  response,
		Mode:      mode,
		Retrieved: results.Total(),
		Latency:   latency,
	}
}

// shortContext renders the live window for the prompt.
func (e *Engine) shortContext(entry *session.Entry) string {
	turns, _ := entry.Snapshot()
	var b strings.Builder
	for i, turn := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", turn.Role, turn.Content)
	}
	return b.String()
}

func (e *Engine) dispatch(name string, run func(context.Context) error) {
	if e.pool == nil {
		return
	}
	e.pool.Submit(workers.Job{Name: name, Run: run})
}
