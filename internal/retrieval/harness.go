// Package retrieval decides what stored memory a turn needs and shapes
// it into the prompt.
package retrieval

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/ent0n29/mnemo/internal/embedder"
	"github.com/ent0n29/mnemo/internal/memory"
	"github.com/ent0n29/mnemo/internal/observability"
)

const (
	// minFactImportance gates stage one; facts below it are noise.
	minFactImportance = 0.3
	// minQuestionScore drops facts irrelevant to a question.
	minQuestionScore = 0.2
	// maxEpisodeDistance gates stage two (cosine distance).
	maxEpisodeDistance = 0.4

	relevanceWeight  = 0.7
	importanceWeight = 0.3

	// episodeSummaryLimit truncates long summaries in the injection.
	episodeSummaryLimit = 150
)

// EmptyInjection stands in when nothing relevant was found, so the
// generation prompt always carries a memory section.
const EmptyInjection = "No relevant memory found."

// Results is one turn's worth of retrieved memory.
type Results struct {
	Facts    []memory.Fact
	Episodes []memory.Episode
}

func (r Results) Total() int { return len(r.Facts) + len(r.Episodes) }

// Harness fans a query out over the memory tiers and merges the hits.
type Harness struct {
	facts    memory.FactStore
	episodes memory.EpisodeStore
	embedder embedder.Embedder
	metrics  *observability.Metrics
}

func NewHarness(facts memory.FactStore, episodes memory.EpisodeStore, emb embedder.Embedder, metrics *observability.Metrics) *Harness {
	return &Harness{facts: facts, episodes: episodes, embedder: emb, metrics: metrics}
}

// RetrieveAll runs both retrieval stages. Each tier degrades
// independently: a failing store contributes nothing instead of
// failing the turn.
func (h *Harness) RetrieveAll(ctx context.Context, userID, query string, topKFacts, topKEpisodes int) Results {
	var out Results

	facts, err := h.facts.GetAll(ctx, userID, minFactImportance)
	if err != nil {
		log.Printf("retrieval: facts for user %s: %v", userID, err)
	} else {
		out.Facts = h.rankFacts(ctx, query, facts, topKFacts)
		h.countRetrieved("facts", len(out.Facts))
	}

	episodes, err := h.episodes.Retrieve(ctx, userID, query, topKEpisodes, maxEpisodeDistance)
	if err != nil {
		log.Printf("retrieval: episodes for user %s: %v", userID, err)
	} else {
		out.Episodes = episodes
		h.countRetrieved("episodes", len(out.Episodes))
	}

	return out
}

// rankFacts orders candidate facts for the query. Questions are ranked
// by a relevance/importance blend and filtered; statements just take
// the most important facts.
func (h *Harness) rankFacts(ctx context.Context, query string, facts []memory.Fact, topK int) []memory.Fact {
	if len(facts) == 0 || topK <= 0 {
		return nil
	}

	if !IsQuestion(query) {
		sort.SliceStable(facts, func(i, j int) bool {
			return facts[i].Importance > facts[j].Importance
		})
		if len(facts) > topK {
			facts = facts[:topK]
		}
		return facts
	}

	queryVec, embErr := h.embedder.Embed(ctx, query)

	type scored struct {
		fact  memory.Fact
		score float64
	}
	ranked := make([]scored, 0, len(facts))
	for _, fact := range facts {
		relevance := h.relevance(ctx, queryVec, embErr, query, fact.Key)
		score := relevanceWeight*relevance + importanceWeight*fact.Importance
		if score > minQuestionScore {
			ranked = append(ranked, scored{fact: fact, score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	out := make([]memory.Fact, len(ranked))
	for i, s := range ranked {
		out[i] = s.fact
	}
	return out
}

// relevance scores a fact key against the query, falling back to a
// substring match when embeddings are unavailable.
func (h *Harness) relevance(ctx context.Context, queryVec []float32, embErr error, query, key string) float64 {
	if embErr == nil {
		keyVec, err := h.embedder.Embed(ctx, strings.ReplaceAll(key, "_", " "))
		if err == nil {
			sim := embedder.CosineSimilarity(queryVec, keyVec)
			if sim < 0 {
				return 0
			}
			if sim > 1 {
				return 1
			}
			return sim
		}
	}
	if strings.Contains(strings.ToLower(query), strings.ToLower(strings.ReplaceAll(key, "_", " "))) {
		return 1.0
	}
	return 0.0
}

// FormatForInjection renders retrieved memory under a hard character
// budget of maxTokens*4. A line that would exceed the budget is
// dropped and its section stops.
func FormatForInjection(results Results, maxTokens int) string {
	budget := maxTokens * 4
	if results.Total() == 0 {
		return EmptyInjection
	}

	var b strings.Builder

	writeLine := func(line string) bool {
		if b.Len()+len(line)+1 > budget {
			return false
		}
		b.WriteString(line)
		b.WriteByte('\n')
		return true
	}

	if len(results.Facts) > 0 && writeLine("## User Profile") {
		for _, fact := range results.Facts {
			if !writeLine(fmt.Sprintf("- %s: %s", fact.Key, fact.Value)) {
				break
			}
		}
	}

	if len(results.Episodes) > 0 {
		if b.Len() > 0 {
			if !writeLine("") {
				return strings.TrimRight(b.String(), "\n")
			}
		}
		if writeLine("## Recent Context") {
			for _, ep := range results.Episodes {
				summary := ep.Summary
				if len(summary) > episodeSummaryLimit {
					summary = summary[:episodeSummaryLimit] + "..."
				}
				if !writeLine(fmt.Sprintf("- %s: %s", ep.TurnRange, summary)) {
					break
				}
			}
		}
	}

	out := strings.TrimRight(b.String(), "\n")
	if out == "" {
		return EmptyInjection
	}
	return out
}

func (h *Harness) countRetrieved(tier string, n int) {
	if h.metrics != nil && n > 0 {
		h.metrics.RetrievedItems.WithLabelValues(tier).Add(float64(n))
	}
}
