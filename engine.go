package lode

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// NoAnswerText is returned as the answer when retrieval finds nothing
// relevant for a query against a non-empty index.
const NoAnswerText = "No relevant information found in the knowledge base."

const synthesisSystemPrompt = `You are a precise assistant answering questions from a private knowledge base.
Answer using ONLY the numbered sources below. Cite sources inline as [N].
If the sources do not contain the answer, say so plainly instead of guessing.`

// Engine ties retrieval, context expansion, and answer synthesis into a
// single Query call.
type Engine struct {
	store     Store
	provider  Provider
	retriever Retriever
	expander  *ContextExpander
	logger    *slog.Logger

	topK          int
	expandQueries int // extra query variations to generate; 0 = off
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTopK sets the default number of fused hits per query (default: 6).
func WithTopK(k int) EngineOption {
	return func(e *Engine) { e.topK = k }
}

// WithQueryExpansion makes the engine ask the chat model for n rephrased
// variations of each query and retrieve with all of them, keeping each
// chunk's best score. The zero value disables expansion.
func WithQueryExpansion(n int) EngineOption {
	return func(e *Engine) { e.expandQueries = n }
}

// WithRetriever overrides the retriever the engine queries with.
func WithRetriever(r Retriever) EngineOption {
	return func(e *Engine) { e.retriever = r }
}

// WithExpander overrides the context expander.
func WithExpander(x *ContextExpander) EngineOption {
	return func(e *Engine) { e.expander = x }
}

// WithEngineLogger sets the structured logger (default: discard).
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an Engine. The store, chat provider, and embedding
// provider are required; retriever and expander default to a
// HybridRetriever and a ContextExpander over the same store.
func NewEngine(store Store, provider Provider, embedding EmbeddingProvider, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    store,
		provider: provider,
		topK:     6,
	}
	for _, o := range opts {
		o(e)
	}
	if e.retriever == nil {
		e.retriever = NewHybridRetriever(store, embedding)
	}
	if e.expander == nil {
		e.expander = NewContextExpander(store)
	}
	if e.logger == nil {
		e.logger = nopLogger
	}
	return e
}

// QueryOption adjusts a single Query call.
type QueryOption func(*querySettings)

type querySettings struct {
	topK          int
	includeImages bool
}

// QueryTopK overrides the engine's default hit count for this call.
func QueryTopK(k int) QueryOption {
	return func(s *querySettings) { s.topK = k }
}

// QueryWithImages attaches image paths linked to the winning chunks to
// the result.
func QueryWithImages() QueryOption {
	return func(s *querySettings) { s.includeImages = true }
}

// Query answers a question from the index. It returns ErrNoKnowledge if
// the index holds no documents. When retrieval finds no relevant chunks,
// the result carries NoAnswerText and zero confidence rather than an error.
func (e *Engine) Query(ctx context.Context, query string, opts ...QueryOption) (QueryResult, error) {
	settings := querySettings{topK: e.topK}
	for _, o := range opts {
		o(&settings)
	}

	start := time.Now()

	stats, err := e.store.Stats(ctx)
	if err != nil {
		return QueryResult{}, fmt.Errorf("index stats: %w", err)
	}
	if stats.Documents == 0 {
		return QueryResult{}, ErrNoKnowledge
	}

	hits, err := e.retrieve(ctx, query, settings.topK)
	if err != nil {
		return QueryResult{}, err
	}
	if len(hits) == 0 {
		e.logger.Debug("query found no hits", "query", query)
		return QueryResult{Answer: NoAnswerText}, nil
	}

	expanded, err := e.expander.Expand(ctx, hits)
	if err != nil {
		return QueryResult{}, err
	}
	if len(expanded.Entries) == 0 {
		return QueryResult{Answer: NoAnswerText}, nil
	}

	answer, err := e.synthesize(ctx, query, expanded)
	if err != nil {
		return QueryResult{}, fmt.Errorf("synthesize answer: %w", err)
	}

	result := QueryResult{
		Answer:     answer,
		Citations:  citationsOf(expanded.Entries),
		Confidence: hits[0].Score,
	}
	if settings.includeImages {
		for _, img := range expanded.Images {
			result.Images = append(result.Images, img.Path)
		}
	}

	e.logger.Debug("query answered",
		"hits", len(hits),
		"contexts", len(expanded.Entries),
		"images", len(result.Images),
		"duration", time.Since(start))
	return result, nil
}

// retrieve runs the base query and, when expansion is on, the generated
// variations, merging hits by best fused score.
func (e *Engine) retrieve(ctx context.Context, query string, topK int) ([]RetrievalResult, error) {
	queries := []string{query}
	if e.expandQueries > 0 {
		variations := e.expandQuery(ctx, query, e.expandQueries)
		queries = append(queries, variations...)
	}

	if len(queries) == 1 {
		return e.retriever.Retrieve(ctx, query, topK)
	}

	best := make(map[string]RetrievalResult)
	for _, q := range queries {
		hits, err := e.retriever.Retrieve(ctx, q, topK)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			if cur, ok := best[h.Chunk.ID]; !ok || h.Score > cur.Score {
				best[h.Chunk.ID] = h
			}
		}
	}

	merged := make([]RetrievalResult, 0, len(best))
	for _, h := range best {
		merged = append(merged, h)
	}
	sortHits(merged)
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

// expandQuery asks the chat model for n alternative phrasings. Failures
// are non-fatal: the base query alone still runs.
func (e *Engine) expandQuery(ctx context.Context, query string, n int) []string {
	prompt := fmt.Sprintf(
		"Rephrase the following search query %d different ways, using synonyms and related terms. Respond with one rephrasing per line and nothing else.\n\nQuery: %s",
		n, query)
	resp, err := e.provider.Chat(ctx, ChatRequest{Messages: []ChatMessage{UserMessage(prompt)}})
	if err != nil {
		e.logger.Warn("query expansion failed", "error", err)
		return nil
	}
	var out []string
	for _, line := range strings.Split(resp.Content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "0123456789.-) "))
		if line != "" && !strings.EqualFold(line, query) {
			out = append(out, line)
		}
		if len(out) == n {
			break
		}
	}
	return out
}

func (e *Engine) synthesize(ctx context.Context, query string, expanded ExpandedContext) (string, error) {
	var b strings.Builder
	for i, en := range expanded.Entries {
		fmt.Fprintf(&b, "[Source %d: %s", i+1, en.Document.Path)
		if en.Chunk.PageStart > 0 {
			if en.Chunk.PageEnd > en.Chunk.PageStart {
				fmt.Fprintf(&b, ", pages %d-%d", en.Chunk.PageStart, en.Chunk.PageEnd)
			} else {
				fmt.Fprintf(&b, ", page %d", en.Chunk.PageStart)
			}
		}
		b.WriteString("]\n")
		b.WriteString(en.Chunk.Content)
		b.WriteString("\n\n")
	}
	for _, img := range expanded.Images {
		fmt.Fprintf(&b, "[Image: %s]\n%s\n\n", img.Path, img.Caption)
	}
	fmt.Fprintf(&b, "Question: %s", query)

	resp, err := e.provider.Chat(ctx, ChatRequest{
		Messages: []ChatMessage{
			SystemMessage(synthesisSystemPrompt),
			UserMessage(b.String()),
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func citationsOf(entries []ContextEntry) []Citation {
	seen := make(map[Citation]bool)
	var cites []Citation
	for _, en := range entries {
		c := Citation{
			Path:      en.Document.Path,
			PageStart: en.Chunk.PageStart,
			PageEnd:   en.Chunk.PageEnd,
		}
		if !seen[c] {
			seen[c] = true
			cites = append(cites, c)
		}
	}
	return cites
}

// sortHits orders hits by fused score descending with the retriever's
// tie-break chain.
func sortHits(hits []RetrievalResult) {
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if ar, br := rankOrMax(a.DenseRank), rankOrMax(b.DenseRank); ar != br {
			return ar < br
		}
		if ar, br := rankOrMax(a.SparseRank), rankOrMax(b.SparseRank); ar != br {
			return ar < br
		}
		return a.Chunk.ID < b.Chunk.ID
	})
}
