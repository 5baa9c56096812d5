package lode

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// RetrievalResult is a fused search hit. Score is the reciprocal rank sum
// of the hit across the dense and keyword rankings; higher means more
// relevant. DenseRank and SparseRank are 1-based positions in the
// respective rankings, 0 when the chunk did not appear in that ranking.
type RetrievalResult struct {
	Chunk      Chunk   `json:"chunk"`
	Score      float32 `json:"score"`
	DenseRank  int     `json:"dense_rank,omitempty"`
	SparseRank int     `json:"sparse_rank,omitempty"`
}

// Retriever searches the knowledge base and returns ranked child chunks.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]RetrievalResult, error)
}

// RetrieverOption configures a HybridRetriever.
type RetrieverOption func(*retrieverConfig)

type retrieverConfig struct {
	rrfK                int
	minScore            float32
	overfetchMultiplier int
}

// WithRRFK sets the rank-smoothing constant k in the reciprocal rank
// fusion formula 1/(k+rank). Default is 60.
func WithRRFK(k int) RetrieverOption {
	return func(c *retrieverConfig) { c.rrfK = k }
}

// WithMinRetrievalScore sets the minimum fused score threshold. Results
// below this score are dropped before returning. Default is 0 (no filtering).
func WithMinRetrievalScore(score float32) RetrieverOption {
	return func(c *retrieverConfig) { c.minScore = score }
}

// WithOverfetchMultiplier sets the multiplier for over-fetching candidates
// from each index before fusion. Retrieve fetches topK * multiplier from
// both indices, fuses, and trims to topK. Default is 3.
func WithOverfetchMultiplier(n int) RetrieverOption {
	return func(c *retrieverConfig) { c.overfetchMultiplier = n }
}

// --- Reciprocal Rank Fusion ---

const defaultRRFK = 60

// reciprocalRankFusion merges the dense and keyword rankings. Each
// appearance at 1-based rank r contributes 1/(k+r) to the chunk's fused
// score. Ties are broken by dense rank, then sparse rank, then chunk ID,
// so equal-score orderings are deterministic.
func reciprocalRankFusion(dense, keyword []ScoredChunk, k int) []RetrievalResult {
	merged := make(map[string]*RetrievalResult)

	for i, sc := range dense {
		rank := i + 1
		merged[sc.ID] = &RetrievalResult{
			Chunk:     sc.Chunk,
			Score:     1.0 / float32(k+rank),
			DenseRank: rank,
		}
	}
	for i, sc := range keyword {
		rank := i + 1
		e, ok := merged[sc.ID]
		if !ok {
			e = &RetrievalResult{Chunk: sc.Chunk}
			merged[sc.ID] = e
		}
		e.Score += 1.0 / float32(k+rank)
		e.SparseRank = rank
	}

	results := make([]RetrievalResult, 0, len(merged))
	for _, e := range merged {
		results = append(results, *e)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
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
	return results
}

// rankOrMax maps the absent-rank sentinel 0 past every real rank.
func rankOrMax(r int) int {
	if r == 0 {
		return int(^uint(0) >> 1)
	}
	return r
}

// --- HybridRetriever ---

// HybridRetriever runs dense vector search and sparse keyword search in
// parallel and fuses the two rankings with Reciprocal Rank Fusion.
type HybridRetriever struct {
	store     Store
	embedding EmbeddingProvider
	cfg       retrieverConfig
}

var _ Retriever = (*HybridRetriever)(nil)

// NewHybridRetriever creates a Retriever over the given store and
// embedding provider.
func NewHybridRetriever(store Store, embedding EmbeddingProvider, opts ...RetrieverOption) *HybridRetriever {
	cfg := retrieverConfig{
		rrfK:                defaultRRFK,
		overfetchMultiplier: 3,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &HybridRetriever{store: store, embedding: embedding, cfg: cfg}
}

// Retrieve embeds the query, searches both indices concurrently, fuses the
// rankings, and returns the top fused results. A failure in either search
// fails the whole call: partial single-index results would silently skew
// the fused ranking.
func (h *HybridRetriever) Retrieve(ctx context.Context, query string, topK int) ([]RetrievalResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	fetchK := max(topK*h.cfg.overfetchMultiplier, topK)

	var dense, keyword []ScoredChunk
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		embs, err := h.embedding.Embed(gctx, []string{query})
		if err != nil {
			return fmt.Errorf("embed query: %w", err)
		}
		if len(embs) == 0 {
			return fmt.Errorf("embed query: no embedding returned")
		}
		dense, err = h.store.SearchChunks(gctx, embs[0], fetchK)
		if err != nil {
			return fmt.Errorf("vector search: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		keyword, err = h.store.SearchChunksKeyword(gctx, query, fetchK)
		if err != nil {
			return fmt.Errorf("keyword search: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := reciprocalRankFusion(dense, keyword, h.cfg.rrfK)

	if h.cfg.minScore > 0 {
		filtered := results[:0]
		for _, r := range results {
			if r.Score >= h.cfg.minScore {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}
